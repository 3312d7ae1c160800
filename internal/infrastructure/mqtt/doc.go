// Package mqtt connects the registry to an MQTT broker so other systems can
// follow staff and student changes.
//
// The registry only publishes:
//   - registry/system/status: retained online/offline status, with a Last
//     Will so subscribers see an unexpected disconnect
//   - registry/events/{entity}/{action}: one message per audited mutation
//
// The prefix ("registry") is configurable. MQTT is optional; when disabled
// or unreachable the registry runs without it.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.Publish(client.Topics().Event("student", "create"), payload, 1, false)
package mqtt
