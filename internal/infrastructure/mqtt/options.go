package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/student-registry/internal/infrastructure/config"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultKeepAlive         = 60 * time.Second
	defaultDisconnectQuiesce = 1000 // ms, as paho's Disconnect expects

	maxQoS = 2

	tlsMinVersion = tls.VersionTLS12
)

// brokerURL is the paho server address; TLS brokers use ssl://.
func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// buildClientOptions maps cfg onto paho. Sessions are clean: the registry
// only publishes, so there is nothing to resume. Paho reconnects on its own
// with backoff between the configured delays; the first connect is not
// retried so start-up fails fast.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive)

	if u := cfg.Auth; u.Username != "" {
		opts.SetUsername(u.Username).SetPassword(u.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}
	return opts
}

// statusPayload is the retained message on Topics.SystemStatus.
type statusPayload struct {
	Status    string `json:"status"` // online | offline
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"` // RFC 3339, UTC
}

func buildStatusPayload(status, clientID, reason string) []byte {
	p := statusPayload{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	b, _ := json.Marshal(p) //nolint:errcheck // string fields only
	return b
}

// configureLWT registers the retained offline status the broker publishes
// when the connection drops without Close.
func configureLWT(opts *pahomqtt.ClientOptions, topics Topics, clientID string) {
	will := buildStatusPayload("offline", clientID, "unexpected_disconnect")
	opts.SetBinaryWill(topics.SystemStatus(), will, 1, true)
}
