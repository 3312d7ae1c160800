// Package influxdb records authentication telemetry in InfluxDB v2.
//
// Two measurements are written:
//   - login_attempts: tag outcome (success|failure), fields count, staff_id
//   - authz_decisions: tags check, decision (allow|deny), fields count, actor_id
//
// Writes go through the batched, non-blocking write API (batch_size and
// flush_interval from config). InfluxDB is optional; a nil *Client accepts
// writes and drops them.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	policy := auth.NewPolicy(repo, auth.WithDecisionObserver(client.WriteAuthzDecision))
package influxdb
