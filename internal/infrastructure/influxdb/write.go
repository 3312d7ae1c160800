package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementLoginAttempts  = "login_attempts"
	MeasurementAuthzDecisions = "authz_decisions"
)

// Login outcomes recorded by WriteLoginAttempt.
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
)

// WriteLoginAttempt records one login. staffID is zero when the email was
// unknown. Emails and passwords are never written.
//
//	client.WriteLoginAttempt(influxdb.LoginFailure, 0)
func (c *Client) WriteLoginAttempt(outcome string, staffID int64) {
	fields := map[string]any{"count": 1}
	if staffID > 0 {
		fields["staff_id"] = staffID
	}
	c.WritePoint(MeasurementLoginAttempts, map[string]string{"outcome": outcome}, fields)
}

// WriteAuthzDecision records one policy decision. Its signature matches
// auth.DecisionObserver so it can be passed to auth.WithDecisionObserver.
func (c *Client) WriteAuthzDecision(check string, actorID int64, allowed bool) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	c.WritePoint(MeasurementAuthzDecisions,
		map[string]string{"check": check, "decision": decision},
		map[string]any{"actor_id": actorID, "count": 1},
	)
}

// WritePoint writes a point stamped now. Tags should be low cardinality.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
