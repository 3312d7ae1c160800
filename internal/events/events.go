// Package events announces registry mutations to other systems over MQTT.
//
// Every audited staff or student change becomes one message on
// {prefix}/events/{entity_type}/{action}. Delivery is best effort: a broker
// outage never fails the request that caused the event.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/student-registry/internal/audit"
)

// MQTTClient is the publishing half of the MQTT client.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// TopicBuilder maps an entity type and action to a topic.
type TopicBuilder interface {
	Event(entityType, action string) string
}

// Publisher announces audit entries. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(entry audit.Entry) error
}

// Event is the JSON body of an event message. Details from the audit entry
// are carried as-is; they never contain credentials.
type Event struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    int64          `json:"actor_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

// FromEntry converts an audit entry to its event body.
func FromEntry(e audit.Entry) Event {
	ts := e.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return Event{
		ID:         e.ID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Details:    e.Details,
		Timestamp:  ts.UTC().Format(time.RFC3339),
	}
}

// MQTTPublisher publishes events through an MQTT client.
type MQTTPublisher struct {
	client MQTTClient
	topics TopicBuilder
	qos    byte
}

// NewMQTTPublisher creates a publisher sending with the given QoS.
func NewMQTTPublisher(client MQTTClient, topics TopicBuilder, qos byte) *MQTTPublisher {
	return &MQTTPublisher{client: client, topics: topics, qos: qos}
}

// Publish sends entry to {prefix}/events/{entity_type}/{action}.
// Entries without an entity type or action are rejected.
func (p *MQTTPublisher) Publish(entry audit.Entry) error {
	if entry.EntityType == "" || entry.Action == "" {
		return fmt.Errorf("event needs entity type and action, got %q/%q", entry.EntityType, entry.Action)
	}

	payload, err := json.Marshal(FromEntry(entry))
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}

	topic := p.topics.Event(entry.EntityType, entry.Action)
	if err := p.client.Publish(topic, payload, p.qos, false); err != nil {
		return fmt.Errorf("publishing to %q: %w", topic, err)
	}
	return nil
}

// Nop discards events. It is used when MQTT is disabled.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(audit.Entry) error { return nil }
