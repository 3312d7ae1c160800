package mqtt

import "strings"

// DefaultTopicPrefix is the root of every registry topic when none is configured.
const DefaultTopicPrefix = "registry"

// Topics builds registry topic names under a configurable prefix.
//
//	topics := mqtt.NewTopics("registry")
//	topics.Event("student", "create") // "registry/events/student/create"
type Topics struct {
	prefix string
}

// NewTopics returns a builder rooted at prefix. Surrounding slashes are
// trimmed; an empty prefix selects DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string {
	return t.prefix
}

// SystemStatus is the retained online/offline topic, also used for the LWT.
//
// Example: registry/system/status
func (t Topics) SystemStatus() string {
	return t.prefix + "/system/status"
}

// Event is the topic for an action on an entity type.
//
// Example: registry/events/staff/role_update
func (t Topics) Event(entityType, action string) string {
	return t.prefix + "/events/" + entityType + "/" + action
}

// AllEvents matches every event topic.
//
// Pattern: registry/events/#
func (t Topics) AllEvents() string {
	return t.prefix + "/events/#"
}
