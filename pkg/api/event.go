package api

import "time"

// EventType identifies a domain mutation published by the application.
type EventType string

const (
	EventUserCreated             EventType = "user.created"
	EventUserUpdated             EventType = "user.updated"
	EventUserDeleted             EventType = "user.deleted"
	EventConnectionRequested     EventType = "connection.requested"
	EventConnectionStatusChanged EventType = "connection.statusChanged"
	EventMessageSent             EventType = "message.sent"
	EventStoryCreated            EventType = "story.created"
	EventStoryDeleted            EventType = "story.deleted"
)

// Event is a domain event handed to the bus. Events are immutable once
// published and are not persisted on their own; a Run created from an event
// carries everything it needs in its context.
//
// Delivery is at-least-once: the same event may be published more than once,
// and triggers must derive idempotency keys that collapse duplicates.
type Event struct {
	Type       EventType
	SubjectID  string
	Payload    map[string]any
	OccurredAt time.Time
}

// PayloadString returns the payload value under key as a string, or "" when
// absent or of another type.
func (e Event) PayloadString(key string) string {
	s, _ := e.Payload[key].(string)
	return s
}

// PayloadTime returns the payload value under key as a time.Time. RFC 3339
// strings are accepted so JSON-decoded payloads work unchanged. When the key
// is absent or unparseable, it falls back to the event's OccurredAt.
func (e Event) PayloadTime(key string) time.Time {
	switch v := e.Payload[key].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return e.OccurredAt
}
