package events

import "time"

// DomainEvent is implemented by every event the orchestration core emits. It
// carries only what routing and ordering need; concrete events expose their
// own payload fields.
type DomainEvent interface {
	EventType() EventType
	OccurredAt() time.Time
}

// EventEnvelope wraps a DomainEvent for transport through an event sink,
// providing a standardized format for serialization and distribution.
type EventEnvelope struct {
	// Type identifies the category of this event for routing and handling.
	Type EventType

	// Key enables consistent event routing, typically the job id so every
	// event of one operation lands on the same partition.
	Key string

	// Headers contain metadata key-value pairs attached to the event.
	Headers map[string]string

	// Timestamp records when this event was created.
	Timestamp time.Time

	// Payload contains the actual event data.
	Payload any
}

// NewEnvelope builds an envelope for evt after applying opts.
func NewEnvelope(evt DomainEvent, opts ...PublishOption) EventEnvelope {
	var params PublishParams
	for _, opt := range opts {
		opt(&params)
	}

	return EventEnvelope{
		Type:      evt.EventType(),
		Key:       params.Key,
		Headers:   params.Headers,
		Timestamp: evt.OccurredAt(),
		Payload:   evt,
	}
}
