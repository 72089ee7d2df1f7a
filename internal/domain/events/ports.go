// Package events provides domain event handling capabilities for communicating
// operation state changes to collaborators in a decoupled way.
package events

import "context"

// DomainEventPublisher publishes domain events to notify other parts of the system about
// important domain changes. It provides a technology-agnostic interface to decouple event
// producers from the underlying messaging infrastructure.
type DomainEventPublisher interface {
	// PublishDomainEvent sends a domain event to interested subscribers. The provided context
	// controls cancellation and deadlines. Optional PublishOptions configure routing behavior.
	// Returns an error if publishing fails.
	PublishDomainEvent(ctx context.Context, event DomainEvent, opts ...PublishOption) error
}

// HandlerFunc processes a single event envelope delivered by a subscriber-capable sink.
type HandlerFunc func(ctx context.Context, evt EventEnvelope) error

// Subscriber registers handlers for a set of event types.
type Subscriber interface {
	// Subscribe registers handler for the given event types. An empty list subscribes
	// to every event. The subscription ends when ctx is cancelled.
	Subscribe(ctx context.Context, eventTypes []EventType, handler HandlerFunc) error
}
