package events

import "context"

// EventType represents a domain event category, enabling type-safe event routing and handling.
type EventType string

// PublishOption is a function type that modifies PublishParams.
// It enables flexible configuration of event publishing behavior through functional options.
type PublishOption func(*PublishParams)

// PublishParams contains configuration options for publishing domain events.
type PublishParams struct {
	// Key is used as a partition key to control event routing and ordering.
	Key string
	// Headers contain metadata key-value pairs attached to the event.
	Headers map[string]string
}

// WithKey returns a PublishOption that sets the partition key for event routing.
// The key helps ensure related events are processed in order by the same consumer.
func WithKey(key string) PublishOption {
	return func(p *PublishParams) { p.Key = key }
}

// WithHeaders returns a PublishOption that attaches metadata headers to an event.
func WithHeaders(headers map[string]string) PublishOption {
	return func(p *PublishParams) { p.Headers = headers }
}

// MultiPublisher fans a domain event out to several publishers. Every
// publisher is attempted; the first error is returned.
type MultiPublisher []DomainEventPublisher

// PublishDomainEvent implements DomainEventPublisher.
func (m MultiPublisher) PublishDomainEvent(ctx context.Context, evt DomainEvent, opts ...PublishOption) error {
	var firstErr error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.PublishDomainEvent(ctx, evt, opts...); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NopPublisher discards every event.
type NopPublisher struct{}

// PublishDomainEvent implements DomainEventPublisher.
func (NopPublisher) PublishDomainEvent(context.Context, DomainEvent, ...PublishOption) error {
	return nil
}
