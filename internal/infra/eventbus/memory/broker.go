// Package memory provides an in-memory implementation of the event bus.
// It offers a lightweight, non-persistent broker used by the CLI to observe
// operation events in process, and by tests.
package memory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/ahrav/adminops/internal/domain/events"
)

type subscription struct {
	id      uint64
	types   []events.EventType
	handler events.HandlerFunc
}

func (s subscription) wants(t events.EventType) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

// Broker is an in-memory events.DomainEventPublisher and events.Subscriber.
// Handlers run synchronously on the publishing goroutine in subscription
// order.
type Broker struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

var (
	_ events.DomainEventPublisher = (*Broker)(nil)
	_ events.Subscriber           = (*Broker)(nil)
)

// NewBroker creates an empty broker.
func NewBroker() *Broker { return &Broker{} }

// Subscribe registers handler for the given event types; no types means
// every event. The subscription is removed when ctx is done.
func (b *Broker) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, types: slices.Clone(eventTypes), handler: handler})
	b.mu.Unlock()

	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			b.unsubscribe(id)
		}()
	}

	return nil
}

func (b *Broker) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = slices.DeleteFunc(b.subs, func(s subscription) bool { return s.id == id })
}

// PublishDomainEvent delivers evt to every matching handler, stopping at the
// first error. The handlers are copied before iteration so handlers may
// subscribe or publish themselves.
func (b *Broker) PublishDomainEvent(ctx context.Context, evt events.DomainEvent, opts ...events.PublishOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := events.NewEnvelope(evt, opts...)

	b.mu.RLock()
	subs := slices.Clone(b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.wants(env.Type) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.handler(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
