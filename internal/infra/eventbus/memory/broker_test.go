package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/adminops/internal/domain/events"
)

const (
	typeA events.EventType = "TestA"
	typeB events.EventType = "TestB"
)

type testEvent struct {
	typ events.EventType
	id  string
	at  time.Time
}

func (e testEvent) EventType() events.EventType { return e.typ }
func (e testEvent) OccurredAt() time.Time        { return e.at }

func TestPublishAndSubscribe(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	ctx := context.Background()
	expected := testEvent{typ: typeA, id: "evt-1", at: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	var got events.EventEnvelope
	err := broker.Subscribe(ctx, []events.EventType{typeA}, func(_ context.Context, env events.EventEnvelope) error {
		got = env
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, broker.PublishDomainEvent(ctx, expected, events.WithKey("job-1")))
	assert.Equal(t, typeA, got.Type)
	assert.Equal(t, "job-1", got.Key)
	assert.Equal(t, expected.at, got.Timestamp)
	assert.Equal(t, expected, got.Payload)
}

func TestTypeFiltering(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	ctx := context.Background()

	var onlyA, all []string
	require.NoError(t, broker.Subscribe(ctx, []events.EventType{typeA}, func(_ context.Context, env events.EventEnvelope) error {
		onlyA = append(onlyA, env.Payload.(testEvent).id)
		return nil
	}))
	require.NoError(t, broker.Subscribe(ctx, nil, func(_ context.Context, env events.EventEnvelope) error {
		all = append(all, env.Payload.(testEvent).id)
		return nil
	}))

	require.NoError(t, broker.PublishDomainEvent(ctx, testEvent{typ: typeA, id: "a"}))
	require.NoError(t, broker.PublishDomainEvent(ctx, testEvent{typ: typeB, id: "b"}))

	assert.Equal(t, []string{"a"}, onlyA)
	assert.Equal(t, []string{"a", "b"}, all)
}

func TestMultipleSubscribers(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	ctx := context.Background()
	subscriberCount := 3

	var mu sync.Mutex
	received := 0
	for i := 0; i < subscriberCount; i++ {
		require.NoError(t, broker.Subscribe(ctx, nil, func(context.Context, events.EventEnvelope) error {
			mu.Lock()
			received++
			mu.Unlock()
			return nil
		}))
	}

	require.NoError(t, broker.PublishDomainEvent(ctx, testEvent{typ: typeA}))
	assert.Equal(t, subscriberCount, received)
}

func TestHandlerError(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	ctx := context.Background()
	expectedErr := errors.New("handler error")

	calls := 0
	require.NoError(t, broker.Subscribe(ctx, nil, func(context.Context, events.EventEnvelope) error {
		calls++
		return expectedErr
	}))
	require.NoError(t, broker.Subscribe(ctx, nil, func(context.Context, events.EventEnvelope) error {
		calls++
		return nil
	}))

	err := broker.PublishDomainEvent(ctx, testEvent{typ: typeA})
	assert.ErrorIs(t, err, expectedErr)
	assert.Equal(t, 1, calls, "publishing stops at the first failing handler")
}

func TestNilHandler(t *testing.T) {
	t.Parallel()

	err := NewBroker().Subscribe(context.Background(), nil, nil)
	assert.EqualError(t, err, "handler cannot be nil")
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	ctx := context.Background()
	const publishers = 10

	var (
		mu       sync.Mutex
		received = make(map[string]bool)
	)
	require.NoError(t, broker.Subscribe(ctx, nil, func(_ context.Context, env events.EventEnvelope) error {
		mu.Lock()
		received[env.Payload.(testEvent).id] = true
		mu.Unlock()
		return nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, broker.PublishDomainEvent(ctx, testEvent{typ: typeA, id: fmt.Sprintf("evt-%d", i)}))
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, received, publishers)
}

func TestContextCancellation(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, broker.Subscribe(ctx, nil, func(context.Context, events.EventEnvelope) error { return nil }))
	assert.Equal(t, 1, broker.Subscribers())

	cancel()
	assert.Eventually(t, func() bool { return broker.Subscribers() == 0 }, time.Second, time.Millisecond)

	assert.ErrorIs(t, broker.Subscribe(ctx, nil, func(context.Context, events.EventEnvelope) error { return nil }), context.Canceled)
	assert.ErrorIs(t, broker.PublishDomainEvent(ctx, testEvent{typ: typeA}), context.Canceled)
}
