// Package kafka publishes operation domain events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/adminops/internal/domain/events"
	"github.com/ahrav/adminops/internal/domain/operation"
	"github.com/ahrav/adminops/internal/infra/eventbus/kafka/tracing"
	"github.com/ahrav/adminops/pkg/common/logger"
)

// EventTypeHeader names the record header carrying the event type.
const EventTypeHeader = "event-type"

// Config contains settings for connecting to Kafka and routing events.
type Config struct {
	// Brokers is a list of Kafka broker addresses to connect to.
	Brokers []string
	// Topic receives every published event.
	Topic string
	// ClientID uniquely identifies this client to the Kafka cluster.
	ClientID string
	// EventTypes limits which events are forwarded. Empty means
	// DefaultEventTypes.
	EventTypes []events.EventType
}

// DefaultEventTypes are the lifecycle events forwarded when Config.EventTypes
// is empty. Progress ticks stay in process.
func DefaultEventTypes() []events.EventType {
	return []events.EventType{
		operation.EventTypeOperationLaunched,
		operation.EventTypeOperationStallNotice,
		operation.EventTypeOperationCompleted,
	}
}

// Message is the JSON value written for every event.
type Message struct {
	Type       events.EventType `json:"type"`
	Key        string           `json:"key,omitempty"`
	OccurredAt time.Time        `json:"occurredAt"`
	Payload    any              `json:"payload"`
}

var _ events.DomainEventPublisher = (*Publisher)(nil)

// Publisher implements events.DomainEventPublisher on a sarama SyncProducer.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	types    []events.EventType

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics PublisherMetrics
}

// NewPublisher creates a Publisher over an existing producer. The producer is
// owned by the publisher and closed by Close.
func NewPublisher(
	producer sarama.SyncProducer,
	cfg Config,
	logger *logger.Logger,
	tracer trace.Tracer,
	metrics PublisherMetrics,
) *Publisher {
	types := cfg.EventTypes
	if len(types) == 0 {
		types = DefaultEventTypes()
	}
	return &Publisher{
		producer: producer,
		topic:    cfg.Topic,
		types:    types,
		logger:   logger.With("component", "kafka_publisher", "topic", cfg.Topic, "client_id", cfg.ClientID),
		tracer:   tracer,
		metrics:  metrics,
	}
}

// ProducerConfig returns the sarama configuration used for the producer.
func ProducerConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Producer.Retry.Max = 3
	cfg.ClientID = clientID
	return cfg
}

// ConnectWithRetry dials the brokers with exponential backoff until b gives
// up or ctx is done.
func ConnectWithRetry(
	ctx context.Context,
	cfg Config,
	b backoff.BackOff,
	logger *logger.Logger,
	tracer trace.Tracer,
	metrics PublisherMetrics,
) (*Publisher, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka publisher requires brokers and a topic")
	}
	if b == nil {
		expBackoff := backoff.NewExponentialBackOff()
		expBackoff.InitialInterval = time.Second
		expBackoff.MaxElapsedTime = time.Minute
		b = expBackoff
	}

	var producer sarama.SyncProducer
	attempt := 0
	op := func() error {
		attempt++
		var err error
		producer, err = sarama.NewSyncProducer(cfg.Brokers, ProducerConfig(cfg.ClientID))
		if err != nil {
			logger.Warn(ctx, "Failed to connect to Kafka, will retry", "attempt", attempt, "err", err)
			return err
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka after retries: %w", err)
	}

	return NewPublisher(producer, cfg, logger, tracer, metrics), nil
}

// PublishDomainEvent implements events.DomainEventPublisher. Events whose type
// is not forwarded are dropped silently.
func (p *Publisher) PublishDomainEvent(ctx context.Context, evt events.DomainEvent, opts ...events.PublishOption) error {
	env := events.NewEnvelope(evt, opts...)
	if !slices.Contains(p.types, env.Type) {
		return nil
	}

	ctx, span := tracing.StartProducerSpan(ctx, p.topic, p.tracer)
	defer span.End()
	span.SetAttributes(attribute.String("event.type", string(env.Type)))

	value, err := json.Marshal(Message{
		Type:       env.Type,
		Key:        env.Key,
		OccurredAt: env.Timestamp,
		Payload:    env.Payload,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to serialize event")
		p.metrics.IncPublishError(ctx, p.topic)
		return fmt.Errorf("failed to serialize event %s: %w", env.Type, err)
	}

	msg := &sarama.ProducerMessage{
		Topic:   p.topic,
		Value:   sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{{Key: []byte(EventTypeHeader), Value: []byte(env.Type)}},
	}
	if env.Key != "" {
		msg.Key = sarama.StringEncoder(env.Key)
		span.SetAttributes(attribute.String("event.key", env.Key))
	}
	for k, v := range env.Headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	tracing.InjectTraceContext(ctx, msg)

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send message")
		p.metrics.IncPublishError(ctx, p.topic)
		return fmt.Errorf("failed to send message to kafka topic %s: %w", p.topic, err)
	}

	p.metrics.IncMessagePublished(ctx, p.topic)
	span.SetStatus(codes.Ok, "message published")
	p.logger.Debug(ctx, "Published message to Kafka",
		"event_type", env.Type,
		"partition", partition,
		"offset", offset,
		"key", env.Key,
	)
	return nil
}

// Close closes the underlying producer.
func (p *Publisher) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}
