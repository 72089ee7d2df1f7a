package kafka

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PublisherMetrics tracks successful and failed message publishing.
type PublisherMetrics interface {
	IncMessagePublished(ctx context.Context, topic string)
	IncPublishError(ctx context.Context, topic string)
}

type publisherMetrics struct {
	published metric.Int64Counter
	errors    metric.Int64Counter
}

// NewPublisherMetrics creates the publisher instruments on mp.
func NewPublisherMetrics(mp metric.MeterProvider) (PublisherMetrics, error) {
	meter := mp.Meter("adminops", metric.WithInstrumentationVersion("v0.1.0"))

	var (
		m   publisherMetrics
		err error
	)
	if m.published, err = meter.Int64Counter(
		"kafka_messages_published_total",
		metric.WithDescription("Total number of events written to Kafka"),
	); err != nil {
		return nil, err
	}
	if m.errors, err = meter.Int64Counter(
		"kafka_publish_errors_total",
		metric.WithDescription("Total number of events that failed to reach Kafka"),
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *publisherMetrics) IncMessagePublished(ctx context.Context, topic string) {
	m.published.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *publisherMetrics) IncPublishError(ctx context.Context, topic string) {
	m.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}
