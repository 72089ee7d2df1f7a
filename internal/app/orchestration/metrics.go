package orchestration

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/adminops/internal/domain/operation"
)

// OperationMetrics defines the metrics recorded by the supervisor.
type OperationMetrics interface {
	// Launch metrics.
	IncLaunches(ctx context.Context, kind operation.Kind)
	IncLaunchRejections(ctx context.Context, kind operation.Kind, reason operation.LaunchErrorReason)

	// Poll metrics.
	IncPolls(ctx context.Context, kind operation.Kind)
	IncPollErrors(ctx context.Context, kind operation.Kind)
	IncStallNotices(ctx context.Context, kind operation.Kind)

	// Lifecycle metrics.
	AddActiveOperations(ctx context.Context, delta int64)
	ObserveOutcome(ctx context.Context, kind operation.Kind, outcome operation.Outcome, duration time.Duration)
}

// operationMetrics implements OperationMetrics.
type operationMetrics struct {
	launches         metric.Int64Counter
	launchRejections metric.Int64Counter

	polls        metric.Int64Counter
	pollErrors   metric.Int64Counter
	stallNotices metric.Int64Counter

	activeOperations  metric.Int64UpDownCounter
	outcomes          metric.Int64Counter
	operationDuration metric.Float64Histogram
}

const namespace = "adminops"

// NewOperationMetrics creates a new operation metrics instance.
func NewOperationMetrics(mp metric.MeterProvider) (*operationMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(operationMetrics)
	var err error

	if m.launches, err = meter.Int64Counter(
		"operation_launches_total",
		metric.WithDescription("Total number of operations accepted by the backend"),
	); err != nil {
		return nil, err
	}

	if m.launchRejections, err = meter.Int64Counter(
		"operation_launch_rejections_total",
		metric.WithDescription("Total number of rejected launches"),
	); err != nil {
		return nil, err
	}

	if m.polls, err = meter.Int64Counter(
		"status_polls_total",
		metric.WithDescription("Total number of status fetches"),
	); err != nil {
		return nil, err
	}

	if m.pollErrors, err = meter.Int64Counter(
		"status_poll_errors_total",
		metric.WithDescription("Total number of failed status fetches"),
	); err != nil {
		return nil, err
	}

	if m.stallNotices, err = meter.Int64Counter(
		"operation_stall_notices_total",
		metric.WithDescription("Total number of stall warnings raised for running operations"),
	); err != nil {
		return nil, err
	}

	if m.activeOperations, err = meter.Int64UpDownCounter(
		"active_operations",
		metric.WithDescription("Number of operations currently occupying the foreground slot"),
	); err != nil {
		return nil, err
	}

	if m.outcomes, err = meter.Int64Counter(
		"operation_outcomes_total",
		metric.WithDescription("Total number of finished operations by outcome"),
	); err != nil {
		return nil, err
	}

	if m.operationDuration, err = meter.Float64Histogram(
		"operation_duration_seconds",
		metric.WithDescription("Wall clock duration of finished operations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 120, 300, 600, 900, 1800),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func kindAttr(kind operation.Kind) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("kind", kind.String()))
}

func (m *operationMetrics) IncLaunches(ctx context.Context, kind operation.Kind) {
	m.launches.Add(ctx, 1, kindAttr(kind))
}

func (m *operationMetrics) IncLaunchRejections(
	ctx context.Context,
	kind operation.Kind,
	reason operation.LaunchErrorReason,
) {
	m.launchRejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind.String()),
		attribute.String("reason", string(reason)),
	))
}

func (m *operationMetrics) IncPolls(ctx context.Context, kind operation.Kind) {
	m.polls.Add(ctx, 1, kindAttr(kind))
}

func (m *operationMetrics) IncPollErrors(ctx context.Context, kind operation.Kind) {
	m.pollErrors.Add(ctx, 1, kindAttr(kind))
}

func (m *operationMetrics) IncStallNotices(ctx context.Context, kind operation.Kind) {
	m.stallNotices.Add(ctx, 1, kindAttr(kind))
}

func (m *operationMetrics) AddActiveOperations(ctx context.Context, delta int64) {
	m.activeOperations.Add(ctx, delta)
}

func (m *operationMetrics) ObserveOutcome(
	ctx context.Context,
	kind operation.Kind,
	outcome operation.Outcome,
	duration time.Duration,
) {
	attrs := metric.WithAttributes(
		attribute.String("kind", kind.String()),
		attribute.String("outcome", outcome.String()),
	)
	m.outcomes.Add(ctx, 1, attrs)
	m.operationDuration.Record(ctx, duration.Seconds(), attrs)
}
