// Package progressreporter publishes the in-flight progress of admin
// operations as domain events. It implements orchestration.ProgressReporter so
// progress can reach observers across process boundaries without the
// supervisor knowing about the transport.
package progressreporter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/adminops/internal/app/orchestration"
	"github.com/ahrav/adminops/internal/domain/events"
	"github.com/ahrav/adminops/internal/domain/operation"
)

var _ orchestration.ProgressReporter = (*DomainEventProgressReporter)(nil)

// SessionHeader names the header carrying the reporting session id.
const SessionHeader = "adminops-session"

// DomainEventProgressReporter publishes domain events for operation progress
// updates and stall notices.
type DomainEventProgressReporter struct {
	sessionID string

	domainPublisher events.DomainEventPublisher
	tracer          trace.Tracer
}

// New creates a new DomainEventProgressReporter. sessionID identifies the
// process reporting progress and is attached to every event as a header.
func New(sessionID string, domainPublisher events.DomainEventPublisher, tracer trace.Tracer) *DomainEventProgressReporter {
	return &DomainEventProgressReporter{sessionID: sessionID, domainPublisher: domainPublisher, tracer: tracer}
}

// ReportProgress publishes an OperationProgressedEvent keyed by the job id.
func (r *DomainEventProgressReporter) ReportProgress(ctx context.Context, evt operation.OperationProgressedEvent) error {
	ctx, span := r.tracer.Start(
		ctx,
		"progress_reporter.report_progress",
		trace.WithAttributes(
			attribute.String("session_id", r.sessionID),
			attribute.String("job_id", evt.JobID),
			attribute.String("kind", evt.Kind.String()),
			attribute.Int("percent_complete", evt.PercentComplete),
			attribute.Int("poll_count", evt.PollCount),
		),
	)
	defer span.End()

	if err := r.publish(ctx, evt, evt.JobID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish operation progressed event")
		return fmt.Errorf("failed to publish operation progressed event: %w", err)
	}
	span.SetStatus(codes.Ok, "operation progressed event published")
	span.AddEvent("operation_progressed_event_published")

	return nil
}

// ReportStall publishes an OperationStallNoticeEvent keyed by the job id.
func (r *DomainEventProgressReporter) ReportStall(ctx context.Context, evt operation.OperationStallNoticeEvent) error {
	ctx, span := r.tracer.Start(
		ctx,
		"progress_reporter.report_stall",
		trace.WithAttributes(
			attribute.String("session_id", r.sessionID),
			attribute.String("job_id", evt.JobID),
			attribute.Int("polls_without_change", evt.PollsWithoutChange),
		),
	)
	defer span.End()

	if err := r.publish(ctx, evt, evt.JobID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish stall notice")
		return fmt.Errorf("failed to publish stall notice: %w", err)
	}
	span.SetStatus(codes.Ok, "stall notice published")
	span.AddEvent("stall_notice_published")

	return nil
}

func (r *DomainEventProgressReporter) publish(ctx context.Context, evt events.DomainEvent, key string) error {
	return r.domainPublisher.PublishDomainEvent(
		ctx,
		evt,
		events.WithKey(key),
		events.WithHeaders(map[string]string{SessionHeader: r.sessionID}),
	)
}
