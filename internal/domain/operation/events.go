package operation

import (
	"time"

	"github.com/ahrav/adminops/internal/domain/events"
)

// Event types emitted over the lifetime of an operation.
const (
	EventTypeOperationLaunched    events.EventType = "OperationLaunched"
	EventTypeOperationProgressed  events.EventType = "OperationProgressed"
	EventTypeOperationCompleted   events.EventType = "OperationCompleted"
	EventTypeOperationStallNotice events.EventType = "OperationStallNotice"
)

// OperationLaunchedEvent is emitted once the backend accepted a job.
type OperationLaunchedEvent struct {
	occurredAt time.Time
	JobID      string            `json:"jobId"`
	Kind       Kind              `json:"kind"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Stages     []StageStatus     `json:"stages"`
}

// NewOperationLaunchedEvent creates a new operation launched event.
func NewOperationLaunchedEvent(job Job, params map[string]string, stages []StageStatus) OperationLaunchedEvent {
	return OperationLaunchedEvent{
		occurredAt: job.StartedAt(),
		JobID:      job.ID(),
		Kind:       job.Kind(),
		Parameters: params,
		Stages:     stages,
	}
}

func (e OperationLaunchedEvent) EventType() events.EventType { return EventTypeOperationLaunched }
func (e OperationLaunchedEvent) OccurredAt() time.Time       { return e.occurredAt }

// OperationProgressedEvent is emitted whenever an applied status report
// changed the percentage, the active stage or the message.
type OperationProgressedEvent struct {
	occurredAt      time.Time
	JobID           string `json:"jobId"`
	Kind            Kind   `json:"kind"`
	PercentComplete int    `json:"percentComplete"`
	Stage           string `json:"stage,omitempty"`
	Message         string `json:"message,omitempty"`
	PollCount       int    `json:"pollCount"`
}

// NewOperationProgressedEvent creates a new operation progressed event.
func NewOperationProgressedEvent(
	job Job,
	snap ProgressSnapshot,
	activeStage string,
	pollCount int,
) OperationProgressedEvent {
	return OperationProgressedEvent{
		occurredAt:      snap.ObservedAt,
		JobID:           job.ID(),
		Kind:            job.Kind(),
		PercentComplete: snap.PercentComplete,
		Stage:           activeStage,
		Message:         snap.Message,
		PollCount:       pollCount,
	}
}

func (e OperationProgressedEvent) EventType() events.EventType { return EventTypeOperationProgressed }
func (e OperationProgressedEvent) OccurredAt() time.Time       { return e.occurredAt }

// OperationStallNoticeEvent is emitted when a job made no visible progress for
// a number of consecutive polls. It is informational only.
type OperationStallNoticeEvent struct {
	occurredAt         time.Time
	JobID              string `json:"jobId"`
	Kind               Kind   `json:"kind"`
	PercentComplete    int    `json:"percentComplete"`
	PollsWithoutChange int    `json:"pollsWithoutChange"`
}

// NewOperationStallNoticeEvent creates a new stall notice.
func NewOperationStallNoticeEvent(job Job, percent, polls int, at time.Time) OperationStallNoticeEvent {
	return OperationStallNoticeEvent{
		occurredAt:         at,
		JobID:              job.ID(),
		Kind:               job.Kind(),
		PercentComplete:    percent,
		PollsWithoutChange: polls,
	}
}

func (e OperationStallNoticeEvent) EventType() events.EventType { return EventTypeOperationStallNotice }
func (e OperationStallNoticeEvent) OccurredAt() time.Time       { return e.occurredAt }

// OperationCompletedEvent carries the single result of a finished operation.
type OperationCompletedEvent struct {
	occurredAt time.Time
	Result     OperationResult `json:"result"`
}

// NewOperationCompletedEvent creates a new operation completed event.
func NewOperationCompletedEvent(result OperationResult) OperationCompletedEvent {
	return OperationCompletedEvent{occurredAt: result.EndedAt(), Result: result}
}

func (e OperationCompletedEvent) EventType() events.EventType { return EventTypeOperationCompleted }
func (e OperationCompletedEvent) OccurredAt() time.Time       { return e.occurredAt }
