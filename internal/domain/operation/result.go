package operation

import (
	"encoding/json"
	"slices"
	"time"
)

// Outcome classifies how an operation ended.
type Outcome string

const (
	OutcomeSucceeded             Outcome = "succeeded"
	OutcomeJobError              Outcome = "job-error"
	OutcomeTimeout               Outcome = "timeout"
	OutcomePollingAborted        Outcome = "polling-aborted"
	OutcomeCancelled             Outcome = "cancelled"
	OutcomeUnexpectedTermination Outcome = "unexpected-termination"
	OutcomeLaunchRejected        Outcome = "launch-rejected"
)

func (o Outcome) String() string { return string(o) }

// Exit codes of the operator CLI.
const (
	ExitSuccess   = 0
	ExitFailure   = 1
	ExitTimeout   = 2
	ExitCancelled = 3
)

// ExitCode maps an outcome to the operator CLI exit code.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeSucceeded:
		return ExitSuccess
	case OutcomeTimeout:
		return ExitTimeout
	case OutcomeCancelled:
		return ExitCancelled
	default:
		return ExitFailure
	}
}

// Well known result messages.
const (
	MessageCancelled         = "cancelled by user"
	MessageEndedUnexpectedly = "ended unexpectedly"
)

// OperationResult is the immutable record of how a job ended. It is the only
// artifact retained after a job finishes.
type OperationResult struct {
	jobID           string
	kind            Kind
	success         bool
	outcome         Outcome
	message         string
	detail          string
	exitCode        *int
	startedAt       time.Time
	endedAt         time.Time
	percentComplete int
	pollCount       int
	stages          []StageStatus
}

func (r OperationResult) JobID() string           { return r.jobID }
func (r OperationResult) Kind() Kind              { return r.kind }
func (r OperationResult) Success() bool           { return r.success }
func (r OperationResult) Outcome() Outcome        { return r.outcome }
func (r OperationResult) Message() string         { return r.message }
func (r OperationResult) Detail() string          { return r.detail }
func (r OperationResult) StartedAt() time.Time    { return r.startedAt }
func (r OperationResult) EndedAt() time.Time      { return r.endedAt }
func (r OperationResult) PercentComplete() int    { return r.percentComplete }
func (r OperationResult) PollCount() int          { return r.pollCount }
func (r OperationResult) Duration() time.Duration { return r.endedAt.Sub(r.startedAt) }

// ExitCode returns the remote process exit code, if one was reported.
func (r OperationResult) ExitCode() (int, bool) {
	if r.exitCode == nil {
		return 0, false
	}
	return *r.exitCode, true
}

// StageResults returns the ordered final state of every visible stage.
func (r OperationResult) StageResults() []StageStatus { return slices.Clone(r.stages) }

// IsZero reports whether r is the zero value.
func (r OperationResult) IsZero() bool { return r.outcome == "" }

type resultJSON struct {
	JobID           string        `json:"jobId,omitempty"`
	Kind            Kind          `json:"kind"`
	Success         bool          `json:"success"`
	Outcome         Outcome       `json:"outcome"`
	Message         string        `json:"message"`
	Detail          string        `json:"detail,omitempty"`
	ExitCode        *int          `json:"exitCode,omitempty"`
	StartedAt       time.Time     `json:"startedAt"`
	EndedAt         time.Time     `json:"endedAt"`
	PercentComplete int           `json:"percentComplete"`
	PollCount       int           `json:"pollCount"`
	Stages          []StageStatus `json:"stageResults"`
}

// MarshalJSON implements json.Marshaler.
func (r OperationResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		JobID:           r.jobID,
		Kind:            r.kind,
		Success:         r.success,
		Outcome:         r.outcome,
		Message:         r.message,
		Detail:          r.detail,
		ExitCode:        r.exitCode,
		StartedAt:       r.startedAt,
		EndedAt:         r.endedAt,
		PercentComplete: r.percentComplete,
		PollCount:       r.pollCount,
		Stages:          r.stages,
	})
}

// LaunchRejectedResult builds the result recorded for a launch that never
// produced a job.
func LaunchRejectedResult(kind Kind, err error, at time.Time) OperationResult {
	return OperationResult{
		kind:      kind,
		outcome:   OutcomeLaunchRejected,
		message:   "launch rejected",
		detail:    err.Error(),
		startedAt: at,
		endedAt:   at,
	}
}
