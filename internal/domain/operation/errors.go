package operation

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind is returned when a kind name is not recognized.
	ErrUnknownKind = errors.New("unknown operation kind")

	// ErrAlreadyActive is returned by a launch while another job occupies the
	// foreground slot.
	ErrAlreadyActive = errors.New("another operation is already active")

	// ErrStageTerminal is returned when mutating a stage that already reached
	// completed, error or cancelled.
	ErrStageTerminal = errors.New("stage is in a terminal state")

	// ErrInvalidStageTransition is returned for a transition the state machine does not allow.
	ErrInvalidStageTransition = errors.New("invalid stage transition")

	// ErrStageAlreadyActive is returned by an exclusive activation while another stage is active.
	ErrStageAlreadyActive = errors.New("another stage is already active")

	// ErrUnknownStage is returned for a stage id not present in the checklist.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrStageHidden is returned when transitioning a stage that does not apply to this job.
	ErrStageHidden = errors.New("stage is hidden for this job")

	// ErrPollTransient marks a single failed status fetch. It is retried locally
	// and never surfaced to callers on its own.
	ErrPollTransient = errors.New("transient status poll failure")

	// ErrInvalidRequest is returned when a job request fails validation.
	ErrInvalidRequest = errors.New("invalid job request")
)

// LaunchErrorReason classifies why a launch was rejected.
type LaunchErrorReason string

const (
	LaunchReasonAlreadyActive  LaunchErrorReason = "already-active"
	LaunchReasonInvalidRequest LaunchErrorReason = "invalid-request"
	LaunchReasonBackendRefused LaunchErrorReason = "backend-refused"
)

// LaunchError is returned by Launch for every LaunchRejected condition.
type LaunchError struct {
	Reason LaunchErrorReason
	Kind   Kind
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s rejected (%s): %v", e.Kind, e.Reason, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// NewLaunchError wraps err as a LaunchError.
func NewLaunchError(kind Kind, reason LaunchErrorReason, err error) *LaunchError {
	return &LaunchError{Reason: reason, Kind: kind, Err: err}
}

// BackendError is returned by backend adapters when the remote side answered
// with an error payload rather than failing at the transport level.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend responded %d: %s", e.StatusCode, e.Message)
}
