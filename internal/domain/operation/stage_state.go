package operation

import "fmt"

// StageState represents the execution state of a single checklist stage.
type StageState string

const (
	// StagePending indicates the stage has not started.
	StagePending StageState = "pending"

	// StageActive indicates the stage is currently executing.
	StageActive StageState = "active"

	// StageCompleted indicates the stage finished successfully.
	StageCompleted StageState = "completed"

	// StageError indicates the stage failed.
	StageError StageState = "error"

	// StageCancelled indicates the stage was abandoned by a user cancellation.
	StageCancelled StageState = "cancelled"
)

func (s StageState) String() string { return string(s) }

// IsTerminal reports whether no further transition is permitted from s.
func (s StageState) IsTerminal() bool {
	return s == StageCompleted || s == StageError || s == StageCancelled
}

// ParseStageState converts a string to a StageState. Unknown values return "".
func ParseStageState(s string) StageState {
	switch s {
	case "pending", "PENDING":
		return StagePending
	case "active", "ACTIVE":
		return StageActive
	case "completed", "COMPLETED":
		return StageCompleted
	case "error", "ERROR":
		return StageError
	case "cancelled", "CANCELLED":
		return StageCancelled
	default:
		return ""
	}
}

// ValidateTransition checks if a state transition is valid and returns an error if not.
func (s StageState) ValidateTransition(target StageState) error {
	if s.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrStageTerminal, s)
	}
	if !s.isValidTransition(target) {
		return fmt.Errorf("%w: from %s to %s", ErrInvalidStageTransition, s, target)
	}
	return nil
}

// isValidTransition enforces one-directional movement: active is only entered
// from pending and terminal states are never left.
func (s StageState) isValidTransition(target StageState) bool {
	switch s {
	case StagePending:
		return target == StageActive || target == StageCompleted ||
			target == StageError || target == StageCancelled
	case StageActive:
		return target == StageCompleted || target == StageError || target == StageCancelled
	default:
		return false
	}
}
