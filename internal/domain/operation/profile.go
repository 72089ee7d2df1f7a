package operation

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// DefaultErrorStreakThreshold is the number of consecutive failed status
// fetches tolerated before polling is aborted.
const DefaultErrorStreakThreshold = 5

// PollPolicy bounds how a job of a given kind is observed.
type PollPolicy struct {
	Interval             time.Duration
	MaxPolls             int
	ErrorStreakThreshold int
}

// Budget returns the wall clock time the policy allows before a timeout.
func (p PollPolicy) Budget() time.Duration {
	return time.Duration(p.MaxPolls) * p.Interval
}

// Validate checks the policy bounds.
func (p PollPolicy) Validate() error {
	if p.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", p.Interval)
	}
	if p.MaxPolls <= 0 {
		return fmt.Errorf("max polls must be positive, got %d", p.MaxPolls)
	}
	if p.ErrorStreakThreshold <= 0 {
		return fmt.Errorf("error streak threshold must be positive, got %d", p.ErrorStreakThreshold)
	}
	return nil
}

// Profile is everything the orchestrator knows about a kind: its ordered
// stages, its polling budget, and the markers the parser looks for.
type Profile struct {
	Kind    Kind
	Polling PollPolicy
	Stages  []StageDefinition

	// CompletionMarkers signal that the whole job finished successfully.
	CompletionMarkers []string
	// ErrorMarkers signal failure once the remote process stopped running.
	ErrorMarkers []string

	// SuccessStages and ErrorStages are explicit stage names reported by
	// structured collaborators for the two job-level outcomes.
	SuccessStages []string
	ErrorStages   []string
}

// Resolve returns a copy of the profile with stages ordered and the Hidden
// flag computed for the deployment profile and request parameters.
func (p Profile) Resolve(deployment string, params map[string]string) Profile {
	out := p
	out.Stages = make([]StageDefinition, len(p.Stages))
	for i, st := range p.Stages {
		st = st.clone()
		st.Hidden = st.Hidden || !st.appliesTo(deployment, params)
		out.Stages[i] = st
	}
	slices.SortStableFunc(out.Stages, func(a, b StageDefinition) int { return a.Order - b.Order })

	out.CompletionMarkers = slices.Clone(p.CompletionMarkers)
	out.ErrorMarkers = slices.Clone(p.ErrorMarkers)
	out.SuccessStages = slices.Clone(p.SuccessStages)
	out.ErrorStages = slices.Clone(p.ErrorStages)
	return out
}

// Stage returns the definition with the given id.
func (p Profile) Stage(id string) (StageDefinition, bool) {
	for _, st := range p.Stages {
		if st.ID == id {
			return st, true
		}
	}
	return StageDefinition{}, false
}

// Validate checks that a profile can drive a checklist.
func (p Profile) Validate() error {
	if !p.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind)
	}
	if err := p.Polling.Validate(); err != nil {
		return fmt.Errorf("profile %s: %w", p.Kind, err)
	}
	if len(p.Stages) == 0 {
		return fmt.Errorf("profile %s: at least one stage is required", p.Kind)
	}

	seen := make(map[string]struct{}, len(p.Stages))
	var errs []error
	for _, st := range p.Stages {
		if st.ID == "" {
			errs = append(errs, fmt.Errorf("profile %s: stage with empty id", p.Kind))
			continue
		}
		if _, dup := seen[st.ID]; dup {
			errs = append(errs, fmt.Errorf("profile %s: duplicate stage %q", p.Kind, st.ID))
		}
		seen[st.ID] = struct{}{}
		if st.Floor < 0 || st.Floor > 100 {
			errs = append(errs, fmt.Errorf("profile %s: stage %q floor %d out of range", p.Kind, st.ID, st.Floor))
		}
	}
	return errors.Join(errs...)
}
