package orchestration

import (
	"time"

	"github.com/ahrav/adminops/internal/domain/operation"
)

// ProgressView is a point in time view of the active operation.
type ProgressView struct {
	JobID           string                  `json:"jobId"`
	Kind            operation.Kind          `json:"kind"`
	PercentComplete int                     `json:"percentComplete"`
	CurrentStage    string                  `json:"currentStage,omitempty"`
	Message         string                  `json:"message,omitempty"`
	PollCount       int                     `json:"pollCount"`
	StartedAt       time.Time               `json:"startedAt"`
	Elapsed         time.Duration           `json:"elapsed"`
	LastProgressAt  time.Time               `json:"lastProgressAt"`
	Stages          []operation.StageStatus `json:"stages"`

	EstimatedTimeRemaining string `json:"estimatedTimeRemaining"`
}

// Progress returns a view of the active operation. It returns false when no
// job is active or its launch is still in flight.
func (s *Supervisor) Progress() (ProgressView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.active
	if r == nil || r.launching {
		return ProgressView{}, false
	}

	elapsed := r.timeline.Elapsed()
	view := ProgressView{
		JobID:           r.job.ID(),
		Kind:            r.job.Kind(),
		PercentComplete: r.snapshot.PercentComplete,
		Message:         r.snapshot.Message,
		PollCount:       r.polls,
		StartedAt:       r.timeline.StartedAt(),
		Elapsed:         elapsed,
		LastProgressAt:  r.timeline.LastProgress(),
		Stages:          r.checklist.Visible(),
		EstimatedTimeRemaining: operation.EstimateRemaining(
			elapsed, r.snapshot.PercentComplete, s.cfg.ETAAlmostDone),
	}
	if st, ok := r.checklist.Active(); ok {
		view.CurrentStage = st.ID
	}
	return view, true
}
