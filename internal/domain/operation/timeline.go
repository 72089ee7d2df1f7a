package operation

import (
	"time"

	"github.com/ahrav/adminops/pkg/common/timeutil"
)

// Timeline tracks temporal aspects of a job run.
type Timeline struct {
	startedAt    time.Time
	completedAt  time.Time
	lastUpdate   time.Time
	lastProgress time.Time
	timeProvider timeutil.Provider
}

// NewTimeline creates a new Timeline started at the provider's current time.
func NewTimeline(timeProvider timeutil.Provider) *Timeline {
	now := timeProvider.Now()
	return &Timeline{
		startedAt:    now,
		lastUpdate:   now,
		lastProgress: now,
		timeProvider: timeProvider,
	}
}

// StartedAt returns the time the job started.
func (t *Timeline) StartedAt() time.Time { return t.startedAt }

// CompletedAt returns the time the job ended.
func (t *Timeline) CompletedAt() time.Time { return t.completedAt }

// LastUpdate returns the time any snapshot was last applied.
func (t *Timeline) LastUpdate() time.Time { return t.lastUpdate }

// LastProgress returns the time the job last visibly moved forward.
func (t *Timeline) LastProgress() time.Time { return t.lastProgress }

// Elapsed returns the time since start, or the full run time once completed.
func (t *Timeline) Elapsed() time.Duration {
	if t.IsCompleted() {
		return t.completedAt.Sub(t.startedAt)
	}
	return t.timeProvider.Now().Sub(t.startedAt)
}

// MarkCompleted records completion time.
func (t *Timeline) MarkCompleted() {
	t.completedAt = t.timeProvider.Now()
	t.UpdateLastUpdate()
}

// UpdateLastUpdate updates the last update timestamp.
func (t *Timeline) UpdateLastUpdate() {
	t.lastUpdate = t.timeProvider.Now()
}

// MarkProgress records that the job visibly moved forward.
func (t *Timeline) MarkProgress() {
	t.lastProgress = t.timeProvider.Now()
	t.lastUpdate = t.lastProgress
}

// IsCompleted checks if the timeline has been marked as completed.
func (t *Timeline) IsCompleted() bool { return !t.completedAt.IsZero() }
