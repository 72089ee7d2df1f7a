package operation

import "time"

// Job is one accepted invocation of a long-running backend operation. It is
// owned by the supervisor's active run for its whole lifetime.
type Job struct {
	id        string
	kind      Kind
	startedAt time.Time
}

// NewJob creates a Job for an id issued by the backend.
func NewJob(id string, kind Kind, startedAt time.Time) Job {
	return Job{id: id, kind: kind, startedAt: startedAt}
}

// ID returns the opaque identifier issued by the backend.
func (j Job) ID() string { return j.id }

// Kind returns the operation kind.
func (j Job) Kind() Kind { return j.kind }

// StartedAt returns when the backend accepted the job.
func (j Job) StartedAt() time.Time { return j.startedAt }
