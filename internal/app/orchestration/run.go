package orchestration

import (
	"github.com/ahrav/adminops/internal/domain/operation"
	"github.com/ahrav/adminops/pkg/common/timeutil"
)

// run is the supervisor's record of the job occupying the foreground slot.
// All fields are guarded by the supervisor mutex.
type run struct {
	req     operation.JobRequest
	profile operation.Profile
	parser  *Parser

	// launching is true while the backend launch call is in flight.
	launching bool
	cancelled bool
	finalized bool

	job       operation.Job
	handle    *JobHandle
	timeline  *operation.Timeline
	checklist *operation.Checklist
	snapshot  operation.ProgressSnapshot
	poller    *Poller

	polls int
	// pollsWithoutChange counts consecutive reports that left the percentage
	// untouched.
	pollsWithoutChange int
}

func newRun(
	req operation.JobRequest,
	profile operation.Profile,
	parser *Parser,
	tp timeutil.Provider,
) *run {
	return &run{
		req:       req,
		profile:   profile,
		parser:    parser,
		launching: true,
		timeline:  operation.NewTimeline(tp),
		checklist: operation.NewChecklist(profile.Stages, tp),
	}
}

// begin records the backend assigned id and puts the first visible stage in
// progress.
func (r *run) begin(jobID string, tp timeutil.Provider) error {
	r.launching = false
	r.job = operation.NewJob(jobID, r.req.Kind, r.timeline.StartedAt())
	r.handle = newJobHandle(jobID, r.req.Kind)
	r.snapshot = operation.InitialSnapshot(tp.Now())

	first, ok := r.checklist.FirstPending()
	if !ok {
		return nil
	}
	return r.checklist.Transition(first.ID, operation.StageActive, "job accepted as "+jobID)
}

// current reports whether the run may still be mutated by poll results.
func (r *run) current() bool { return !r.cancelled && !r.finalized }
