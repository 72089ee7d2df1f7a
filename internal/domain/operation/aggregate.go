package operation

import (
	"fmt"
	"time"
)

// TerminationCause records why observation of a job stopped.
type TerminationCause string

const (
	// CauseObserved means the poller saw a terminal status report.
	CauseObserved       TerminationCause = "observed"
	CauseCancelled      TerminationCause = "cancelled"
	CauseTimeout        TerminationCause = "timeout"
	CausePollingAborted TerminationCause = "polling-aborted"
)

// AggregateInput is everything the aggregator needs to produce a result.
type AggregateInput struct {
	Job       Job
	Stages    []StageStatus
	Snapshot  ProgressSnapshot
	Cause     TerminationCause
	PollCount int
	EndedAt   time.Time
	// Detail carries cause specific context, e.g. the last poll error.
	Detail string
}

// Aggregate produces the single OperationResult for a finished job.
//
// A cancelled job is never successful. Otherwise success requires 100% and no
// stage in error; a visible stage left pending or active means the job ended
// before walking its checklist.
func Aggregate(in AggregateInput) OperationResult {
	res := OperationResult{
		jobID:           in.Job.ID(),
		kind:            in.Job.Kind(),
		startedAt:       in.Job.StartedAt(),
		endedAt:         in.EndedAt,
		percentComplete: in.Snapshot.PercentComplete,
		pollCount:       in.PollCount,
		exitCode:        in.Snapshot.ExitCode,
	}
	for _, st := range in.Stages {
		if !st.Hidden {
			res.stages = append(res.stages, st)
		}
	}

	switch in.Cause {
	case CauseCancelled:
		res.outcome, res.message = OutcomeCancelled, MessageCancelled
		res.detail = "operation was cancelled before completion"
		return res
	case CauseTimeout:
		res.outcome = OutcomeTimeout
		res.message = fmt.Sprintf("timed out after %d polls", in.PollCount)
		res.detail = in.Detail
		return res
	case CausePollingAborted:
		res.outcome = OutcomePollingAborted
		res.message = "status polling aborted after repeated failures"
		res.detail = in.Detail
		return res
	}

	if st, ok := firstInState(res.stages, StageError); ok {
		res.outcome = OutcomeJobError
		res.message = fmt.Sprintf("stage %q failed", st.Label)
		res.detail = firstNonEmpty(in.Snapshot.ErrorDetail, st.Message, in.Snapshot.Message)
		return res
	}
	if in.Snapshot.Failed() {
		res.outcome = OutcomeJobError
		res.message = fmt.Sprintf("process exited with code %d", *in.Snapshot.ExitCode)
		res.detail = firstNonEmpty(in.Snapshot.ErrorDetail, in.Snapshot.Message)
		return res
	}

	_, pending := firstInState(res.stages, StagePending)
	_, active := firstInState(res.stages, StageActive)
	if pending || active || in.Snapshot.PercentComplete != 100 {
		res.outcome = OutcomeUnexpectedTermination
		res.message = MessageEndedUnexpectedly
		res.detail = firstNonEmpty(in.Snapshot.ErrorDetail, in.Snapshot.Message,
			"the process terminated before completion")
		return res
	}

	res.success = true
	res.outcome = OutcomeSucceeded
	res.message = firstNonEmpty(in.Snapshot.Message, "completed successfully")
	return res
}

func firstInState(stages []StageStatus, state StageState) (StageStatus, bool) {
	for _, st := range stages {
		if st.State == state {
			return st, true
		}
	}
	return StageStatus{}, false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
