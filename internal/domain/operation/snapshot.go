package operation

import (
	"strings"
	"time"
)

// StatusReport is one normalized status response from the backend. Adapters
// are responsible for mapping wire formats onto it exactly once.
type StatusReport struct {
	IsRunning       bool
	PercentComplete int
	// Stage is an explicit stage name reported by structured collaborators.
	Stage   string
	Message string
	// OutputDelta is the output produced since the previous report.
	OutputDelta string
	// Output is the full output for collaborators that resend everything.
	Output      string
	ExitCode    *int
	ErrorDetail string
}

// ProgressSnapshot is the accumulated view of a job after applying every
// report received so far.
type ProgressSnapshot struct {
	PercentComplete int
	Stage           string
	Message         string
	// RawOutput only ever grows.
	RawOutput   string
	IsRunning   bool
	ErrorDetail string
	ExitCode    *int
	ObservedAt  time.Time
}

// InitialSnapshot returns the snapshot of a freshly launched job.
func InitialSnapshot(at time.Time) ProgressSnapshot {
	return ProgressSnapshot{IsRunning: true, ObservedAt: at}
}

// Next folds r into s. Percent never decreases and raw output is append-only;
// empty fields in r keep their previous values.
func (s ProgressSnapshot) Next(r StatusReport, at time.Time) ProgressSnapshot {
	next := s
	next.IsRunning = r.IsRunning
	next.ObservedAt = at
	next.PercentComplete = max(s.PercentComplete, clampPercent(r.PercentComplete))

	if r.Stage != "" {
		next.Stage = r.Stage
	}
	if r.Message != "" {
		next.Message = r.Message
	}
	if r.ErrorDetail != "" {
		next.ErrorDetail = r.ErrorDetail
	}
	if r.ExitCode != nil {
		code := *r.ExitCode
		next.ExitCode = &code
	}

	switch {
	case r.Output == "":
	case strings.HasPrefix(r.Output, s.RawOutput):
		next.RawOutput = r.Output
	case !strings.HasSuffix(s.RawOutput, r.Output):
		next.RawOutput = s.RawOutput + r.Output
	}
	next.RawOutput += r.OutputDelta

	return next
}

// WithPercent returns a copy with percent raised to at least p.
func (s ProgressSnapshot) WithPercent(p int) ProgressSnapshot {
	s.PercentComplete = max(s.PercentComplete, clampPercent(p))
	return s
}

// Failed reports whether the collaborator signalled failure through an exit code.
func (s ProgressSnapshot) Failed() bool {
	return s.ExitCode != nil && *s.ExitCode != 0
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
