package operation

import "context"

// Backend is the remote collaborator that actually runs jobs. The
// orchestrator never knows what a job does; it only launches, observes and
// cancels it through this port.
type Backend interface {
	// Launch starts a job and returns the id the backend assigned to it.
	// A refusal is reported as an error, typically a *BackendError.
	Launch(ctx context.Context, req JobRequest) (string, error)

	// Status returns the current normalized status of a job.
	Status(ctx context.Context, jobID string) (StatusReport, error)

	// Cancel asks the backend to stop a job.
	Cancel(ctx context.Context, jobID string) error
}
