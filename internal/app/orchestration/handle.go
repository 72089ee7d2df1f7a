package orchestration

import (
	"context"
	"sync"

	"github.com/ahrav/adminops/internal/domain/operation"
)

// JobHandle lets a caller wait for the single result of a launched job.
type JobHandle struct {
	jobID string
	kind  operation.Kind

	once   sync.Once
	done   chan struct{}
	result operation.OperationResult
}

func newJobHandle(jobID string, kind operation.Kind) *JobHandle {
	return &JobHandle{jobID: jobID, kind: kind, done: make(chan struct{})}
}

// JobID returns the backend assigned id.
func (h *JobHandle) JobID() string { return h.jobID }

// Kind returns the job kind.
func (h *JobHandle) Kind() operation.Kind { return h.kind }

// Done is closed once the result is available.
func (h *JobHandle) Done() <-chan struct{} { return h.done }

// Result returns the result if the job already finished.
func (h *JobHandle) Result() (operation.OperationResult, bool) {
	select {
	case <-h.done:
		return h.result, true
	default:
		return operation.OperationResult{}, false
	}
}

// Wait blocks until the job finished or ctx is done.
func (h *JobHandle) Wait(ctx context.Context) (operation.OperationResult, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return operation.OperationResult{}, ctx.Err()
	}
}

func (h *JobHandle) complete(res operation.OperationResult) {
	h.once.Do(func() {
		h.result = res
		close(h.done)
	})
}
