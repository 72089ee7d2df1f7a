package orchestration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/adminops/internal/domain/operation"
	"github.com/ahrav/adminops/pkg/common/logger"
)

// recordingHandler records poller callbacks. stopOn returns true from
// HandleReport for the given poll number.
type recordingHandler struct {
	mu      sync.Mutex
	stopOn  int
	reports []int
	errs    []int
	streaks []int
	stops   []PollStop
}

func (h *recordingHandler) HandleReport(_ context.Context, poll int, _ operation.StatusReport) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reports = append(h.reports, poll)
	return h.stopOn > 0 && poll == h.stopOn
}

func (h *recordingHandler) HandlePollError(_ context.Context, poll, streak int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, poll)
	h.streaks = append(h.streaks, streak)
}

func (h *recordingHandler) HandleStop(_ context.Context, stop PollStop) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops = append(h.stops, stop)
}

func newTestPoller(cfg PollerConfig, fetcher StatusFetcher, h PollHandler) *Poller {
	return NewPoller("job-1", cfg, fetcher, h, noop.NewTracerProvider().Tracer("test"), logger.Noop())
}

func waitDone(t *testing.T, p *Poller) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestPoller(t *testing.T) {
	tests := []struct {
		name        string
		script      []statusStep
		maxPolls    int
		stopOn      int
		wantFetches int
		wantReports []int
		wantErrs    []int
		wantStop    *PollStop
	}{
		{
			name:        "times out after exactly max polls",
			script:      []statusStep{running(1, "")},
			maxPolls:    3,
			wantFetches: 3,
			wantReports: []int{1, 2, 3},
			wantStop:    &PollStop{Reason: StopReasonTimeout, Polls: 3},
		},
		{
			name:        "terminal report stops without callback",
			script:      []statusStep{running(1, ""), finished(100, "")},
			maxPolls:    10,
			stopOn:      2,
			wantFetches: 2,
			wantReports: []int{1, 2},
		},
		{
			name:        "five consecutive failures abort",
			script:      []statusStep{running(1, ""), failing()},
			maxPolls:    100,
			wantFetches: 6,
			wantReports: []int{1},
			wantErrs:    []int{2, 3, 4, 5, 6},
			wantStop:    &PollStop{Reason: StopReasonAborted, Polls: 6},
		},
		{
			name: "four failures then success reset the streak",
			script: []statusStep{
				failing(), failing(), failing(), failing(),
				running(10, ""), failing(), failing(), running(20, ""),
			},
			maxPolls:    8,
			wantFetches: 8,
			wantReports: []int{5, 8},
			wantErrs:    []int{1, 2, 3, 4, 6, 7},
			wantStop:    &PollStop{Reason: StopReasonTimeout, Polls: 8},
		},
		{
			name:        "single poll budget",
			script:      []statusStep{failing()},
			maxPolls:    1,
			wantFetches: 1,
			wantErrs:    []int{1},
			wantStop:    &PollStop{Reason: StopReasonTimeout, Polls: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend(tt.script...)
			h := &recordingHandler{stopOn: tt.stopOn}
			p := newTestPoller(PollerConfig{Interval: time.Millisecond, MaxPolls: tt.maxPolls}, backend, h)

			p.Start(context.Background())
			waitDone(t, p)

			assert.Equal(t, tt.wantFetches, backend.calls())
			assert.Equal(t, tt.wantReports, h.reports)
			assert.Equal(t, tt.wantErrs, h.errs)
			if tt.wantStop == nil {
				assert.Empty(t, h.stops)
				return
			}
			require.Len(t, h.stops, 1)
			assert.Equal(t, tt.wantStop.Reason, h.stops[0].Reason)
			assert.Equal(t, tt.wantStop.Polls, h.stops[0].Polls)
		})
	}
}

func TestPoller_ErrorsAreTransient(t *testing.T) {
	h := &recordingHandler{}
	p := newTestPoller(PollerConfig{Interval: time.Millisecond, MaxPolls: 1}, newFakeBackend(failing()), h)

	p.Start(context.Background())
	waitDone(t, p)

	require.Len(t, h.stops, 1)
	assert.ErrorIs(t, h.stops[0].LastErr, operation.ErrPollTransient)
	assert.Equal(t, []int{1}, h.streaks)
}

func TestPoller_StopDuringWait(t *testing.T) {
	backend := newFakeBackend(running(1, ""))
	h := &recordingHandler{}
	p := newTestPoller(PollerConfig{Interval: time.Hour, MaxPolls: 10}, backend, h)

	p.Start(context.Background())
	require.Eventually(t, func() bool { return backend.calls() == 1 }, time.Second, time.Millisecond)

	p.Stop()
	p.Stop()
	waitDone(t, p)

	assert.Equal(t, 1, backend.calls())
	assert.Empty(t, h.stops, "an external stop is not reported")
}

func TestPoller_StopBeforeStart(t *testing.T) {
	backend := newFakeBackend(running(1, ""))
	p := newTestPoller(PollerConfig{Interval: time.Millisecond, MaxPolls: 10}, backend, &recordingHandler{})

	p.Stop()
	p.Start(context.Background())
	waitDone(t, p)
	assert.Zero(t, backend.calls())
}

// blockingFetcher blocks every fetch until its context is cancelled and then
// returns a report anyway, like a backend that ignores cancellation.
type blockingFetcher struct{ entered chan struct{} }

func (f *blockingFetcher) Status(ctx context.Context, _ string) (operation.StatusReport, error) {
	close(f.entered)
	<-ctx.Done()
	return operation.StatusReport{IsRunning: false, PercentComplete: 100}, nil
}

func TestPoller_InFlightResultDroppedAfterStop(t *testing.T) {
	f := &blockingFetcher{entered: make(chan struct{})}
	h := &recordingHandler{}
	p := newTestPoller(PollerConfig{Interval: time.Millisecond, MaxPolls: 10}, f, h)

	p.Start(context.Background())
	<-f.entered
	p.Stop()
	waitDone(t, p)

	assert.Empty(t, h.reports)
	assert.Empty(t, h.stops)
}
