package orchestration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/adminops/internal/domain/events"
	"github.com/ahrav/adminops/internal/domain/operation"
	"github.com/ahrav/adminops/pkg/common/logger"
)

// mockDomainEventPublisher implements events.DomainEventPublisher for testing.
type mockDomainEventPublisher struct{ mock.Mock }

func (m *mockDomainEventPublisher) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	args := m.Called(ctx, event, opts)
	return args.Error(0)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (p *recordingPublisher) PublishDomainEvent(_ context.Context, evt events.DomainEvent, _ ...events.PublishOption) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) ofType(t events.EventType) []events.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.DomainEvent
	for _, evt := range p.events {
		if evt.EventType() == t {
			out = append(out, evt)
		}
	}
	return out
}

// statusStep is one scripted status response.
type statusStep struct {
	report operation.StatusReport
	err    error
}

func running(percent int, output string) statusStep {
	return statusStep{report: operation.StatusReport{IsRunning: true, PercentComplete: percent, OutputDelta: output}}
}

func finished(percent int, output string) statusStep {
	return statusStep{report: operation.StatusReport{IsRunning: false, PercentComplete: percent, OutputDelta: output}}
}

func failing() statusStep { return statusStep{err: errors.New("connection refused")} }

// fakeBackend is a scripted operation.Backend. Status walks the script and
// repeats the last step once exhausted.
type fakeBackend struct {
	mu sync.Mutex

	jobID     string
	launchErr error
	// launchStarted is closed when Launch is entered; Launch then blocks until
	// releaseLaunch is closed. Both are optional.
	launchStarted chan struct{}
	releaseLaunch chan struct{}

	script      []statusStep
	statusCalls int

	cancelFailures int
	cancelCalls    []string
}

func newFakeBackend(script ...statusStep) *fakeBackend {
	return &fakeBackend{jobID: "job-1", script: script}
}

func (b *fakeBackend) Launch(ctx context.Context, _ operation.JobRequest) (string, error) {
	if b.launchStarted != nil {
		close(b.launchStarted)
	}
	if b.releaseLaunch != nil {
		select {
		case <-b.releaseLaunch:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.launchErr != nil {
		return "", b.launchErr
	}
	return b.jobID, nil
}

func (b *fakeBackend) Status(_ context.Context, _ string) (operation.StatusReport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusCalls++
	if len(b.script) == 0 {
		return operation.StatusReport{IsRunning: true}, nil
	}
	i := min(b.statusCalls, len(b.script)) - 1
	step := b.script[i]
	return step.report, step.err
}

func (b *fakeBackend) Cancel(_ context.Context, jobID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelCalls = append(b.cancelCalls, jobID)
	if b.cancelFailures > 0 {
		b.cancelFailures--
		return errors.New("backend busy")
	}
	return nil
}

func (b *fakeBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusCalls
}

func (b *fakeBackend) cancels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.cancelCalls...)
}

// mockTimeProvider helps control time in tests.
type mockTimeProvider struct {
	mu          sync.Mutex
	currentTime time.Time
}

func (m *mockTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

func (m *mockTimeProvider) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
}

func testPolling(maxPolls int) operation.PollPolicy {
	return operation.PollPolicy{
		Interval:             time.Millisecond,
		MaxPolls:             maxPolls,
		ErrorStreakThreshold: operation.DefaultErrorStreakThreshold,
	}
}

// batchBackupProfile mirrors the batch script SQL backup profile.
func batchBackupProfile(maxPolls int) operation.Profile {
	return operation.Profile{
		Kind:    operation.KindSQLBackup,
		Polling: testPolling(maxPolls),
		Stages: []operation.StageDefinition{
			{ID: "init", Label: "Initialize Backup", Order: 0},
			{
				ID: "resources", Label: "Sync Resources", Order: 1, Floor: 25,
				Profiles:        []string{"development"},
				Aliases:         []string{"Resource Synchronization", "File Synchronization"},
				EnterMarkers:    []string{`\[1/3\]`, `resource synchronization`},
				CompleteMarkers: []string{`resource synchronization complete`},
			},
			{
				ID: "database", Label: "Database Backup", Order: 2, Floor: 50,
				Aliases:         []string{"Database Backup"},
				EnterMarkers:    []string{`\[2/3\]`, `database backup`},
				CompleteMarkers: []string{`database backup complete`},
			},
			{
				ID: "dev", Label: "DEV Environment", Order: 3, Floor: 75,
				SkipWhen:        map[string]string{operation.ParamCreateDevEnvironment: "false"},
				Aliases:         []string{"DEV Environment"},
				EnterMarkers:    []string{`\[3/3\]`, `dev environment`},
				CompleteMarkers: []string{`dev created successfully`},
			},
			{ID: "complete", Label: "Backup Complete", Order: 4, Terminal: true},
		},
		CompletionMarkers: []string{`all operations completed`},
		ErrorMarkers:      []string{`\berror\b`},
		SuccessStages:     []string{"Completed", "SUCCESS"},
		ErrorStages:       []string{"Error"},
	}
}

// pushProfile is a small structured profile without output markers.
func pushProfile(maxPolls int) operation.Profile {
	return operation.Profile{
		Kind:    operation.KindGitPush,
		Polling: testPolling(maxPolls),
		Stages: []operation.StageDefinition{
			{ID: "init", Label: "Start", Order: 0},
			{ID: "push", Label: "Push to Remote", Order: 1, Floor: 10, Aliases: []string{"Pushing"}},
			{ID: "complete", Label: "Complete", Order: 2, Terminal: true},
		},
		SuccessStages: []string{"Completed"},
		ErrorStages:   []string{"Error"},
	}
}

type supervisorFixture struct {
	sup       *Supervisor
	backend   *fakeBackend
	publisher *recordingPublisher
	clock     *mockTimeProvider
}

func newSupervisorFixture(t *testing.T, backend *fakeBackend, cfg SupervisorConfig) *supervisorFixture {
	t.Helper()

	if cfg.Profiles == nil {
		cfg.Profiles = map[operation.Kind]operation.Profile{
			operation.KindSQLBackup: batchBackupProfile(100_000),
			operation.KindGitPush:   pushProfile(100_000),
		}
	}
	if cfg.Deployment == "" {
		cfg.Deployment = "development"
	}

	metrics, err := NewOperationMetrics(noopmetric.NewMeterProvider())
	require.NoError(t, err)

	clock := &mockTimeProvider{currentTime: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	publisher := new(recordingPublisher)
	sup := NewSupervisor(
		cfg,
		backend,
		publisher,
		metrics,
		noop.NewTracerProvider().Tracer("test"),
		logger.Noop(),
		WithTimeProvider(clock),
		WithCancelBackOff(func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
		}),
	)
	return &supervisorFixture{sup: sup, backend: backend, publisher: publisher, clock: clock}
}

func waitResult(t *testing.T, h *JobHandle) operation.OperationResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := h.Wait(ctx)
	require.NoError(t, err, "job did not finish in time")
	return res
}

func stageStates(res operation.OperationResult) map[string]operation.StageState {
	out := make(map[string]operation.StageState)
	for _, st := range res.StageResults() {
		out[st.ID] = st.State
	}
	return out
}
