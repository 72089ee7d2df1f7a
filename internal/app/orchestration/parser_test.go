package orchestration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/adminops/internal/domain/operation"
)

type parserFixture struct {
	parser    *Parser
	checklist *operation.Checklist
	snap      operation.ProgressSnapshot
	at        time.Time
}

func newParserFixture(t *testing.T, p operation.Profile, deployment string, params map[string]string) *parserFixture {
	t.Helper()
	resolved := p.Resolve(deployment, params)
	parser, err := NewParser(resolved)
	require.NoError(t, err)

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tp := &mockTimeProvider{currentTime: at}
	return &parserFixture{
		parser:    parser,
		checklist: operation.NewChecklist(resolved.Stages, tp),
		snap:      operation.InitialSnapshot(at),
		at:        at,
	}
}

func (f *parserFixture) apply(t *testing.T, r operation.StatusReport) ParseOutcome {
	t.Helper()
	snap, out, err := f.parser.Apply(f.checklist, f.snap.Next(r, f.at))
	require.NoError(t, err)
	f.snap = snap
	return out
}

func (f *parserFixture) state(id string) operation.StageState {
	st, _ := f.checklist.Get(id)
	return st.State
}

func TestParser_BatchMarkers(t *testing.T) {
	f := newParserFixture(t, batchBackupProfile(10), "development", nil)

	steps := []struct {
		output      string
		wantActive  string
		wantPercent int
	}{
		{output: "Starting backup\n", wantActive: "", wantPercent: 0},
		{output: "[1/3] Resource Synchronization\n", wantActive: "resources", wantPercent: 25},
		{output: "[2/3] Database Backup\n", wantActive: "database", wantPercent: 50},
		{output: "[3/3] DEV Environment\n", wantActive: "dev", wantPercent: 75},
	}
	for _, step := range steps {
		f.apply(t, operation.StatusReport{IsRunning: true, OutputDelta: step.output})
		active, ok := f.checklist.Active()
		if step.wantActive == "" {
			assert.False(t, ok)
		} else {
			require.True(t, ok)
			assert.Equal(t, step.wantActive, active.ID)
		}
		assert.Equal(t, step.wantPercent, f.snap.PercentComplete)
	}
	assert.Equal(t, operation.StageCompleted, f.state("init"))
	assert.Equal(t, operation.StageCompleted, f.state("resources"))
	assert.Equal(t, operation.StageCompleted, f.state("database"))

	out := f.apply(t, operation.StatusReport{IsRunning: true, OutputDelta: "All operations completed\n"})
	assert.True(t, out.Completed)
	assert.True(t, out.Terminal())
	assert.Equal(t, 100, f.snap.PercentComplete)
	assert.Equal(t, operation.StageCompleted, f.state("dev"))
	assert.Equal(t, operation.StageCompleted, f.state("complete"))
}

func TestParser_PercentIsRunningMax(t *testing.T) {
	f := newParserFixture(t, batchBackupProfile(10), "production", nil)

	f.apply(t, operation.StatusReport{IsRunning: true, PercentComplete: 70, OutputDelta: "[2/3] database backup\n"})
	assert.Equal(t, 70, f.snap.PercentComplete, "floor below reported percent")

	f.apply(t, operation.StatusReport{IsRunning: true, PercentComplete: 30})
	assert.Equal(t, 70, f.snap.PercentComplete)

	f.apply(t, operation.StatusReport{IsRunning: true, OutputDelta: "[3/3] dev environment\n"})
	assert.Equal(t, 75, f.snap.PercentComplete)
}

func TestParser_HiddenStageMarkersIgnored(t *testing.T) {
	f := newParserFixture(t, batchBackupProfile(10), "production",
		map[string]string{operation.ParamCreateDevEnvironment: "false"})

	out := f.apply(t, operation.StatusReport{
		IsRunning:   true,
		Stage:       "Resource Synchronization",
		OutputDelta: "[1/3] resource synchronization\n[3/3] dev environment\n",
	})
	assert.False(t, out.Changed)
	assert.Equal(t, 0, f.snap.PercentComplete)
	assert.Equal(t, operation.StagePending, f.state("resources"))
	assert.Equal(t, operation.StagePending, f.state("dev"))
}

func TestParser_CompleteMarker(t *testing.T) {
	f := newParserFixture(t, batchBackupProfile(10), "production", nil)

	f.apply(t, operation.StatusReport{IsRunning: true, OutputDelta: "[2/3] database backup\n"})
	f.apply(t, operation.StatusReport{IsRunning: true, OutputDelta: "database backup complete\n"})

	assert.Equal(t, operation.StageCompleted, f.state("database"))
	_, active := f.checklist.Active()
	assert.False(t, active)
}

func TestParser_ErrorDetection(t *testing.T) {
	exit := func(code int) *int { return &code }

	tests := []struct {
		name       string
		reports    []operation.StatusReport
		wantFailed bool
		wantStage  string
	}{
		{
			name: "error marker while running is ignored",
			reports: []operation.StatusReport{
				{IsRunning: true, OutputDelta: "[2/3] database backup\nerror: retrying\n"},
			},
		},
		{
			name: "error marker after exit fails active stage",
			reports: []operation.StatusReport{
				{IsRunning: true, OutputDelta: "[2/3] database backup\n"},
				{IsRunning: false, OutputDelta: "Error: login failed\n"},
			},
			wantFailed: true,
			wantStage:  "database",
		},
		{
			name: "error marker without active stage fails first pending stage",
			reports: []operation.StatusReport{
				{IsRunning: false, OutputDelta: "fatal error\n"},
			},
			wantFailed: true,
			wantStage:  "init",
		},
		{
			name: "word containing error is not a marker",
			reports: []operation.StatusReport{
				{IsRunning: false, OutputDelta: "[2/3] database backup\nerrors=0\n"},
			},
		},
		{
			name: "non zero exit code",
			reports: []operation.StatusReport{
				{IsRunning: true, OutputDelta: "[2/3] database backup\n"},
				{IsRunning: false, ExitCode: exit(5)},
			},
			wantFailed: true,
			wantStage:  "database",
		},
		{
			name: "explicit error stage while running",
			reports: []operation.StatusReport{
				{IsRunning: true, Stage: "Database Backup"},
				{IsRunning: true, Stage: "Error", Message: "disk full"},
			},
			wantFailed: true,
			wantStage:  "database",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newParserFixture(t, batchBackupProfile(10), "production", nil)

			var out ParseOutcome
			for _, r := range tt.reports {
				out = f.apply(t, r)
			}
			assert.Equal(t, tt.wantFailed, out.Failed)
			assert.Equal(t, tt.wantFailed, f.parser.Halted())
			if tt.wantFailed {
				assert.Equal(t, tt.wantStage, out.FailedStage)
				assert.Equal(t, operation.StageError, f.state(tt.wantStage))
			}
		})
	}
}

func TestParser_HaltedIgnoresLaterSnapshots(t *testing.T) {
	f := newParserFixture(t, batchBackupProfile(10), "production", nil)
	f.apply(t, operation.StatusReport{IsRunning: true, Stage: "Error", Message: "boom"})
	before := f.checklist.States()

	out := f.apply(t, operation.StatusReport{IsRunning: true, OutputDelta: "[2/3] database backup\nall operations completed\n"})
	assert.True(t, out.Failed)
	assert.False(t, out.Changed)
	assert.Equal(t, before, f.checklist.States())
}

func TestParser_StructuredStages(t *testing.T) {
	f := newParserFixture(t, batchBackupProfile(10), "development", nil)

	f.apply(t, operation.StatusReport{IsRunning: true, Stage: "File Synchronization"})
	assert.Equal(t, operation.StageActive, f.state("resources"))
	assert.Equal(t, 25, f.snap.PercentComplete)

	f.apply(t, operation.StatusReport{IsRunning: true, Stage: "database backup"})
	assert.Equal(t, operation.StageCompleted, f.state("resources"))
	assert.Equal(t, operation.StageActive, f.state("database"))

	f.apply(t, operation.StatusReport{IsRunning: true, Stage: "database backup"})
	assert.Equal(t, operation.StageActive, f.state("database"), "repeated stage name is idempotent")

	out := f.apply(t, operation.StatusReport{IsRunning: true, Stage: "SUCCESS", Message: "done"})
	assert.True(t, out.Completed)
	assert.Equal(t, 100, f.snap.PercentComplete)
	for _, st := range f.checklist.Visible() {
		assert.Equal(t, operation.StageCompleted, st.State, st.ID)
	}
}

func TestNewParser_InvalidMarker(t *testing.T) {
	p := batchBackupProfile(10)
	p.CompletionMarkers = []string{"(unclosed"}
	_, err := NewParser(p)
	assert.Error(t, err)
}
