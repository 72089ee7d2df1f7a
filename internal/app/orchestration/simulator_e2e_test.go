package orchestration_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/adminops/internal/app/orchestration"
	"github.com/ahrav/adminops/internal/config"
	"github.com/ahrav/adminops/internal/domain/operation"
	"github.com/ahrav/adminops/internal/infra/backend/httpclient"
	"github.com/ahrav/adminops/internal/infra/backend/simulator"
	"github.com/ahrav/adminops/pkg/common/logger"
)

// fastProfiles returns the built-in profiles polling every millisecond.
func fastProfiles() map[operation.Kind]operation.Profile {
	profiles := config.DefaultProfiles()
	for kind, p := range profiles {
		p.Polling.Interval = time.Millisecond
		p.Polling.MaxPolls = 1_000
		profiles[kind] = p
	}
	return profiles
}

func newSimulatedSupervisor(t *testing.T, deployment string) *orchestration.Supervisor {
	t.Helper()

	srv := httptest.NewServer(simulator.New(logger.Noop()).Handler())
	t.Cleanup(srv.Close)

	tracer := noop.NewTracerProvider().Tracer("test")
	client, err := httpclient.New(httpclient.Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, tracer, logger.Noop())
	require.NoError(t, err)

	metrics, err := orchestration.NewOperationMetrics(noopmetric.NewMeterProvider())
	require.NoError(t, err)

	return orchestration.NewSupervisor(
		orchestration.SupervisorConfig{Deployment: deployment, Profiles: fastProfiles()},
		client,
		nil,
		metrics,
		tracer,
		logger.Noop(),
	)
}

func waitFor(t *testing.T, h *orchestration.JobHandle) operation.OperationResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := h.Wait(ctx)
	require.NoError(t, err)
	return res
}

func states(res operation.OperationResult) map[string]operation.StageState {
	out := make(map[string]operation.StageState)
	for _, st := range res.StageResults() {
		out[st.ID] = st.State
	}
	return out
}

func TestSimulatedBackend_Outcomes(t *testing.T) {
	tests := []struct {
		name       string
		deployment string
		kind       operation.Kind
		params     map[string]string
		want       operation.Outcome
		wantStages map[string]operation.StageState
	}{
		{
			name:       "batch backup in development",
			deployment: "development",
			kind:       operation.KindSQLBackup,
			want:       operation.OutcomeSucceeded,
			wantStages: map[string]operation.StageState{
				"init":      operation.StageCompleted,
				"resources": operation.StageCompleted,
				"database":  operation.StageCompleted,
				"dev":       operation.StageCompleted,
				"complete":  operation.StageCompleted,
			},
		},
		{
			name:       "batch backup in production without dev environment",
			deployment: "production",
			kind:       operation.KindSQLBackup,
			params:     map[string]string{operation.ParamCreateDevEnvironment: "false"},
			want:       operation.OutcomeSucceeded,
			wantStages: map[string]operation.StageState{
				"init":     operation.StageCompleted,
				"database": operation.StageCompleted,
				"complete": operation.StageCompleted,
			},
		},
		{
			name:   "restore",
			kind:   operation.KindSQLRestore,
			params: map[string]string{operation.ParamBackupFile: "KSESSIONS.bak", operation.ParamTargetDatabase: "KSESSIONS_DEV"},
			want:   operation.OutcomeSucceeded,
		},
		{
			name:   "commit and push",
			kind:   operation.KindGitCommitAndPush,
			params: map[string]string{operation.ParamCommitMessage: "release"},
			want:   operation.OutcomeSucceeded,
		},
		{
			name:   "force reset",
			kind:   operation.KindGitForceReset,
			params: map[string]string{operation.ParamBranch: "main"},
			want:   operation.OutcomeSucceeded,
		},
		{
			name:   "flaky status still succeeds",
			kind:   operation.KindGitPush,
			params: map[string]string{simulator.ParamSimulate: simulator.FaultFlaky},
			want:   operation.OutcomeSucceeded,
		},
		{
			name:   "batch error",
			kind:   operation.KindSQLBackup,
			params: map[string]string{simulator.ParamSimulate: simulator.FaultError},
			want:   operation.OutcomeJobError,
		},
		{
			name:   "git error stage",
			kind:   operation.KindGitPush,
			params: map[string]string{simulator.ParamSimulate: simulator.FaultError},
			want:   operation.OutcomeJobError,
		},
		{
			name:   "crash",
			kind:   operation.KindSQLExport,
			params: map[string]string{operation.ParamDatabase: "KSESSIONS", simulator.ParamSimulate: simulator.FaultCrash},
			want:   operation.OutcomeUnexpectedTermination,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deployment := tt.deployment
			if deployment == "" {
				deployment = "production"
			}
			sup := newSimulatedSupervisor(t, deployment)

			h, err := sup.Launch(context.Background(), operation.NewJobRequest(tt.kind, tt.params))
			require.NoError(t, err)

			res := waitFor(t, h)
			assert.Equal(t, tt.want, res.Outcome(), res.Message())
			assert.Equal(t, tt.want == operation.OutcomeSucceeded, res.Success())
			if tt.want == operation.OutcomeSucceeded {
				assert.Equal(t, 100, res.PercentComplete())
			}
			if tt.wantStages != nil {
				assert.Equal(t, tt.wantStages, states(res))
			}
			assert.False(t, sup.Active())
		})
	}
}

func TestSimulatedBackend_CancelHangingJob(t *testing.T) {
	sup := newSimulatedSupervisor(t, "production")

	h, err := sup.Launch(context.Background(), operation.NewJobRequest(operation.KindGitPush, map[string]string{
		simulator.ParamSimulate: simulator.FaultHang,
	}))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		view, ok := sup.Progress()
		return ok && view.PollCount >= 3
	}, 5*time.Second, time.Millisecond)

	sup.Cancel(context.Background())
	res := waitFor(t, h)
	assert.Equal(t, operation.OutcomeCancelled, res.Outcome())
	assert.Equal(t, operation.MessageCancelled, res.Message())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sup.Drain(ctx))
}
