package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/ahrav/adminops/internal/domain/operation"
)

func TestOperationMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewOperationMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	m.IncLaunches(ctx, operation.KindSQLBackup)
	m.IncPolls(ctx, operation.KindSQLBackup)
	m.IncPolls(ctx, operation.KindSQLBackup)
	m.IncPollErrors(ctx, operation.KindSQLBackup)
	m.AddActiveOperations(ctx, 1)
	m.ObserveOutcome(ctx, operation.KindSQLBackup, operation.OutcomeSucceeded, 90*time.Second)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	sums := make(map[string]int64)
	for _, md := range rm.ScopeMetrics[0].Metrics {
		if sum, ok := md.Data.(metricdata.Sum[int64]); ok {
			for _, dp := range sum.DataPoints {
				sums[md.Name] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), sums["operation_launches_total"])
	assert.Equal(t, int64(2), sums["status_polls_total"])
	assert.Equal(t, int64(1), sums["status_poll_errors_total"])
	assert.Equal(t, int64(1), sums["active_operations"])
	assert.Equal(t, int64(1), sums["operation_outcomes_total"])
}
