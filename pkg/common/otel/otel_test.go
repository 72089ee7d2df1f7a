package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ahrav/adminops/pkg/common/logger"
)

func TestInitTelemetry_NoEndpointIsNoop(t *testing.T) {
	providers, teardown, err := InitTelemetry(logger.Noop(), Config{ServiceName: "adminops"})
	require.NoError(t, err)
	require.NotNil(t, teardown)
	defer teardown(context.Background())

	ctx, span := providers.Tracer.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
	assert.Equal(t, zeroTraceID, GetTraceID(ctx))
	assert.Equal(t, zeroSpanID, GetSpanID(ctx))
}

func TestAddSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	ctx, span := AddSpan(context.Background(), tp.Tracer("test"), "opsctl.status",
		attribute.String("job_id", "job-1"))
	traceID, spanID := GetTraceID(ctx), GetSpanID(ctx)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "opsctl.status", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.String("job_id", "job-1"))
	assert.Equal(t, ended[0].SpanContext().TraceID().String(), traceID)
	assert.Equal(t, ended[0].SpanContext().SpanID().String(), spanID)
}

func TestNewResource(t *testing.T) {
	res := NewResource("adminops", map[string]string{"deployment": "production"})
	attrs := res.Attributes()
	assert.Contains(t, attrs, attribute.String("service.name", "adminops"))
	assert.Contains(t, attrs, attribute.String("deployment", "production"))
}
