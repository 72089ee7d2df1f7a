package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/adminops/internal/app/orchestration"
	"github.com/ahrav/adminops/internal/config"
	"github.com/ahrav/adminops/internal/config/envloader"
	"github.com/ahrav/adminops/internal/config/fileloader"
	"github.com/ahrav/adminops/internal/domain/events"
	"github.com/ahrav/adminops/internal/domain/operation"
	"github.com/ahrav/adminops/internal/infra/backend/httpclient"
	"github.com/ahrav/adminops/internal/infra/eventbus/kafka"
	"github.com/ahrav/adminops/internal/infra/eventbus/memory"
	progressreporter "github.com/ahrav/adminops/internal/infra/progress_reporter"
	"github.com/ahrav/adminops/pkg/common/logger"
	"github.com/ahrav/adminops/pkg/common/otel"
)

const serviceName = "opsctl"

// app holds the collaborators shared by every command.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	tracer trace.Tracer
	otel   otel.Providers
	client *httpclient.Client

	// sessionID tags progress events published by this invocation.
	sessionID string

	teardown []func(context.Context)
}

func loadConfig(ctx context.Context, path string) (*config.Config, error) {
	var base config.Loader = config.DefaultLoader{}
	if path != "" {
		base = fileloader.NewFileLoader(path)
	}

	cfg, err := envloader.NewEnvLoader(base).Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) *logger.Logger {
	hostname, _ := os.Hostname()

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}
			if data, err := json.Marshal(errorAttrs); err == nil {
				fmt.Fprintf(w, "Error event: %s, details: %s\n", r.Message, data)
			}
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	metadata := map[string]string{
		"service":  serviceName,
		"hostname": hostname,
		"build":    build,
	}
	return logger.NewWithMetadata(w, logger.ParseLevel(level), serviceName, traceIDFn, logEvents, metadata)
}

func newApp(ctx context.Context, opts globalOptions, stderr io.Writer) (*app, error) {
	cfg, err := loadConfig(ctx, opts.configPath)
	if err != nil {
		return nil, err
	}

	log := newLogger(stderr, cfg.Log.Level)

	endpoint := cfg.Telemetry.OTLPEndpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	providers, teardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      cfg.Telemetry.ServiceName,
		ExporterEndpoint: endpoint,
		Probability:      cfg.Telemetry.SampleRatio,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"deployment":       cfg.Deployment,
		},
		InsecureExporter: true,
	})
	if err != nil {
		return nil, fmt.Errorf("starting telemetry: %w", err)
	}
	tracer := providers.Tracer.Tracer(cfg.Telemetry.ServiceName)

	client, err := httpclient.New(httpclient.Config{
		BaseURL:         cfg.Backend.BaseURL,
		Timeout:         cfg.Backend.Timeout,
		StatusRateLimit: cfg.Backend.StatusRateLimit,
		StatusBurst:     cfg.Backend.StatusBurst,
	}, tracer, log)
	if err != nil {
		teardown(ctx)
		return nil, err
	}

	return &app{
		cfg:       cfg,
		log:       log,
		tracer:    tracer,
		otel:      providers,
		client:    client,
		sessionID: uuid.NewString(),
		teardown:  []func(context.Context){teardown},
	}, nil
}

// publisher returns the event publisher for a launch: the in-process broker,
// plus Kafka when configured.
func (a *app) publisher(ctx context.Context, broker *memory.Broker) (events.DomainEventPublisher, error) {
	k := a.cfg.Events.Kafka
	if k == nil {
		return broker, nil
	}

	metrics, err := kafka.NewPublisherMetrics(a.otel.Meter)
	if err != nil {
		return nil, fmt.Errorf("creating kafka metrics: %w", err)
	}
	pub, err := kafka.ConnectWithRetry(ctx, kafka.Config{
		Brokers:  k.Brokers,
		Topic:    k.Topic,
		ClientID: k.ClientID,
	}, nil, a.log, a.tracer, metrics)
	if err != nil {
		return nil, err
	}
	a.teardown = append(a.teardown, func(ctx context.Context) {
		if err := pub.Close(); err != nil {
			a.log.Warn(ctx, "shutdown", "status", "kafka publisher close failed", "err", err)
		}
	})
	return events.MultiPublisher{broker, pub}, nil
}

func (a *app) supervisor(publisher events.DomainEventPublisher, deployment string) (*orchestration.Supervisor, error) {
	profiles, err := a.cfg.OperationProfiles()
	if err != nil {
		return nil, err
	}
	metrics, err := orchestration.NewOperationMetrics(a.otel.Meter)
	if err != nil {
		return nil, fmt.Errorf("creating metrics collector: %w", err)
	}
	if deployment == "" {
		deployment = a.cfg.Deployment
	}

	return orchestration.NewSupervisor(
		orchestration.SupervisorConfig{
			Deployment:    deployment,
			Profiles:      profiles,
			ETAAlmostDone: a.cfg.Orchestration.ETAAlmostDone,
			StallPolls:    a.cfg.Orchestration.StallPolls,
			HistorySize:   a.cfg.Orchestration.HistorySize,
			CancelTimeout: a.cfg.Orchestration.CancelTimeout,
		},
		a.client,
		publisher,
		metrics,
		a.tracer,
		a.log,
		orchestration.WithProgressReporter(progressreporter.New(a.sessionID, publisher, a.tracer)),
	), nil
}

func (a *app) close(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i := len(a.teardown) - 1; i >= 0; i-- {
		a.teardown[i](ctx)
	}
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "opsctl: %v\n", err)
	return operation.ExitFailure
}
