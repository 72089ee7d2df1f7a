// Command opsim serves a scripted admin backend for exercising opsctl end to
// end. Jobs advance one step per status call and can be told to misbehave
// with the "simulate" parameter.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/adminops/internal/infra/backend/simulator"
	"github.com/ahrav/adminops/pkg/common/logger"
	"github.com/ahrav/adminops/pkg/common/otel"
)

var build = "develop"

const serviceName = "opsim"

type options struct {
	addr            string
	debugAddr       string
	logLevel        string
	shutdownTimeout time.Duration
}

func main() {
	// Set the correct number of threads for the service
	_, _ = maxprocs.Set()

	var opts options
	flag.StringVar(&opts.addr, "addr", "127.0.0.1:8080", "address the simulated backend listens on")
	flag.StringVar(&opts.debugAddr, "debug-addr", "", "address for the debug endpoints, disabled when empty")
	flag.StringVar(&opts.logLevel, "log-level", "info", "log level")
	flag.DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	flag.Parse()

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

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
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
	log := logger.NewWithMetadata(os.Stdout, logger.ParseLevel(opts.logLevel), serviceName, traceIDFn, logEvents, metadata)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, opts); err != nil {
		log.Error(ctx, "startup", "err", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger, opts options) error {
	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0), "build", build)

	// -------------------------------------------------------------------------
	// Start Tracing Support

	_, teardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      serviceName,
		ExporterEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Probability:      1,
		ResourceAttributes: map[string]string{
			"library.language": "go",
		},
		InsecureExporter: true,
	})
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer teardown(context.WithoutCancel(ctx))

	// -------------------------------------------------------------------------
	// Start Servers

	sim := simulator.New(log)
	servers := []*http.Server{{
		Addr:              opts.addr,
		Handler:           sim.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          logger.NewStdLogger(log, logger.LevelError),
	}}

	if opts.debugAddr != "" {
		dbg, err := debugMux()
		if err != nil {
			return fmt.Errorf("creating debug mux: %w", err)
		}
		servers = append(servers, &http.Server{
			Addr:              opts.debugAddr,
			Handler:           dbg,
			ReadHeaderTimeout: 5 * time.Second,
			ErrorLog:          logger.NewStdLogger(log, logger.LevelError),
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			log.Info(ctx, "startup", "status", "router started", "host", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	// -------------------------------------------------------------------------
	// Shutdown

	g.Go(func() error {
		<-gctx.Done()
		log.Info(ctx, "shutdown", "status", "shutdown started", "jobs", sim.Jobs())
		defer log.Info(ctx, "shutdown", "status", "shutdown complete")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.shutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("could not stop server %s gracefully: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
