package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/adminops/internal/app/orchestration"
	"github.com/ahrav/adminops/internal/domain/operation"
	"github.com/ahrav/adminops/internal/infra/eventbus/memory"
	"github.com/ahrav/adminops/pkg/common/otel"
)

// paramFlag collects repeated -param key=value flags.
type paramFlag map[string]string

func (p paramFlag) String() string {
	parts := make([]string, 0, len(p))
	for k, v := range p {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (p paramFlag) Set(s string) error {
	key, val, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("parameter %q must be key=value", s)
	}
	p[key] = val
	return nil
}

func runLaunch(ctx context.Context, opts globalOptions, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usageText)
		return operation.ExitFailure
	}
	kind, err := operation.ParseKind(args[0])
	if err != nil {
		return fail(stderr, err)
	}

	fs := flag.NewFlagSet("launch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	params := paramFlag{}
	fs.Var(params, "param", "job parameter as key=value (repeatable)")
	deployment := fs.String("deployment", "", "deployment profile overriding the configured one")
	if err := fs.Parse(args[1:]); err != nil {
		return operation.ExitFailure
	}

	a, err := newApp(ctx, opts, stderr)
	if err != nil {
		return fail(stderr, err)
	}
	defer a.close(ctx)

	// Events are delivered for the lifetime of this command only.
	subCtx, unsubscribe := context.WithCancel(context.WithoutCancel(ctx))
	defer unsubscribe()

	broker := memory.NewBroker()
	printer := newProgressPrinter(stdout, opts.asJSON)
	if err := broker.Subscribe(subCtx, printer.eventTypes(), printer.handle); err != nil {
		return fail(stderr, err)
	}

	publisher, err := a.publisher(ctx, broker)
	if err != nil {
		return fail(stderr, err)
	}
	sup, err := a.supervisor(publisher, *deployment)
	if err != nil {
		return fail(stderr, err)
	}

	res, err := launchAndWait(ctx, sup, operation.NewJobRequest(kind, params), stderr)

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Orchestration.CancelTimeout)
	defer cancel()
	if derr := sup.Drain(drainCtx); derr != nil {
		a.log.Warn(ctx, "shutdown", "status", "cancel forwarding did not finish", "err", derr)
	}

	if err != nil {
		printer.result(operation.LaunchRejectedResult(kind, err, time.Now()))
		return fail(stderr, err)
	}
	printer.result(res)
	return res.Outcome().ExitCode()
}

// launchAndWait launches req and blocks until it finishes. When ctx is
// cancelled (the operator pressed Ctrl-C) the job is cancelled and its
// cancelled result is returned.
func launchAndWait(
	ctx context.Context,
	sup *orchestration.Supervisor,
	req operation.JobRequest,
	stderr io.Writer,
) (operation.OperationResult, error) {
	bg := context.WithoutCancel(ctx)
	finished := make(chan struct{})

	var (
		g   errgroup.Group
		res operation.OperationResult
	)
	g.Go(func() error {
		select {
		case <-ctx.Done():
			fmt.Fprintln(stderr, "interrupt received, cancelling operation")
			sup.Cancel(bg)
		case <-finished:
		}
		return nil
	})
	g.Go(func() error {
		defer close(finished)

		h, err := sup.Launch(bg, req)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			// Interrupted before the slot was reserved.
			sup.Cancel(bg)
		}
		res, err = h.Wait(bg)
		return err
	})

	if err := g.Wait(); err != nil {
		return operation.OperationResult{}, err
	}
	return res, nil
}

func runStatus(ctx context.Context, opts globalOptions, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprint(stderr, usageText)
		return operation.ExitFailure
	}

	a, err := newApp(ctx, opts, stderr)
	if err != nil {
		return fail(stderr, err)
	}
	defer a.close(ctx)

	ctx, span := otel.AddSpan(ctx, a.tracer, "opsctl.status", attribute.String("job_id", args[0]))
	report, err := a.client.Status(ctx, args[0])
	if err != nil {
		span.RecordError(err)
		span.End()
		return fail(stderr, err)
	}
	span.End()

	if opts.asJSON {
		return writeJSON(stdout, stderr, statusView(args[0], report))
	}
	state := "running"
	if !report.IsRunning {
		state = "finished"
		if report.ExitCode != nil {
			state = fmt.Sprintf("finished (exit %d)", *report.ExitCode)
		}
	}
	fmt.Fprintf(stdout, "%s: %s, %d%%", args[0], state, report.PercentComplete)
	if report.Stage != "" {
		fmt.Fprintf(stdout, ", stage %q", report.Stage)
	}
	if report.Message != "" {
		fmt.Fprintf(stdout, ", %s", report.Message)
	}
	fmt.Fprintln(stdout)
	return operation.ExitSuccess
}

type statusJSON struct {
	JobID           string `json:"jobId"`
	IsRunning       bool   `json:"isRunning"`
	PercentComplete int    `json:"percentComplete"`
	Stage           string `json:"stage,omitempty"`
	Message         string `json:"message,omitempty"`
	ExitCode        *int   `json:"exitCode,omitempty"`
	ErrorDetail     string `json:"errorDetail,omitempty"`
}

func statusView(jobID string, r operation.StatusReport) statusJSON {
	return statusJSON{
		JobID:           jobID,
		IsRunning:       r.IsRunning,
		PercentComplete: r.PercentComplete,
		Stage:           r.Stage,
		Message:         r.Message,
		ExitCode:        r.ExitCode,
		ErrorDetail:     r.ErrorDetail,
	}
}

func runCancel(ctx context.Context, opts globalOptions, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprint(stderr, usageText)
		return operation.ExitFailure
	}

	a, err := newApp(ctx, opts, stderr)
	if err != nil {
		return fail(stderr, err)
	}
	defer a.close(ctx)

	jobID := args[0]
	ctx, span := otel.AddSpan(ctx, a.tracer, "opsctl.cancel", attribute.String("job_id", jobID))
	defer span.End()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = a.cfg.Orchestration.CancelTimeout

	op := func() error {
		err := a.client.Cancel(ctx, jobID)
		var be *operation.BackendError
		if errors.As(err, &be) && be.StatusCode < 500 {
			// The backend answered; retrying will not change its mind.
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		span.RecordError(err)
		return fail(stderr, err)
	}

	fmt.Fprintf(stdout, "%s: cancel acknowledged\n", jobID)
	return operation.ExitSuccess
}

func writeJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fail(stderr, err)
	}
	return operation.ExitSuccess
}
