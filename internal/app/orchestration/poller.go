package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/adminops/internal/domain/operation"
	"github.com/ahrav/adminops/pkg/common/logger"
)

// PollerConfig bounds the observation of one job.
type PollerConfig struct {
	// Interval is the wait between the end of one fetch and the start of the next.
	Interval time.Duration
	// MaxPolls is the total number of fetches allowed before a timeout.
	MaxPolls int
	// ErrorStreakThreshold is the number of consecutive failed fetches that
	// aborts polling.
	ErrorStreakThreshold int
}

// PollerConfigFromPolicy converts a profile poll policy.
func PollerConfigFromPolicy(p operation.PollPolicy) PollerConfig {
	return PollerConfig{
		Interval:             p.Interval,
		MaxPolls:             p.MaxPolls,
		ErrorStreakThreshold: p.ErrorStreakThreshold,
	}
}

// StopReason explains why a poller exited on its own.
type StopReason string

const (
	StopReasonTimeout StopReason = "timeout"
	StopReasonAborted StopReason = "aborted"
)

// PollStop is reported when the poller gives up on a job.
type PollStop struct {
	Reason  StopReason
	Polls   int
	LastErr error
}

// StatusFetcher fetches one status report for a job.
type StatusFetcher interface {
	Status(ctx context.Context, jobID string) (operation.StatusReport, error)
}

// PollHandler receives everything a poller observes. Calls are serialized:
// the next fetch starts only after the previous handler call returned.
type PollHandler interface {
	// HandleReport is called for every successful fetch. Returning true stops
	// the poller without a further callback.
	HandleReport(ctx context.Context, poll int, report operation.StatusReport) bool
	// HandlePollError is called for every failed fetch.
	HandlePollError(ctx context.Context, poll, streak int, err error)
	// HandleStop is called when the poller exhausted its budget or the error
	// streak threshold.
	HandleStop(ctx context.Context, stop PollStop)
}

// Poller periodically fetches the status of a single job. It is started once
// and stopped at most once; Stop never blocks.
type Poller struct {
	jobID   string
	cfg     PollerConfig
	fetcher StatusFetcher
	handler PollHandler

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}

	tracer trace.Tracer
	logger *logger.Logger
}

// NewPoller creates a poller for jobID.
func NewPoller(
	jobID string,
	cfg PollerConfig,
	fetcher StatusFetcher,
	handler PollHandler,
	tracer trace.Tracer,
	logger *logger.Logger,
) *Poller {
	if cfg.ErrorStreakThreshold <= 0 {
		cfg.ErrorStreakThreshold = operation.DefaultErrorStreakThreshold
	}
	return &Poller{
		jobID:   jobID,
		cfg:     cfg,
		fetcher: fetcher,
		handler: handler,
		done:    make(chan struct{}),
		tracer:  tracer,
		logger:  logger.With("component", "poller", "job_id", jobID),
	}
}

// Start launches the polling loop. The first fetch happens immediately.
// Starting a stopped or already started poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)
}

// Stop halts the loop. An in-flight fetch is cancelled and its result is
// never delivered. Stop is idempotent and never blocks.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true

	if p.started {
		p.cancel()
		return
	}
	close(p.done)
}

// Done is closed once the loop exited.
func (p *Poller) Done() <-chan struct{} { return p.done }

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	p.logger.Debug(ctx, "Polling started",
		"interval", p.cfg.Interval,
		"max_polls", p.cfg.MaxPolls,
		"error_streak_threshold", p.cfg.ErrorStreakThreshold,
	)

	var (
		polls   int
		streak  int
		lastErr error
	)
	for {
		report, err := p.fetch(ctx, polls+1)
		if ctx.Err() != nil {
			p.logger.Debug(ctx, "Polling stopped", "polls", polls)
			return
		}
		polls++

		if err != nil {
			streak++
			lastErr = err
			p.handler.HandlePollError(ctx, polls, streak, err)
			if streak >= p.cfg.ErrorStreakThreshold {
				p.logger.Warn(ctx, "Polling aborted after consecutive failures",
					"polls", polls,
					"streak", streak,
					"err", err,
				)
				p.handler.HandleStop(ctx, PollStop{Reason: StopReasonAborted, Polls: polls, LastErr: lastErr})
				return
			}
		} else {
			streak = 0
			if p.handler.HandleReport(ctx, polls, report) {
				return
			}
		}

		if polls >= p.cfg.MaxPolls {
			p.logger.Warn(ctx, "Polling budget exhausted", "polls", polls)
			p.handler.HandleStop(ctx, PollStop{Reason: StopReasonTimeout, Polls: polls, LastErr: lastErr})
			return
		}

		timer := time.NewTimer(p.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Debug(ctx, "Polling stopped", "polls", polls)
			return
		case <-timer.C:
		}
	}
}

func (p *Poller) fetch(ctx context.Context, poll int) (operation.StatusReport, error) {
	ctx, span := p.tracer.Start(ctx, "poller.fetch_status",
		trace.WithAttributes(
			attribute.String("job_id", p.jobID),
			attribute.Int("poll", poll),
		))
	defer span.End()

	report, err := p.fetcher.Status(ctx, p.jobID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "status fetch failed")
		if errors.Is(err, operation.ErrPollTransient) {
			return report, err
		}
		return report, fmt.Errorf("%w: %w", operation.ErrPollTransient, err)
	}
	span.SetAttributes(
		attribute.Bool("is_running", report.IsRunning),
		attribute.Int("percent_complete", report.PercentComplete),
	)
	span.SetStatus(codes.Ok, "status fetched")
	return report, nil
}
