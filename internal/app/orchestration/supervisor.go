// Package orchestration drives long-running operations on a backend: it
// launches a job, polls its status, maps progress onto the job's checklist and
// produces exactly one result per job.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/adminops/internal/domain/events"
	"github.com/ahrav/adminops/internal/domain/operation"
	"github.com/ahrav/adminops/pkg/common/logger"
	"github.com/ahrav/adminops/pkg/common/timeutil"
)

// SupervisorConfig holds the knobs of a Supervisor.
type SupervisorConfig struct {
	// Deployment selects environment specific stages, e.g. "development".
	Deployment string
	// Profiles holds one profile per supported kind.
	Profiles map[operation.Kind]operation.Profile
	// ETAAlmostDone is the remaining time below which the estimate reads
	// "Almost done".
	ETAAlmostDone time.Duration
	// StallPolls is the number of consecutive polls without percentage change
	// after which a stall notice is raised. Zero disables stall notices.
	StallPolls int
	// HistorySize bounds the in-memory session log.
	HistorySize int
	// CancelTimeout bounds how long a forwarded cancel is retried.
	CancelTimeout time.Duration
}

const (
	defaultHistorySize   = 50
	defaultCancelTimeout = 30 * time.Second
)

// Option configures optional Supervisor collaborators.
type Option func(*Supervisor)

// WithTimeProvider overrides the clock.
func WithTimeProvider(tp timeutil.Provider) Option {
	return func(s *Supervisor) { s.timeProvider = tp }
}

// WithCancelBackOff overrides the retry policy used when forwarding a cancel
// to the backend.
func WithCancelBackOff(fn func() backoff.BackOff) Option {
	return func(s *Supervisor) { s.cancelBackOff = fn }
}

// ProgressReporter forwards in-flight progress of the active operation to
// observers. Launch and completion events always go to the publisher.
type ProgressReporter interface {
	ReportProgress(ctx context.Context, evt operation.OperationProgressedEvent) error
	ReportStall(ctx context.Context, evt operation.OperationStallNoticeEvent) error
}

// WithProgressReporter routes progress and stall events through r instead of
// publishing them directly.
func WithProgressReporter(r ProgressReporter) Option {
	return func(s *Supervisor) { s.reporter = r }
}

// Supervisor owns the single foreground operation of a session. At most one
// job is active or being launched at any time; every job ends with exactly
// one OperationResult.
type Supervisor struct {
	cfg       SupervisorConfig
	backend   operation.Backend
	publisher events.DomainEventPublisher
	reporter  ProgressReporter
	metrics   OperationMetrics

	timeProvider  timeutil.Provider
	cancelBackOff func() backoff.BackOff

	mu      sync.Mutex
	active  *run
	history []operation.OperationResult

	// forwards tracks fire-and-forget cancel requests still in flight.
	forwards sync.WaitGroup

	tracer trace.Tracer
	logger *logger.Logger
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(
	cfg SupervisorConfig,
	backend operation.Backend,
	publisher events.DomainEventPublisher,
	metrics OperationMetrics,
	tracer trace.Tracer,
	logger *logger.Logger,
	opts ...Option,
) *Supervisor {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if cfg.CancelTimeout <= 0 {
		cfg.CancelTimeout = defaultCancelTimeout
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	s := &Supervisor{
		cfg:          cfg,
		backend:      backend,
		publisher:    publisher,
		metrics:      metrics,
		timeProvider: timeutil.Default(),
		cancelBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			b.MaxElapsedTime = cfg.CancelTimeout
			return b
		},
		tracer: tracer,
		logger: logger.With("component", "supervisor"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Launch starts a job for req. It fails with a *operation.LaunchError when
// another job is active or being launched, when req is invalid, or when the
// backend refuses the job.
func (s *Supervisor) Launch(ctx context.Context, req operation.JobRequest) (*JobHandle, error) {
	ctx, span := s.tracer.Start(ctx, "supervisor.launch",
		trace.WithAttributes(attribute.String("kind", req.Kind.String())))
	defer span.End()

	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		return nil, s.reject(ctx, span, req.Kind, operation.LaunchReasonAlreadyActive, operation.ErrAlreadyActive)
	}
	r, err := s.prepare(req)
	if err != nil {
		s.mu.Unlock()
		return nil, s.reject(ctx, span, req.Kind, operation.LaunchReasonInvalidRequest, err)
	}
	s.active = r
	s.mu.Unlock()

	jobID, err := s.backend.Launch(ctx, req)

	s.mu.Lock()
	if err != nil {
		if s.active == r {
			s.active = nil
		}
		s.mu.Unlock()
		return nil, s.reject(ctx, span, req.Kind, operation.LaunchReasonBackendRefused, err)
	}
	if err := r.begin(jobID, s.timeProvider); err != nil {
		s.logger.Warn(ctx, "Failed to activate first stage", "job_id", jobID, "err", err)
	}
	r.poller = NewPoller(
		jobID,
		PollerConfigFromPolicy(r.profile.Polling),
		s.backend,
		&runObserver{s: s, r: r},
		s.tracer,
		s.logger,
	)
	cancelledDuringLaunch := r.cancelled
	launched := operation.NewOperationLaunchedEvent(r.job, req.Parameters, r.checklist.Visible())
	s.mu.Unlock()

	span.SetAttributes(attribute.String("job_id", jobID))
	s.metrics.IncLaunches(ctx, req.Kind)
	s.metrics.AddActiveOperations(ctx, 1)
	s.publish(ctx, launched, jobID)
	s.logger.Info(ctx, "Operation launched", "job_id", jobID, "kind", req.Kind)

	if cancelledDuringLaunch {
		s.mu.Lock()
		res, ok := s.finalizeLocked(r, operation.CauseCancelled, "")
		s.mu.Unlock()
		s.forwardCancel(ctx, jobID)
		if ok {
			s.completed(ctx, r, res)
		}
		span.AddEvent("cancelled_during_launch")
		return r.handle, nil
	}

	s.mu.Lock()
	if r.current() {
		r.poller.Start(context.WithoutCancel(ctx))
	}
	s.mu.Unlock()

	span.SetStatus(codes.Ok, "operation launched")
	return r.handle, nil
}

// prepare validates req and builds the run that will reserve the slot.
// Callers hold s.mu.
func (s *Supervisor) prepare(req operation.JobRequest) (*run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	base, ok := s.cfg.Profiles[req.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: no profile configured for %s", operation.ErrInvalidRequest, req.Kind)
	}
	profile := base.Resolve(s.cfg.Deployment, req.Parameters)
	parser, err := NewParser(profile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", operation.ErrInvalidRequest, err)
	}
	return newRun(req, profile, parser, s.timeProvider), nil
}

func (s *Supervisor) reject(
	ctx context.Context,
	span trace.Span,
	kind operation.Kind,
	reason operation.LaunchErrorReason,
	err error,
) error {
	lerr := operation.NewLaunchError(kind, reason, err)
	span.RecordError(lerr)
	span.SetStatus(codes.Error, "launch rejected")
	s.metrics.IncLaunchRejections(ctx, kind, reason)
	s.logger.Warn(ctx, "Launch rejected", "kind", kind, "reason", reason, "err", err)

	if reason != operation.LaunchReasonAlreadyActive {
		s.mu.Lock()
		s.appendHistoryLocked(operation.LaunchRejectedResult(kind, err, s.timeProvider.Now()))
		s.mu.Unlock()
	}
	return lerr
}

// Cancel cancels the active job. It is idempotent and a no-op without an
// active job. The cancelled result is emitted before Cancel returns unless
// the backend launch call is still in flight, in which case the job is
// cancelled as soon as its id is known.
func (s *Supervisor) Cancel(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "supervisor.cancel")
	defer span.End()

	s.mu.Lock()
	r := s.active
	if r == nil || r.cancelled {
		s.mu.Unlock()
		span.AddEvent("nothing_to_cancel")
		return
	}
	r.cancelled = true
	if r.launching {
		s.mu.Unlock()
		span.AddEvent("cancel_deferred_until_launched")
		s.logger.Info(ctx, "Cancel requested while launch is in flight", "kind", r.req.Kind)
		return
	}
	jobID := r.job.ID()
	res, ok := s.finalizeLocked(r, operation.CauseCancelled, "")
	s.mu.Unlock()

	span.SetAttributes(attribute.String("job_id", jobID))
	s.forwardCancel(ctx, jobID)
	if ok {
		s.completed(ctx, r, res)
	}
	span.SetStatus(codes.Ok, "operation cancelled")
}

// forwardCancel asks the backend to stop jobID without blocking the caller.
// Failures are logged; the local result is already final.
func (s *Supervisor) forwardCancel(ctx context.Context, jobID string) {
	ctx = context.WithoutCancel(ctx)
	s.forwards.Add(1)
	go func() {
		defer s.forwards.Done()

		ctx, span := s.tracer.Start(ctx, "supervisor.forward_cancel",
			trace.WithAttributes(attribute.String("job_id", jobID)))
		defer span.End()

		ctx, cancel := context.WithTimeout(ctx, s.cfg.CancelTimeout)
		defer cancel()

		attempts := 0
		op := func() error {
			attempts++
			return s.backend.Cancel(ctx, jobID)
		}
		if err := backoff.Retry(op, backoff.WithContext(s.cancelBackOff(), ctx)); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "backend cancel failed")
			s.logger.Warn(ctx, "Backend did not acknowledge cancel",
				"job_id", jobID,
				"attempts", attempts,
				"err", err,
			)
			return
		}
		span.SetStatus(codes.Ok, "backend cancel acknowledged")
		s.logger.Debug(ctx, "Backend acknowledged cancel", "job_id", jobID, "attempts", attempts)
	}()
}

// Drain waits for in-flight cancel requests to the backend.
func (s *Supervisor) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.forwards.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finalizeLocked ends r with the given cause. It returns false when r was
// already finalized. Callers hold s.mu.
func (s *Supervisor) finalizeLocked(
	r *run,
	cause operation.TerminationCause,
	detail string,
) (operation.OperationResult, bool) {
	if r.finalized {
		return operation.OperationResult{}, false
	}
	r.finalized = true
	if r.poller != nil {
		r.poller.Stop()
	}

	switch cause {
	case operation.CauseCancelled:
		r.checklist.CancelOpen(operation.MessageCancelled)
	case operation.CauseTimeout, operation.CausePollingAborted:
		if st, ok := r.checklist.Active(); ok {
			_ = r.checklist.Transition(st.ID, operation.StageError, string(cause))
		}
	}
	r.timeline.MarkCompleted()

	res := operation.Aggregate(operation.AggregateInput{
		Job:       r.job,
		Stages:    r.checklist.States(),
		Snapshot:  r.snapshot,
		Cause:     cause,
		PollCount: r.polls,
		EndedAt:   r.timeline.CompletedAt(),
		Detail:    detail,
	})

	if s.active == r {
		s.active = nil
	}
	s.appendHistoryLocked(res)
	return res, true
}

// completed runs the side effects of a finalized job outside the lock and
// then releases waiters.
func (s *Supervisor) completed(ctx context.Context, r *run, res operation.OperationResult) {
	s.metrics.AddActiveOperations(ctx, -1)
	s.metrics.ObserveOutcome(ctx, res.Kind(), res.Outcome(), res.Duration())
	s.publish(ctx, operation.NewOperationCompletedEvent(res), res.JobID())

	logArgs := []any{
		"job_id", res.JobID(),
		"kind", res.Kind(),
		"outcome", res.Outcome(),
		"polls", res.PollCount(),
		"duration", res.Duration(),
	}
	if res.Success() || res.Outcome() == operation.OutcomeCancelled {
		s.logger.Info(ctx, "Operation finished", logArgs...)
	} else {
		s.logger.Warn(ctx, "Operation failed", append(logArgs, "message", res.Message(), "detail", res.Detail())...)
	}

	r.handle.complete(res)
}

func (s *Supervisor) publish(ctx context.Context, evt events.DomainEvent, jobID string) {
	if err := s.publisher.PublishDomainEvent(ctx, evt, events.WithKey(jobID)); err != nil {
		s.logger.Warn(ctx, "Failed to publish event",
			"event_type", evt.EventType(),
			"job_id", jobID,
			"err", err,
		)
	}
}

func (s *Supervisor) report(ctx context.Context, evt events.DomainEvent, jobID string) {
	if s.reporter == nil {
		s.publish(ctx, evt, jobID)
		return
	}

	var err error
	switch e := evt.(type) {
	case operation.OperationProgressedEvent:
		err = s.reporter.ReportProgress(ctx, e)
	case operation.OperationStallNoticeEvent:
		err = s.reporter.ReportStall(ctx, e)
	default:
		s.publish(ctx, evt, jobID)
		return
	}
	if err != nil {
		s.logger.Warn(ctx, "Failed to report progress",
			"event_type", evt.EventType(),
			"job_id", jobID,
			"err", err,
		)
	}
}

func (s *Supervisor) appendHistoryLocked(res operation.OperationResult) {
	s.history = append(s.history, res)
	if over := len(s.history) - s.cfg.HistorySize; over > 0 {
		s.history = slices.Delete(s.history, 0, over)
	}
}

// History returns the results recorded this session, newest last.
func (s *Supervisor) History() []operation.OperationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Active reports whether a job occupies the foreground slot.
func (s *Supervisor) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// runObserver adapts poller callbacks to one run. Every callback first checks
// under the supervisor lock that the run is still the active, uncancelled
// run; anything else is a late response and is dropped.
type runObserver struct {
	s *Supervisor
	r *run
}

var _ PollHandler = (*runObserver)(nil)

func (o *runObserver) currentLocked() bool {
	return o.s.active == o.r && o.r.current()
}

func (o *runObserver) HandleReport(ctx context.Context, poll int, report operation.StatusReport) bool {
	s, r := o.s, o.r

	s.mu.Lock()
	if !o.currentLocked() {
		s.mu.Unlock()
		return true
	}
	s.metrics.IncPolls(ctx, r.job.Kind())
	r.polls = poll
	r.timeline.UpdateLastUpdate()

	prev := r.snapshot
	prevActive, _ := r.checklist.Active()
	snap, outcome, err := o.parse(ctx, prev.Next(report, s.timeProvider.Now()))
	r.snapshot = snap
	if err != nil {
		s.logger.Warn(ctx, "Checklist transition rejected", "job_id", r.job.ID(), "err", err)
	}

	var pending []events.DomainEvent
	active, _ := r.checklist.Active()
	if snap.PercentComplete != prev.PercentComplete || active.ID != prevActive.ID ||
		snap.Message != prev.Message || outcome.Changed {
		r.timeline.MarkProgress()
		pending = append(pending, operation.NewOperationProgressedEvent(r.job, snap, active.ID, poll))
	}
	if snap.PercentComplete == prev.PercentComplete {
		r.pollsWithoutChange++
	} else {
		r.pollsWithoutChange = 0
	}
	stalled := s.cfg.StallPolls > 0 && r.pollsWithoutChange == s.cfg.StallPolls && snap.IsRunning
	if stalled {
		pending = append(pending, operation.NewOperationStallNoticeEvent(
			r.job, snap.PercentComplete, r.pollsWithoutChange, snap.ObservedAt))
	}

	terminal := !snap.IsRunning || outcome.Terminal()
	var (
		res       operation.OperationResult
		finalized bool
	)
	if terminal {
		res, finalized = s.finalizeLocked(r, operation.CauseObserved, "")
	}
	s.mu.Unlock()

	if stalled {
		s.metrics.IncStallNotices(ctx, r.job.Kind())
		s.logger.Warn(ctx, "Operation appears stalled",
			"job_id", r.job.ID(),
			"percent_complete", snap.PercentComplete,
			"polls_without_change", s.cfg.StallPolls,
		)
	}
	for _, evt := range pending {
		s.report(ctx, evt, r.job.ID())
	}
	if finalized {
		s.completed(ctx, r, res)
	}
	return terminal
}

func (o *runObserver) parse(
	ctx context.Context,
	snap operation.ProgressSnapshot,
) (operation.ProgressSnapshot, ParseOutcome, error) {
	_, span := o.s.tracer.Start(ctx, "parser.apply",
		trace.WithAttributes(
			attribute.String("job_id", o.r.job.ID()),
			attribute.Int("percent_in", snap.PercentComplete),
		))
	defer span.End()

	snap, outcome, err := o.r.parser.Apply(o.r.checklist, snap)
	span.SetAttributes(
		attribute.Int("percent_out", snap.PercentComplete),
		attribute.Bool("completed", outcome.Completed),
		attribute.Bool("failed", outcome.Failed),
	)
	if err != nil {
		span.RecordError(err)
	}
	return snap, outcome, err
}

func (o *runObserver) HandlePollError(ctx context.Context, poll, streak int, err error) {
	s, r := o.s, o.r

	s.mu.Lock()
	if !o.currentLocked() {
		s.mu.Unlock()
		return
	}
	r.polls = poll
	r.timeline.UpdateLastUpdate()
	s.mu.Unlock()

	s.metrics.IncPolls(ctx, r.job.Kind())
	s.metrics.IncPollErrors(ctx, r.job.Kind())
	s.logger.Warn(ctx, "Status poll failed",
		"job_id", r.job.ID(),
		"poll", poll,
		"streak", streak,
		"err", err,
	)
}

func (o *runObserver) HandleStop(ctx context.Context, stop PollStop) {
	s, r := o.s, o.r

	cause := operation.CauseTimeout
	if stop.Reason == StopReasonAborted {
		cause = operation.CausePollingAborted
	}
	var detail string
	if stop.LastErr != nil {
		detail = stop.LastErr.Error()
	}
	if cause == operation.CauseTimeout {
		detail = fmt.Sprintf("no terminal status after %s", r.profile.Polling.Budget())
	}

	s.mu.Lock()
	if !o.currentLocked() {
		s.mu.Unlock()
		return
	}
	r.polls = stop.Polls
	res, ok := s.finalizeLocked(r, cause, detail)
	s.mu.Unlock()

	if ok {
		s.completed(ctx, r, res)
	}
}

// IsLaunchRejected reports whether err is a launch rejection and returns it.
func IsLaunchRejected(err error) (*operation.LaunchError, bool) {
	var lerr *operation.LaunchError
	if errors.As(err, &lerr) {
		return lerr, true
	}
	return nil, false
}
