// Package httpclient implements the operation.Backend port over the admin
// HTTP API.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/adminops/internal/domain/operation"
	"github.com/ahrav/adminops/internal/infra/backend"
	"github.com/ahrav/adminops/pkg/common"
	"github.com/ahrav/adminops/pkg/common/logger"
	"github.com/ahrav/adminops/pkg/common/otel"
)

// minStatusRate is the lowest rate the status limiter is throttled down to
// after the backend answers 429.
const minStatusRate = 0.2

// Config configures the client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// StatusRateLimit bounds status requests per second. Zero disables it.
	StatusRateLimit float64
	StatusBurst     int
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client talks to the admin backend. It is safe for concurrent use.
type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	rateLimiter *common.RateLimiter

	logger *logger.Logger
	tracer trace.Tracer
}

var _ operation.Backend = (*Client)(nil)

// New creates a client for the backend at cfg.BaseURL.
func New(cfg Config, tracer trace.Tracer, log *logger.Logger, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend url %q: scheme must be http or https", cfg.BaseURL)
	}

	c := &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		rateLimiter: common.NewRateLimiter(cfg.StatusRateLimit, cfg.StatusBurst),
		logger:      log.With("component", "backend_http_client"),
		tracer:      tracer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Launch implements operation.Backend.
func (c *Client) Launch(ctx context.Context, req operation.JobRequest) (string, error) {
	ctx, span := c.tracer.Start(ctx, "backend_http_client.launch",
		trace.WithAttributes(attribute.String("kind", req.Kind.String())))
	defer span.End()

	body := backend.LaunchRequest{Kind: req.Kind.String(), Parameters: req.Parameters}
	var resp backend.LaunchResponse
	if err := c.do(ctx, http.MethodPost, backend.PathJobs, body, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "launch failed")
		return "", fmt.Errorf("failed to launch %s: %w", req.Kind, err)
	}
	if resp.JobID == "" {
		err := &operation.BackendError{StatusCode: http.StatusOK, Message: "launch response carried no job id"}
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing job id")
		return "", err
	}

	span.SetAttributes(attribute.String("job_id", resp.JobID))
	span.SetStatus(codes.Ok, "job launched")
	c.logger.Debug(ctx, "job launched", "kind", req.Kind, "job_id", resp.JobID)
	return resp.JobID, nil
}

// Status implements operation.Backend. Requests are rate limited.
func (c *Client) Status(ctx context.Context, jobID string) (operation.StatusReport, error) {
	ctx, span := c.tracer.Start(ctx, "backend_http_client.status",
		trace.WithAttributes(attribute.String("job_id", jobID)))
	defer span.End()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limiter wait failed")
		return operation.StatusReport{}, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var resp backend.StatusResponse
	if err := c.do(ctx, http.MethodGet, jobPath(backend.PathJobStatus, jobID), nil, &resp); err != nil {
		c.throttleOnTooManyRequests(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "status request failed")
		return operation.StatusReport{}, fmt.Errorf("failed to fetch status of %s: %w", jobID, err)
	}

	report := normalizeStatus(resp)
	span.SetAttributes(
		attribute.Bool("is_running", report.IsRunning),
		attribute.Int("percent_complete", report.PercentComplete),
	)
	return report, nil
}

// Cancel implements operation.Backend. Retrying is left to the caller.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	ctx, span := c.tracer.Start(ctx, "backend_http_client.cancel",
		trace.WithAttributes(attribute.String("job_id", jobID)))
	defer span.End()

	var resp backend.CancelResponse
	if err := c.do(ctx, http.MethodPost, jobPath(backend.PathJobCancel, jobID), nil, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancel failed")
		return fmt.Errorf("failed to cancel %s: %w", jobID, err)
	}
	if !resp.Cancelled {
		msg := resp.Message
		if msg == "" {
			msg = "cancel not acknowledged"
		}
		err := &operation.BackendError{StatusCode: http.StatusOK, Message: msg}
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancel not acknowledged")
		return err
	}

	span.SetStatus(codes.Ok, "job cancelled")
	return nil
}

// normalizeStatus maps the wire body onto a StatusReport. PascalCase keys are
// already folded by encoding/json; here Success is turned into an exit code
// when the backend did not report one.
func normalizeStatus(r backend.StatusResponse) operation.StatusReport {
	report := operation.StatusReport{
		IsRunning:       r.IsRunning,
		PercentComplete: r.PercentComplete,
		Stage:           strings.TrimSpace(r.Stage),
		Message:         r.Message,
		OutputDelta:     r.RawOutputDelta,
		Output:          r.Output,
		ErrorDetail:     r.Error,
	}
	switch {
	case r.ExitCode != nil:
		code := *r.ExitCode
		report.ExitCode = &code
	case r.Success != nil && !r.IsRunning:
		code := 0
		if !*r.Success {
			code = 1
		}
		report.ExitCode = &code
	}
	return report
}

func (c *Client) throttleOnTooManyRequests(ctx context.Context, err error) {
	var be *operation.BackendError
	if !errors.As(err, &be) || be.StatusCode != http.StatusTooManyRequests {
		return
	}
	limit := c.rateLimiter.Limit()
	if limit == 0 {
		limit = 1
	}
	next := max(limit/2, minStatusRate)
	c.rateLimiter.UpdateLimits(next, 1)
	c.logger.Warn(ctx, "backend throttled status requests", "rate", next)
}

func jobPath(pattern, jobID string) string {
	return strings.Replace(pattern, "{id}", url.PathEscape(jobID), 1)
}

// do sends a JSON request and decodes a JSON response. Non 2xx answers are
// returned as *operation.BackendError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set(backend.RequestIDHeader, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug(ctx, "backend returned error",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"request_id", requestID,
			"span_id", otel.GetSpanID(ctx),
		)
		return &operation.BackendError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Status, data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func errorMessage(status string, data []byte) string {
	var er backend.ErrorResponse
	if err := json.Unmarshal(data, &er); err == nil {
		if er.Message != "" {
			return er.Message
		}
		if er.Error != "" {
			return er.Error
		}
	}
	if text := strings.TrimSpace(string(data)); text != "" && len(text) < 256 {
		return text
	}
	return status
}
