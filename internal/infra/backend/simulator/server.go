// Package simulator is an in-process admin backend that runs scripted jobs.
// It serves the same HTTP API as the real backend so the orchestrator can be
// exercised locally and in tests.
package simulator

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ahrav/adminops/internal/domain/operation"
	"github.com/ahrav/adminops/internal/infra/backend"
	"github.com/ahrav/adminops/pkg/common/logger"
	"github.com/ahrav/adminops/pkg/common/otel"
)

type job struct {
	id     string
	kind   operation.Kind
	fault  string
	script []backend.StatusResponse

	// next is the index of the script entry returned by the next status call.
	next      int
	calls     int
	cancelled bool
}

// Server is the simulated backend.
type Server struct {
	mu     sync.Mutex
	jobs   map[string]*job
	router chi.Router

	logger *logger.Logger
}

// New creates a simulator with its routes mounted.
func New(log *logger.Logger) *Server {
	s := &Server{
		jobs:   make(map[string]*job),
		logger: log.With("component", "backend_simulator"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggerMiddleware(s.logger))
	r.Use(middleware.Recoverer)

	r.Post(backend.PathJobs, s.handleLaunch)
	r.Get(backend.PathJobStatus, s.handleStatus)
	r.Post(backend.PathJobCancel, s.handleCancel)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	s.router = r
	return s
}

// Handler returns the HTTP handler, instrumented with otelhttp.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "backend_simulator")
}

// Jobs returns the number of jobs launched so far.
func (s *Server) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func loggerMiddleware(log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				ctx := r.Context()
				log.Debug(ctx, "Request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration", time.Since(start),
					"request_id", r.Header.Get(backend.RequestIDHeader),
					"trace_id", otel.GetTraceID(ctx),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	var req backend.LaunchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	kind, err := operation.ParseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := operation.NewJobRequest(kind, req.Parameters).Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	fault := strings.ToLower(strings.TrimSpace(req.Parameters[ParamSimulate]))
	if fault == FaultReject {
		writeError(w, http.StatusConflict, "backend refused the operation")
		return
	}

	j := &job{
		id:     uuid.NewString(),
		kind:   kind,
		fault:  fault,
		script: script(kind, req.Parameters),
	}

	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()

	s.logger.Info(r.Context(), "job started", "job_id", j.id, "kind", kind, "fault", fault)
	writeJSON(w, http.StatusAccepted, backend.LaunchResponse{JobID: j.id})
}

var errUnknownJob = errors.New("unknown job")

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp, code, err := s.advance(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// advance returns the next scripted response of a job. Flaky jobs fail every
// other call without advancing.
func (s *Server) advance(id string) (backend.StatusResponse, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return backend.StatusResponse{}, http.StatusNotFound, errUnknownJob
	}
	j.calls++
	if j.fault == FaultFlaky && j.calls%2 == 0 {
		return backend.StatusResponse{}, http.StatusServiceUnavailable, errors.New("status temporarily unavailable")
	}

	if j.cancelled {
		return backend.StatusResponse{IsRunning: false, Message: "cancelled", ExitCode: intPtr(130)}, http.StatusOK, nil
	}

	resp := j.script[min(j.next, len(j.script)-1)]
	if j.next >= len(j.script) {
		// Exhausted scripts repeat the last state without replaying output.
		resp.RawOutputDelta = ""
	}
	j.next++
	return resp, http.StatusOK, nil
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	j, ok := s.jobs[id]
	finished := ok && j.next >= len(j.script) && !j.script[len(j.script)-1].IsRunning
	if ok && !finished {
		j.cancelled = true
	}
	s.mu.Unlock()

	switch {
	case !ok:
		writeError(w, http.StatusNotFound, errUnknownJob.Error())
	case finished:
		writeJSON(w, http.StatusOK, backend.CancelResponse{Cancelled: false, Message: "job already finished"})
	default:
		s.logger.Info(r.Context(), "job cancelled", "job_id", id)
		writeJSON(w, http.StatusOK, backend.CancelResponse{Cancelled: true})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, backend.ErrorResponse{Error: http.StatusText(status), Message: msg})
}
