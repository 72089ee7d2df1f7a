// Package backend holds the JSON wire format shared by the HTTP backend
// client and the simulated backend.
package backend

// Endpoint paths relative to the backend base URL.
const (
	PathJobs      = "/jobs"
	PathJobStatus = "/jobs/{id}/status"
	PathJobCancel = "/jobs/{id}/cancel"
)

// RequestIDHeader carries a per request id for correlating client and server
// logs.
const RequestIDHeader = "X-Request-ID"

// LaunchRequest is the body of POST /jobs.
type LaunchRequest struct {
	Kind       string            `json:"kind"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// LaunchResponse is returned by an accepted launch.
type LaunchResponse struct {
	JobID string `json:"jobId"`
}

// StatusResponse is the canonical body of GET /jobs/{id}/status. Older
// endpoints use PascalCase keys and report Success instead of ExitCode; the
// client normalizes both.
type StatusResponse struct {
	IsRunning       bool   `json:"isRunning"`
	PercentComplete int    `json:"percentComplete"`
	Stage           string `json:"stage,omitempty"`
	Message         string `json:"message,omitempty"`
	RawOutputDelta  string `json:"rawOutputDelta,omitempty"`
	Output          string `json:"output,omitempty"`
	ExitCode        *int   `json:"exitCode,omitempty"`
	Success         *bool  `json:"success,omitempty"`
	Error           string `json:"error,omitempty"`
}

// CancelResponse is returned by POST /jobs/{id}/cancel.
type CancelResponse struct {
	Cancelled bool   `json:"cancelled"`
	Message   string `json:"message,omitempty"`
}

// ErrorResponse is returned with every non 2xx status.
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}
