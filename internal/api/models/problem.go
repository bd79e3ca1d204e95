package models

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/cdoweather/cdoweather/internal/etl"
)

// Problem represents an RFC7807 error response.
// This is used for all API error responses with Content-Type: application/problem+json.
type Problem struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type"`

	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`

	// Status is the HTTP status code for this occurrence of the problem.
	Status int `json:"status"`

	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`

	// Instance is a URI reference that identifies the specific occurrence.
	Instance string `json:"instance,omitempty"`

	// TraceID is the request trace identifier for debugging.
	TraceID string `json:"traceId"`

	// Run carries the statistics of a run that failed part way.
	Run *etl.RunResult `json:"run,omitempty"`
}

// ProblemType constants for standard error types.
const (
	ProblemTypeUnauthorized     = "https://cdoweather.dev/problems/unauthorized"
	ProblemTypeNotFound         = "https://cdoweather.dev/problems/not-found"
	ProblemTypeMethodNotAllowed = "https://cdoweather.dev/problems/method-not-allowed"
	ProblemTypeRunInProgress    = "https://cdoweather.dev/problems/run-in-progress"
	ProblemTypeTooManyRequests  = "https://cdoweather.dev/problems/too-many-requests"
	ProblemTypeRunFailed        = "https://cdoweather.dev/problems/run-failed"
	ProblemTypeInternal         = "https://cdoweather.dev/problems/internal-error"
	ProblemTypeUnavailable      = "https://cdoweather.dev/problems/service-unavailable"
)

// NewProblem creates a new Problem with the given parameters.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		TraceID: traceID,
	}
}

// WithDetail adds a detail message to the Problem.
func (p *Problem) WithDetail(detail string) *Problem {
	p.Detail = detail
	return p
}

// WithInstance adds the request instance URI to the Problem.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// WithRun attaches run statistics to the Problem.
func (p *Problem) WithRun(run *etl.RunResult) *Problem {
	p.Run = run
	return p
}

// Write writes the Problem as JSON to the ResponseWriter.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewUnauthorized creates a 401 Unauthorized problem.
func NewUnauthorized(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeUnauthorized, "Unauthorized", http.StatusUnauthorized, traceID).
		WithDetail(detail)
}

// NewNotFound creates a 404 Not Found problem.
func NewNotFound(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeNotFound, "Not found", http.StatusNotFound, traceID).
		WithDetail(detail)
}

// NewMethodNotAllowed creates a 405 Method Not Allowed problem.
func NewMethodNotAllowed(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeMethodNotAllowed, "Method not allowed", http.StatusMethodNotAllowed, traceID).
		WithDetail(detail)
}

// NewRunInProgress creates a 409 Conflict problem for overlapping run triggers.
func NewRunInProgress(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeRunInProgress, "Run in progress", http.StatusConflict, traceID).
		WithDetail(detail)
}

// NewTooManyRequests creates a 429 Too Many Requests problem.
func NewTooManyRequests(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests, traceID).
		WithDetail(detail)
}

// NewRunFailed creates a 500 problem for a run that aborted. The partial
// statistics are embedded under "run".
func NewRunFailed(traceID, detail string, run *etl.RunResult) *Problem {
	return NewProblem(ProblemTypeRunFailed, "Run failed", http.StatusInternalServerError, traceID).
		WithDetail(detail).
		WithRun(run)
}

// NewInternalError creates a 500 Internal Server Error problem.
func NewInternalError(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeInternal, "Internal server error", http.StatusInternalServerError, traceID).
		WithDetail(detail)
}

// NewServiceUnavailable creates a 503 Service Unavailable problem.
func NewServiceUnavailable(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable, traceID).
		WithDetail(detail)
}
