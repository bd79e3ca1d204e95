// Package response provides utilities for HTTP response handling.
package response

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/cdoweather/cdoweather/internal/api/middleware"
	"github.com/cdoweather/cdoweather/internal/api/models"
	"github.com/cdoweather/cdoweather/internal/etl"
)

// JSON writes a JSON response with the given status code.
// Includes X-Request-Id header for correlation.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set(middleware.RequestIDHeader, requestID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error writes a Problem+JSON error response.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// NotFound writes a 404 Not Found error response.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewNotFound(middleware.GetRequestID(r.Context()), detail))
}

// MethodNotAllowed writes a 405 Method Not Allowed error response.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewMethodNotAllowed(middleware.GetRequestID(r.Context()), detail))
}

// RunInProgress writes a 409 Conflict error response.
func RunInProgress(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewRunInProgress(middleware.GetRequestID(r.Context()), detail))
}

// RunFailed writes a 500 error response carrying the partial run statistics.
func RunFailed(w http.ResponseWriter, r *http.Request, detail string, run *etl.RunResult) {
	Error(w, r, models.NewRunFailed(middleware.GetRequestID(r.Context()), detail, run))
}

// InternalError writes a 500 Internal Server Error response.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewInternalError(middleware.GetRequestID(r.Context()), detail))
}

// ServiceUnavailable writes a 503 Service Unavailable error response.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewServiceUnavailable(middleware.GetRequestID(r.Context()), detail))
}
