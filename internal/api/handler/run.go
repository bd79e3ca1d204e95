package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/cdoweather/cdoweather/internal/api/middleware"
	"github.com/cdoweather/cdoweather/internal/api/response"
	"github.com/cdoweather/cdoweather/internal/etl"
)

// RunHandler triggers pipeline runs.
type RunHandler struct {
	runner etl.Runner
	logger zerolog.Logger
}

// NewRunHandler creates a RunHandler. Overlapping triggers are expected to be
// rejected by runner with etl.ErrRunInProgress (see etl.Exclusive).
func NewRunHandler(runner etl.Runner, logger zerolog.Logger) *RunHandler {
	return &RunHandler{runner: runner, logger: logger}
}

// Trigger handles GET|POST / - runs the pipeline to completion and returns its statistics.
// The run is detached from the request's cancellation so a caller that gives up
// waiting does not cut the run short.
func (h *RunHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())

	logger := h.logger.With().
		Str("request_id", middleware.GetRequestID(r.Context())).
		Str("subject", middleware.GetTriggerSubject(r.Context())).
		Logger()
	logger.Info().Msg("run triggered")

	result, err := h.runner.Run(ctx)
	switch {
	case errors.Is(err, etl.ErrRunInProgress):
		logger.Warn().Msg("run rejected, another run is in progress")
		response.RunInProgress(w, r, "a run is already in progress")
	case err != nil:
		response.RunFailed(w, r, err.Error(), result)
	default:
		response.JSON(w, r, http.StatusOK, result)
	}
}
