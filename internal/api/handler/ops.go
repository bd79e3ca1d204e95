// Package handler provides the HTTP handlers of the fetcher service.
package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/cdoweather/cdoweather/internal/api/models"
	"github.com/cdoweather/cdoweather/internal/api/response"
	"github.com/cdoweather/cdoweather/internal/etl"
	"github.com/cdoweather/cdoweather/internal/provider/resilience"
)

// DefaultCheckTimeout bounds each readiness check.
const DefaultCheckTimeout = 5 * time.Second

// Checker is a dependency probed by the readiness endpoint.
type Checker interface {
	Ping(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

// Ping calls f.
func (f CheckerFunc) Ping(ctx context.Context) error { return f(ctx) }

// RunState exposes the progress and outcome of pipeline runs.
type RunState interface {
	Running() bool
	Last() (*etl.RunResult, error)
}

// OpsConfig holds the dependencies of OpsHandler.
type OpsConfig struct {
	Version   string
	BuildTime string

	// Registry reports upstream provider health. Optional.
	Registry *resilience.Registry

	// Runs reports the last run. Optional.
	Runs RunState

	// Checks are probed by the readiness endpoint, keyed by name.
	Checks map[string]Checker

	// CheckTimeout bounds each check. Default: DefaultCheckTimeout.
	CheckTimeout time.Duration
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = DefaultCheckTimeout
	}
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - probes every configured dependency.
// Any failing check makes the service unready.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.cfg.Checks))
	for name := range h.cfg.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	readiness := models.Readiness{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Checks: make([]models.SubsystemStatus, 0, len(names)),
	}

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), h.cfg.CheckTimeout)
		err := h.cfg.Checks[name].Ping(ctx)
		cancel()

		check := models.SubsystemStatus{Name: name, Status: models.HealthStatusOK}
		if err != nil {
			detail := err.Error()
			check.Status = models.HealthStatusFail
			check.Detail = &detail
			readiness.Status = models.HealthStatusFail
		}
		readiness.Checks = append(readiness.Checks, check)
	}

	status := http.StatusOK
	if readiness.Status != models.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, readiness)
}

// SystemStatus handles GET /v1/ops/status - provider circuit state and the last run.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(time.Now()),
		Providers: []models.ProviderStatus{},
	}

	if h.cfg.Registry != nil {
		for _, health := range h.cfg.Registry.GetAllHealth() {
			provider := providerStatus(health)
			if provider.Status != models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
			status.Providers = append(status.Providers, provider)
		}
	}

	if h.cfg.Runs != nil {
		status.Running = h.cfg.Runs.Running()
		last, err := h.cfg.Runs.Last()
		status.LastRun = last
		if err != nil {
			msg := err.Error()
			status.LastRunErr = &msg
			status.Status = models.HealthStatusDegraded
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func providerStatus(health *resilience.ProviderHealth) models.ProviderStatus {
	provider := models.ProviderStatus{
		Provider:     health.Name,
		CircuitState: health.CircuitState.String(),
	}

	switch health.Status() {
	case "ok":
		provider.Status = models.HealthStatusOK
	case "degraded":
		provider.Status = models.HealthStatusDegraded
	default:
		provider.Status = models.HealthStatusFail
	}

	if health.LastSuccessAt != nil {
		ts := models.Timestamp(*health.LastSuccessAt)
		provider.LastSuccessAt = &ts
	}
	if health.LastFailureAt != nil {
		ts := models.Timestamp(*health.LastFailureAt)
		provider.LastFailureAt = &ts
	}
	if health.LastError != "" {
		msg := health.LastError
		provider.Message = &msg
	}
	return provider
}
