// Package api provides the HTTP surface of the fetcher service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/cdoweather/cdoweather/internal/api/handler"
	"github.com/cdoweather/cdoweather/internal/api/middleware"
	"github.com/cdoweather/cdoweather/internal/api/response"
	"github.com/cdoweather/cdoweather/internal/etl"
	"github.com/cdoweather/cdoweather/internal/provider/resilience"
)

// DefaultServiceName names the service in traces when RouterConfig.ServiceName is empty.
const DefaultServiceName = "cdoweather-fetcher"

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// Registry reports upstream provider health on /v1/ops/status.
	Registry *resilience.Registry

	// Runs executes and reports pipeline runs.
	Runs *etl.Exclusive

	// Checks are probed by /v1/ops/ready.
	Checks map[string]handler.Checker

	// TokenValidator protects the trigger and status endpoints. Nil disables auth.
	TokenValidator middleware.TokenValidator

	// TriggerRateLimit is the number of trigger requests allowed per minute per IP.
	TriggerRateLimit int
}

// NewRouter creates a new chi router with all routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.ContentTypeJSON)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		response.NotFound(w, req, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		response.MethodNotAllowed(w, req, "method not supported on this endpoint")
	})

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Registry:  cfg.Registry,
		Runs:      runState(cfg.Runs),
		Checks:    cfg.Checks,
	})

	authMiddleware := middleware.TriggerAuth(cfg.TokenValidator)

	if cfg.Runs != nil {
		runHandler := handler.NewRunHandler(cfg.Runs, cfg.Logger)
		triggerLimit := middleware.RateLimitByIP(middleware.TriggerRateLimit(cfg.TriggerRateLimit))

		r.Group(func(r chi.Router) {
			r.Use(triggerLimit)
			r.Use(authMiddleware)
			r.Get("/", runHandler.Trigger)
			r.Post("/", runHandler.Trigger)
		})
	}

	r.Route("/v1/ops", func(r chi.Router) {
		r.Get("/health", opsHandler.HealthCheck)
		r.Get("/ready", opsHandler.ReadinessCheck)
		r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
	})

	return r
}

// runState avoids handing OpsHandler a typed nil.
func runState(runs *etl.Exclusive) handler.RunState {
	if runs == nil {
		return nil
	}
	return runs
}
