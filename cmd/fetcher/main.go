// Package main provides the entrypoint for the CDO fetcher service.
//
// The service runs the pipeline once per trigger request, or exactly once and
// exits when RUN_ONCE=true.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/cdoweather/cdoweather/internal/api"
	"github.com/cdoweather/cdoweather/internal/api/middleware"
	"github.com/cdoweather/cdoweather/internal/app"
	"github.com/cdoweather/cdoweather/internal/auth"
	"github.com/cdoweather/cdoweather/internal/config"
	"github.com/cdoweather/cdoweather/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	const serviceName = "cdoweather-fetcher"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return 1
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting CDO fetcher")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize telemetry")
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	pipeline, err := app.New(ctx, app.Options{Config: cfg, Logger: log})
	if err != nil {
		log.Error().Err(err).Msg("failed to build pipeline")
		return 1
	}
	defer func() {
		if closeErr := pipeline.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to release pipeline resources")
		}
	}()

	if cfg.RunOnce {
		return runOnce(ctx, log, pipeline, tp)
	}
	return serve(ctx, log, cfg, pipeline, serviceName)
}

// runOnce executes a single run and reports its outcome through the exit code.
func runOnce(ctx context.Context, log zerolog.Logger, pipeline *app.App, tp *telemetry.Provider) int {
	_, err := pipeline.Runs.Run(ctx)

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if flushErr := tp.Flush(flushCtx); flushErr != nil {
		log.Warn().Err(flushErr).Msg("failed to flush telemetry")
	}

	if err != nil {
		return 1
	}
	return 0
}

func serve(ctx context.Context, log zerolog.Logger, cfg config.Config, pipeline *app.App, serviceName string) int {
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		return 1
	}

	var validator middleware.TokenValidator
	if cfg.Trigger.SigningKey != "" {
		tokens, err := auth.NewTokenService(auth.TokenConfig{
			SigningKey: cfg.Trigger.SigningKey,
			Issuer:     cfg.Trigger.Issuer,
			Audience:   cfg.Trigger.Audience,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to initialize trigger auth")
			return 1
		}
		validator = tokens
		log.Info().Str("audience", cfg.Trigger.Audience).Msg("trigger authentication enabled")
	} else {
		log.Warn().Msg("trigger authentication disabled - rely on platform IAM")
	}

	router := api.NewRouter(api.RouterConfig{
		Version:          Version,
		BuildTime:        BuildTime,
		Logger:           log,
		ServiceName:      serviceName,
		Metrics:          metrics,
		Registry:         pipeline.Registry,
		Runs:             pipeline.Runs,
		Checks:           pipeline.Checks,
		TokenValidator:   validator,
		TriggerRateLimit: cfg.Trigger.RateLimit,
	})

	// A run holds the trigger request open until it finishes, so there is no
	// write timeout.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
		return 1
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return 1
	}

	log.Info().Msg("server stopped")
	return 0
}
