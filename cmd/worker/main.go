// Package main provides the entrypoint for the Pub/Sub-triggered worker.
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
	"github.com/cdoweather/cdoweather/internal/app"
	"github.com/cdoweather/cdoweather/internal/config"
	"github.com/cdoweather/cdoweather/internal/telemetry"
	"github.com/cdoweather/cdoweather/internal/worker"
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
	const serviceName = "cdoweather-worker"

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
	if cfg.Trigger.Subscription == "" {
		log.Error().Msg("TRIGGER_SUBSCRIPTION is required")
		return 1
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("subscription", cfg.Trigger.Subscription).
		Msg("starting CDO worker")

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

	handler, err := worker.NewTriggerHandler(worker.HandlerConfig{
		Runs:   pipeline.Runs,
		Pinger: pipeline.NOAA,
		Logger: log.With().Str("component", "worker").Logger(),
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to create trigger handler")
		return 1
	}

	// Cloud Run needs a listening port; serve the ops endpoints without the trigger.
	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.NewRouter(api.RouterConfig{
			Version:     Version,
			BuildTime:   BuildTime,
			Logger:      log,
			ServiceName: serviceName,
			Registry:    pipeline.Registry,
			Checks:      pipeline.Checks,
		}),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	subscriber := worker.NewSubscriber(pipeline.PubSub, worker.DefaultConfig(cfg.Trigger.Subscription))
	exitCode := 0
	if err := handler.Start(ctx, subscriber); err != nil {
		log.Error().Err(err).Msg("subscriber stopped with error")
		exitCode = 1
	}

	log.Info().Msg("shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
		exitCode = 1
	}

	log.Info().Msg("worker stopped")
	return exitCode
}
