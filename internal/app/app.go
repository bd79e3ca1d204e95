// Package app wires configuration into a runnable pipeline. Both entrypoints
// build their dependencies through New.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/cdoweather/cdoweather/internal/api/handler"
	"github.com/cdoweather/cdoweather/internal/config"
	"github.com/cdoweather/cdoweather/internal/database"
	"github.com/cdoweather/cdoweather/internal/etl"
	"github.com/cdoweather/cdoweather/internal/gaps"
	"github.com/cdoweather/cdoweather/internal/noaa"
	"github.com/cdoweather/cdoweather/internal/provider/resilience"
	"github.com/cdoweather/cdoweather/internal/publish"
	"github.com/cdoweather/cdoweather/internal/secrets"
)

// TokenEnvVar holds the CDO token for local runs, ahead of Secret Manager.
const TokenEnvVar = "NOAA_TOKEN"

// Options holds what New needs beyond the configuration. Every override is
// optional and replaces what the configuration would build.
type Options struct {
	Config config.Config
	Logger zerolog.Logger

	// Secrets resolves the CDO token. Default: TokenEnvVar, then Secret Manager
	// when a project is configured.
	Secrets secrets.Source

	// PubSub is an open client; New opens one for Config.ProjectID when needed.
	// A client passed in is not closed by App.Close.
	PubSub *pubsub.Client

	Publisher publish.Publisher
	GapSource gaps.Source
}

// App is the wired pipeline.
type App struct {
	Registry  *resilience.Registry
	NOAA      *noaa.Client
	Publisher publish.Publisher
	Job       *etl.Job
	Runs      *etl.Exclusive

	// PubSub is nil when nothing needs it (dry run without a trigger subscription).
	PubSub *pubsub.Client

	// Checks are probed by the readiness endpoint.
	Checks map[string]handler.Checker

	closers []func() error
}

// New builds the pipeline described by opts.Config. On error every resource
// opened so far is closed.
func New(ctx context.Context, opts Options) (_ *App, err error) {
	cfg := opts.Config
	logger := opts.Logger

	a := &App{
		Registry: resilience.NewRegistry(),
		Checks:   make(map[string]handler.Checker),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	source := opts.Secrets
	if source == nil {
		source, err = a.defaultSecrets(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	token, err := source.Secret(ctx, cfg.NOAA.TokenSecret)
	if err != nil {
		return nil, fmt.Errorf("resolving CDO token %q: %w", cfg.NOAA.TokenSecret, err)
	}

	httpClient := resilience.NewClient(cfg.HTTPClient(a.Registry, logger.With().Str("component", "resilience").Logger()))
	a.NOAA, err = noaa.NewClient(noaa.ClientConfig{
		Token:      token,
		BaseURL:    cfg.NOAA.BaseURL,
		PageSize:   cfg.NOAA.PageSize,
		HTTPClient: httpClient,
		Logger:     logger.With().Str("component", "noaa").Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating CDO client: %w", err)
	}
	a.Checks["noaa"] = a.NOAA

	a.PubSub = opts.PubSub
	if a.PubSub == nil && (!cfg.Publish.DryRun || cfg.Trigger.Subscription != "") {
		client, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("creating pubsub client: %w", err)
		}
		a.PubSub = client
		a.closers = append(a.closers, client.Close)
	}

	a.Publisher = opts.Publisher
	if a.Publisher == nil {
		a.Publisher, err = a.newPublisher(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	gapSource := opts.GapSource
	if gapSource == nil {
		gapSource, err = a.newGapSource(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	metrics, err := etl.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating run metrics: %w", err)
	}

	a.Job, err = etl.NewJob(etl.JobOptions{
		Config:    cfg.ETLJob(),
		Fetcher:   a.NOAA,
		Publisher: a.Publisher,
		GapSource: gapSource,
		Metrics:   metrics,
		Logger:    logger.With().Str("component", "etl").Logger(),
	})
	if err != nil {
		return nil, err
	}
	a.Runs = etl.NewExclusive(a.Job)

	logger.Info().
		Str("mode", a.Job.Mode()).
		Str("location_id", cfg.Job.LocationID).
		Bool("dry_run", cfg.Publish.DryRun).
		Str("topic", cfg.Publish.Topic).
		Msg("pipeline ready")

	return a, nil
}

// Close releases every resource New opened, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) defaultSecrets(ctx context.Context, cfg config.Config, logger zerolog.Logger) (secrets.Source, error) {
	chain := secrets.ChainSource{
		secrets.EnvSource{Vars: map[string]string{cfg.NOAA.TokenSecret: TokenEnvVar}},
	}

	if cfg.ProjectID != "" && !envSet(TokenEnvVar) {
		client, err := secrets.NewSecretManagerClient(ctx)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		chain = append(chain, secrets.NewSecretManagerSource(client, cfg.ProjectID, logger))
	}
	return secrets.NewCachedSource(chain), nil
}

func (a *App) newPublisher(cfg config.Config, logger zerolog.Logger) (publish.Publisher, error) {
	if cfg.Publish.DryRun {
		logger.Warn().Msg("dry run: records are kept in memory, not published")
		return publish.NewMemoryPublisher(), nil
	}

	p, err := publish.NewPubSubPublisher(publish.PubSubConfig{
		Client:     a.PubSub,
		Topic:      cfg.Publish.Topic,
		AckTimeout: cfg.Publish.AckTimeout,
		Logger:     logger.With().Str("component", "publish").Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating publisher: %w", err)
	}
	a.closers = append(a.closers, func() error {
		p.Stop()
		return nil
	})
	return p, nil
}

func (a *App) newGapSource(ctx context.Context, cfg config.Config, logger zerolog.Logger) (gaps.Source, error) {
	logger = logger.With().Str("component", "gaps").Logger()

	switch cfg.GapSource() {
	case config.GapSourceBigQuery:
		client, err := bigquery.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("creating bigquery client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return gaps.NewBigQuerySource(gaps.BigQuerySourceConfig{
			Client: client,
			View:   cfg.Gaps.View,
			Logger: logger,
		}), nil

	case config.GapSourcePostgres:
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
		a.Checks["warehouse"] = pool
		logger.Info().
			Str("host", dbConfig.Host).
			Str("database", dbConfig.Database).
			Msg("database connected")
		return gaps.NewPostgresSource(pool, cfg.Gaps.View, logger), nil

	default:
		return nil, nil
	}
}

func envSet(key string) bool {
	return strings.TrimSpace(os.Getenv(key)) != ""
}
