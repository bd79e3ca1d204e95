// Package config loads service configuration from an optional YAML file and
// environment variables. Environment variables take precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/cdoweather/cdoweather/internal/etl"
	"github.com/cdoweather/cdoweather/internal/gaps"
	"github.com/cdoweather/cdoweather/internal/noaa"
	"github.com/cdoweather/cdoweather/internal/provider/resilience"
	"github.com/cdoweather/cdoweather/internal/publish"
	"github.com/cdoweather/cdoweather/internal/secrets"
)

// Gap source kinds.
const (
	GapSourceNone     = ""
	GapSourceBigQuery = "bigquery"
	GapSourcePostgres = "postgres"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete service configuration.
type Config struct {
	Env       string          `yaml:"env"`
	Port      string          `yaml:"port"`
	ProjectID string          `yaml:"projectId"`
	RunOnce   bool            `yaml:"runOnce"`
	NOAA      NOAAConfig      `yaml:"noaa"`
	Job       JobConfig       `yaml:"job"`
	Publish   PublishConfig   `yaml:"publish"`
	Gaps      GapsConfig      `yaml:"gaps"`
	Trigger   TriggerConfig   `yaml:"trigger"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// NOAAConfig configures the CDO client.
type NOAAConfig struct {
	BaseURL           string        `yaml:"baseUrl"`
	TokenSecret       string        `yaml:"tokenSecret"`
	PageSize          int           `yaml:"pageSize"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        uint64        `yaml:"maxRetries"`
	RetryInterval     time.Duration `yaml:"retryInterval"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
}

// JobConfig configures pipeline runs.
type JobConfig struct {
	LocationID   string `yaml:"locationId"`
	DatasetID    string `yaml:"datasetId"`
	Units        string `yaml:"units"`
	ActiveSince  string `yaml:"activeSince"`
	TrailingDays int    `yaml:"trailingDays"`
	Concurrency  int    `yaml:"concurrency"`

	// RunCallQuota caps logical API calls per run. The CDO daily limit spans
	// runs, so the scheduler must space runs to stay within it.
	RunCallQuota int64 `yaml:"runCallQuota"`
}

// PublishConfig configures the message publisher.
type PublishConfig struct {
	Topic      string        `yaml:"topic"`
	AckTimeout time.Duration `yaml:"ackTimeout"`
	DryRun     bool          `yaml:"dryRun"`
}

// GapsConfig selects the warehouse used in gap mode.
type GapsConfig struct {
	Source string `yaml:"source"`
	View   string `yaml:"view"`
}

// TriggerConfig configures how runs are triggered.
type TriggerConfig struct {
	SigningKey   string `yaml:"signingKey"`
	Audience     string `yaml:"audience"`
	Issuer       string `yaml:"issuer"`
	RateLimit    int    `yaml:"rateLimit"`
	Subscription string `yaml:"subscription"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlpEndpoint"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Env:  "development",
		Port: "8080",
		NOAA: NOAAConfig{
			BaseURL:           noaa.DefaultBaseURL,
			TokenSecret:       secrets.DefaultTokenSecret,
			PageSize:          noaa.DefaultPageSize,
			Timeout:           10 * time.Second,
			MaxRetries:        2,
			RetryInterval:     2 * time.Second,
			RequestsPerSecond: 5,
		},
		Job: JobConfig{
			LocationID:   etl.DefaultLocationID,
			DatasetID:    etl.DefaultDatasetID,
			Units:        etl.DefaultUnits,
			ActiveSince:  etl.DefaultActiveSince.Format(noaa.DateFormat),
			TrailingDays: etl.DefaultTrailingDays,
			Concurrency:  1,
		},
		Publish: PublishConfig{
			Topic:      "weather",
			AckTimeout: publish.DefaultAckTimeout,
		},
		Gaps: GapsConfig{
			View: gaps.DefaultView,
		},
		Trigger: TriggerConfig{
			RateLimit: 10,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
		},
	}
}

// Load reads CONFIG_FILE when set, applies environment overrides and validates
// the result.
func Load() (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path is operator supplied
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("unmarshal config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Env = getEnvOrDefault("APP_ENV", c.Env)
	c.Port = getEnvOrDefault("APP_PORT", c.Port)
	c.ProjectID = getEnvOrDefault("GOOGLE_CLOUD_PROJECT", c.ProjectID)

	c.NOAA.BaseURL = getEnvOrDefault("NOAA_BASE_URL", c.NOAA.BaseURL)
	c.NOAA.TokenSecret = getEnvOrDefault("NOAA_TOKEN_SECRET", c.NOAA.TokenSecret)

	c.Job.LocationID = getEnvOrDefault("ETL_LOCATION_ID", c.Job.LocationID)
	c.Job.DatasetID = getEnvOrDefault("ETL_DATASET_ID", c.Job.DatasetID)
	c.Job.Units = getEnvOrDefault("ETL_UNITS", c.Job.Units)
	c.Job.ActiveSince = getEnvOrDefault("ETL_ACTIVE_SINCE", c.Job.ActiveSince)

	c.Publish.Topic = getEnvOrDefault("PUBSUB_TOPIC", c.Publish.Topic)

	c.Gaps.Source = getEnvOrDefault("GAP_SOURCE", c.Gaps.Source)
	c.Gaps.View = getEnvOrDefault("GAP_VIEW", c.Gaps.View)

	c.Trigger.SigningKey = getEnvOrDefault("TRIGGER_SIGNING_KEY", c.Trigger.SigningKey)
	c.Trigger.Audience = getEnvOrDefault("TRIGGER_AUDIENCE", c.Trigger.Audience)
	c.Trigger.Issuer = getEnvOrDefault("TRIGGER_ISSUER", c.Trigger.Issuer)
	c.Trigger.Subscription = getEnvOrDefault("TRIGGER_SUBSCRIPTION", c.Trigger.Subscription)

	c.Telemetry.OTLPEndpoint = getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.OTLPEndpoint)

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	collect(envInt("NOAA_PAGE_SIZE", &c.NOAA.PageSize))
	collect(envDuration("NOAA_TIMEOUT", &c.NOAA.Timeout))
	collect(envUint("NOAA_MAX_RETRIES", &c.NOAA.MaxRetries))
	collect(envDuration("NOAA_RETRY_INTERVAL", &c.NOAA.RetryInterval))
	collect(envFloat("NOAA_REQUESTS_PER_SECOND", &c.NOAA.RequestsPerSecond))
	collect(envInt("ETL_TRAILING_DAYS", &c.Job.TrailingDays))
	collect(envInt("ETL_CONCURRENCY", &c.Job.Concurrency))
	collect(envInt64("ETL_RUN_CALL_QUOTA", &c.Job.RunCallQuota))
	collect(envDuration("PUBLISH_ACK_TIMEOUT", &c.Publish.AckTimeout))
	collect(envBool("PUBLISH_DRY_RUN", &c.Publish.DryRun))
	collect(envInt("TRIGGER_RATE_LIMIT", &c.Trigger.RateLimit))
	collect(envBool("OTEL_ENABLED", &c.Telemetry.Enabled))
	collect(envBool("RUN_ONCE", &c.RunOnce))

	return errors.Join(errs...)
}

// Validate checks the configuration for values the service cannot run with.
func (c Config) Validate() error {
	if c.NOAA.PageSize < 1 || c.NOAA.PageSize > noaa.DefaultPageSize {
		return fmt.Errorf("%w: noaa.pageSize must be between 1 and %d", ErrInvalid, noaa.DefaultPageSize)
	}
	if c.NOAA.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: noaa.requestsPerSecond must be >=0", ErrInvalid)
	}
	if strings.TrimSpace(c.Job.LocationID) == "" {
		return fmt.Errorf("%w: job.locationId required", ErrInvalid)
	}
	if _, err := time.Parse(noaa.DateFormat, c.Job.ActiveSince); err != nil {
		return fmt.Errorf("%w: job.activeSince must be YYYY-MM-DD: %w", ErrInvalid, err)
	}
	if c.Job.TrailingDays <= 0 {
		return fmt.Errorf("%w: job.trailingDays must be >0", ErrInvalid)
	}
	if c.Job.Concurrency <= 0 {
		return fmt.Errorf("%w: job.concurrency must be >0", ErrInvalid)
	}
	if c.Job.RunCallQuota < 0 {
		return fmt.Errorf("%w: job.runCallQuota must be >=0", ErrInvalid)
	}
	if !c.Publish.DryRun && strings.TrimSpace(c.Publish.Topic) == "" {
		return fmt.Errorf("%w: publish.topic required", ErrInvalid)
	}

	switch strings.ToLower(c.Gaps.Source) {
	case GapSourceNone, GapSourcePostgres:
	case GapSourceBigQuery:
		if c.ProjectID == "" {
			return fmt.Errorf("%w: projectId required for the bigquery gap source", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: gaps.source must be bigquery|postgres or empty", ErrInvalid)
	}

	if c.Trigger.SigningKey != "" && c.Trigger.Audience == "" {
		return fmt.Errorf("%w: trigger.audience required with a signing key", ErrInvalid)
	}
	return nil
}

// ETLJob converts the job section into the pipeline's configuration.
func (c Config) ETLJob() etl.JobConfig {
	cfg := etl.DefaultJobConfig()
	cfg.LocationID = c.Job.LocationID
	cfg.DatasetID = c.Job.DatasetID
	cfg.Units = c.Job.Units
	if since, err := time.Parse(noaa.DateFormat, c.Job.ActiveSince); err == nil {
		cfg.ActiveSince = since
	}
	cfg.TrailingDays = c.Job.TrailingDays
	cfg.Concurrency = c.Job.Concurrency
	cfg.RunCallQuota = c.Job.RunCallQuota
	return cfg
}

// HTTPClient returns the resilient client configuration for the CDO API.
func (c Config) HTTPClient(registry *resilience.Registry, logger zerolog.Logger) resilience.ClientConfig {
	cfg := resilience.DefaultClientConfig(noaa.ProviderName)
	cfg.Timeout = c.NOAA.Timeout
	cfg.MaxRetries = c.NOAA.MaxRetries
	cfg.InitialInterval = c.NOAA.RetryInterval
	cfg.RequestsPerSecond = c.NOAA.RequestsPerSecond
	cfg.Registry = registry
	cfg.Logger = logger
	cfg.CircuitBreaker.OnStateChange = resilience.LogStateChange(logger)
	return cfg
}

// GapSource returns the normalised gap source kind.
func (c Config) GapSource() string {
	return strings.ToLower(strings.TrimSpace(c.Gaps.Source))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, dst *int) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, key, err)
	}
	*dst = v
	return nil
}

func envInt64(key string, dst *int64) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, key, err)
	}
	*dst = v
	return nil
}

func envUint(key string, dst *uint64) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, key, err)
	}
	*dst = v
	return nil
}

func envFloat(key string, dst *float64) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, key, err)
	}
	*dst = v
	return nil
}

func envBool(key string, dst *bool) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, key, err)
	}
	*dst = v
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, key, err)
	}
	*dst = v
	return nil
}
