package config_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdoweather/cdoweather/internal/config"
	"github.com/cdoweather/cdoweather/internal/provider/resilience"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "https://www.ncei.noaa.gov/cdo-web/api/v2", cfg.NOAA.BaseURL)
	assert.Equal(t, "ncdc_cdo_web_services_token", cfg.NOAA.TokenSecret)
	assert.Equal(t, 1000, cfg.NOAA.PageSize)
	assert.Equal(t, 10*time.Second, cfg.NOAA.Timeout)
	assert.Equal(t, uint64(2), cfg.NOAA.MaxRetries)
	assert.Equal(t, "FIPS:08", cfg.Job.LocationID)
	assert.Equal(t, "GHCND", cfg.Job.DatasetID)
	assert.Equal(t, "2000-01-01", cfg.Job.ActiveSince)
	assert.Equal(t, 7, cfg.Job.TrailingDays)
	assert.Equal(t, "weather", cfg.Publish.Topic)
	assert.Equal(t, config.GapSourceNone, cfg.GapSource())
	assert.False(t, cfg.RunOnce)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
projectId: weather-prod
noaa:
  pageSize: 500
  timeout: 30s
  requestsPerSecond: 2.5
job:
  locationId: FIPS:56
  concurrency: 4
  runCallQuota: 10000
publish:
  topic: weather-raw
  ackTimeout: 1m
gaps:
  source: bigquery
  view: warehouse.missing_days
`), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "weather-prod", cfg.ProjectID)
	assert.Equal(t, 500, cfg.NOAA.PageSize)
	assert.Equal(t, 30*time.Second, cfg.NOAA.Timeout)
	assert.InDelta(t, 2.5, cfg.NOAA.RequestsPerSecond, 0.0001)
	assert.Equal(t, "FIPS:56", cfg.Job.LocationID)
	assert.Equal(t, "GHCND", cfg.Job.DatasetID, "unset keys keep defaults")
	assert.Equal(t, 4, cfg.Job.Concurrency)
	assert.Equal(t, int64(10000), cfg.Job.RunCallQuota)
	assert.Equal(t, "weather-raw", cfg.Publish.Topic)
	assert.Equal(t, time.Minute, cfg.Publish.AckTimeout)
	assert.Equal(t, config.GapSourceBigQuery, cfg.GapSource())
	assert.Equal(t, "warehouse.missing_days", cfg.Gaps.View)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("job:\n  concurrency: 4\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("ETL_CONCURRENCY", "2")
	t.Setenv("PUBLISH_DRY_RUN", "true")
	t.Setenv("RUN_ONCE", "1")
	t.Setenv("ETL_ACTIVE_SINCE", "2010-06-01")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Job.Concurrency)
	assert.True(t, cfg.Publish.DryRun)
	assert.True(t, cfg.RunOnce)

	job := cfg.ETLJob()
	assert.Equal(t, time.Date(2010, 6, 1, 0, 0, 0, 0, time.UTC), job.ActiveSince)
	assert.Equal(t, 2, job.Concurrency)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ETL_CONCURRENCY", "many")

	_, err := config.Load()
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"page size too large", func(c *config.Config) { c.NOAA.PageSize = 1001 }},
		{"page size zero", func(c *config.Config) { c.NOAA.PageSize = 0 }},
		{"bad active since", func(c *config.Config) { c.Job.ActiveSince = "01/01/2000" }},
		{"zero concurrency", func(c *config.Config) { c.Job.Concurrency = 0 }},
		{"negative quota", func(c *config.Config) { c.Job.RunCallQuota = -1 }},
		{"unknown gap source", func(c *config.Config) { c.Gaps.Source = "sqlite" }},
		{"bigquery without project", func(c *config.Config) { c.Gaps.Source = "bigquery" }},
		{"signing key without audience", func(c *config.Config) { c.Trigger.SigningKey = "secret" }},
		{"no topic", func(c *config.Config) { c.Publish.Topic = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), config.ErrInvalid)
		})
	}

	assert.NoError(t, config.Default().Validate())
}

func TestHTTPClient(t *testing.T) {
	cfg := config.Default()
	registry := resilience.NewRegistry()

	client := cfg.HTTPClient(registry, zerolog.Nop())

	assert.Equal(t, "noaa-cdo", client.Name)
	assert.Equal(t, uint64(2), client.MaxRetries)
	assert.Equal(t, 2*time.Second, client.InitialInterval)
	assert.InDelta(t, 5.0, client.RequestsPerSecond, 0.0001)
	assert.Same(t, registry, client.Registry)
	require.NotNil(t, client.CircuitBreaker)
	assert.NotNil(t, client.CircuitBreaker.OnStateChange)
}

func TestHTTPClient_LogsBreakerTransitions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	var buf bytes.Buffer
	cfg := config.Default()
	cfg.NOAA.MaxRetries = 0
	cfg.NOAA.RequestsPerSecond = 0

	client := resilience.NewClient(cfg.HTTPClient(resilience.NewRegistry(), zerolog.New(&buf)))

	for i := 0; i < resilience.DefaultConsecutiveFailures; i++ {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
		require.NoError(t, err)
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Contains(t, buf.String(), "circuit breaker state changed")
	assert.Contains(t, buf.String(), `"breaker":"noaa-cdo"`)
	assert.Contains(t, buf.String(), `"to":"open"`)
}
