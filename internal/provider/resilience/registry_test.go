package resilience_test

import (
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdoweather/cdoweather/internal/provider/resilience"
)

func registered(t *testing.T, registry *resilience.Registry, name string) *resilience.ProviderHealth {
	t.Helper()
	for _, health := range registry.GetAllHealth() {
		if health.Name == name {
			return health
		}
	}
	t.Fatalf("provider %q not registered", name)
	return nil
}

func TestRegistry_RegisterReportsClosedCircuit(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("noaa-cdo")
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	require.Len(t, registry.GetAllHealth(), 1)

	health := registered(t, registry, "noaa-cdo")
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)
	assert.True(t, health.IsHealthy())
	assert.False(t, health.IsDegraded())
	assert.False(t, health.IsUnhealthy())
	assert.Equal(t, "ok", health.Status())
	assert.Nil(t, health.LastSuccessAt)
	assert.Equal(t, "noaa-cdo", client.Name())
}

func TestRegistry_RecordFailure(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("noaa-cdo")
	cfg.Registry = registry
	_ = resilience.NewClient(cfg)

	registry.RecordFailure("noaa-cdo", assert.AnError)

	health := registered(t, registry, "noaa-cdo")
	require.NotNil(t, health.LastFailureAt)
	assert.WithinDuration(t, time.Now(), *health.LastFailureAt, time.Second)
	assert.Equal(t, assert.AnError.Error(), health.LastError)
}

func TestRegistry_GetAllHealthSortedByName(t *testing.T) {
	registry := resilience.NewRegistry()
	for _, name := range []string{"provider-c", "provider-a", "provider-b"} {
		cfg := resilience.DefaultClientConfig(name)
		cfg.Registry = registry
		_ = resilience.NewClient(cfg)
	}

	health := registry.GetAllHealth()
	require.Len(t, health, 3)
	assert.Equal(t, "provider-a", health[0].Name)
	assert.Equal(t, "provider-b", health[1].Name)
	assert.Equal(t, "provider-c", health[2].Name)
}

func TestRegistry_RecordOnUnknownProviderIsNoop(t *testing.T) {
	registry := resilience.NewRegistry()

	registry.RecordSuccess("missing")
	registry.RecordFailure("missing", assert.AnError)

	assert.Empty(t, registry.GetAllHealth())
}
