// Package etl runs one pass of the weather pipeline: reference data first, then
// per-station daily measurements, republishing every record as it is fetched.
package etl

import (
	"time"
)

// Defaults for the Colorado GHCND pipeline.
const (
	DefaultLocationID   = "FIPS:08"
	DefaultDatasetID    = "GHCND"
	DefaultUnits        = "metric"
	DefaultTrailingDays = 7
)

// DefaultActiveSince is the cut-off used for the datatypes and stations listings.
var DefaultActiveSince = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// JobConfig holds configuration for a pipeline run.
type JobConfig struct {
	// LocationID restricts datatypes and stations to a region.
	// Default: FIPS:08
	LocationID string

	// DatasetID is the measurement dataset.
	// Default: GHCND
	DatasetID string

	// Units is the measurement unit system.
	// Default: metric
	Units string

	// ActiveSince is passed as the enddate of the reference listings, which the
	// API reads as "active on or after".
	// Default: 2000-01-01
	ActiveSince time.Time

	// TrailingDays is the size of the trailing measurement window.
	// Default: 7
	TrailingDays int

	// Concurrency is the number of stations fetched in parallel.
	// Default: 1 (sequential)
	Concurrency int

	// RunCallQuota stops new station fetches once a run has made this many
	// logical API calls. Zero disables the cut-off. The count starts at zero
	// every run; keeping several runs within the upstream daily limit is up
	// to whoever schedules them.
	RunCallQuota int64

	// Now returns the current time. Used to compute the measurement window.
	// Default: time.Now
	Now func() time.Time
}

// DefaultJobConfig returns the default run configuration.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		LocationID:   DefaultLocationID,
		DatasetID:    DefaultDatasetID,
		Units:        DefaultUnits,
		ActiveSince:  DefaultActiveSince,
		TrailingDays: DefaultTrailingDays,
		Concurrency:  1,
		Now:          time.Now,
	}
}

func (c JobConfig) withDefaults() JobConfig {
	def := DefaultJobConfig()
	if c.LocationID == "" {
		c.LocationID = def.LocationID
	}
	if c.DatasetID == "" {
		c.DatasetID = def.DatasetID
	}
	if c.Units == "" {
		c.Units = def.Units
	}
	if c.ActiveSince.IsZero() {
		c.ActiveSince = def.ActiveSince
	}
	if c.TrailingDays <= 0 {
		c.TrailingDays = def.TrailingDays
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Now == nil {
		c.Now = def.Now
	}
	return c
}

// today returns the current UTC calendar day.
func (c JobConfig) today() time.Time {
	y, m, d := c.Now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
