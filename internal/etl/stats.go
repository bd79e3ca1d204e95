package etl

import (
	"sync/atomic"
	"time"
)

// RunStats accumulates counters for a single run. It is safe for concurrent use
// and is created fresh by every Run.
type RunStats struct {
	apiCalls          atomic.Int64
	errors            atomic.Int64
	published         atomic.Int64
	publishErrors     atomic.Int64
	stationsProcessed atomic.Int64
	quotaExhausted    atomic.Bool
	cancelled         atomic.Bool
}

// AddCall records one logical API call. It satisfies noaa.CallCounter.
func (s *RunStats) AddCall() {
	s.apiCalls.Add(1)
}

// APICalls returns the number of logical API calls made so far.
func (s *RunStats) APICalls() int64 {
	return s.apiCalls.Load()
}

// Errors returns the number of failed fetches so far.
func (s *RunStats) Errors() int64 {
	return s.errors.Load()
}

// RunResult is the summary reported at the end of every run.
type RunResult struct {
	RunID             string    `json:"run_id"`
	Mode              string    `json:"mode"`
	APICallCount      int64     `json:"api_call_count"`
	ErrorCount        int64     `json:"error_count"`
	PublishedCount    int64     `json:"published_count"`
	PublishErrorCount int64     `json:"publish_error_count"`
	StationsProcessed int64     `json:"stations_processed"`
	QuotaExhausted    bool      `json:"quota_exhausted"`
	Cancelled         bool      `json:"cancelled"`
	DurationInSeconds float64   `json:"duration_in_seconds"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
}

func (s *RunStats) result(runID, mode string, started, finished time.Time) *RunResult {
	return &RunResult{
		RunID:             runID,
		Mode:              mode,
		APICallCount:      s.apiCalls.Load(),
		ErrorCount:        s.errors.Load(),
		PublishedCount:    s.published.Load(),
		PublishErrorCount: s.publishErrors.Load(),
		StationsProcessed: s.stationsProcessed.Load(),
		QuotaExhausted:    s.quotaExhausted.Load(),
		Cancelled:         s.cancelled.Load(),
		DurationInSeconds: finished.Sub(started).Seconds(),
		StartedAt:         started,
		FinishedAt:        finished,
	}
}
