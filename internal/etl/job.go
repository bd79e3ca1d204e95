package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/cdoweather/cdoweather/internal/gaps"
	"github.com/cdoweather/cdoweather/internal/noaa"
	"github.com/cdoweather/cdoweather/internal/publish"
)

// Run modes.
const (
	ModeTrailing = "trailing"
	ModeGaps     = "gaps"
)

// ErrMissingDependency is returned by NewJob when a required collaborator is nil.
var ErrMissingDependency = errors.New("missing job dependency")

// Fetcher retrieves every record of a paginated listing.
type Fetcher interface {
	Fetch(ctx context.Context, req noaa.FetchRequest, counter noaa.CallCounter) ([]noaa.Record, error)
}

// JobOptions holds the collaborators of a Job.
type JobOptions struct {
	Config    JobConfig
	Fetcher   Fetcher
	Publisher publish.Publisher

	// GapSource switches measurement fetching to gap mode when set.
	GapSource gaps.Source

	// Metrics is optional.
	Metrics *Metrics

	Logger zerolog.Logger
}

// Job runs the fetch and publish pipeline.
type Job struct {
	config    JobConfig
	fetcher   Fetcher
	publisher publish.Publisher
	gapSource gaps.Source
	metrics   *Metrics
	logger    zerolog.Logger
}

// NewJob creates a pipeline job.
func NewJob(opts JobOptions) (*Job, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher", ErrMissingDependency)
	}
	if opts.Publisher == nil {
		return nil, fmt.Errorf("%w: publisher", ErrMissingDependency)
	}

	return &Job{
		config:    opts.Config.withDefaults(),
		fetcher:   opts.Fetcher,
		publisher: opts.Publisher,
		gapSource: opts.GapSource,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}, nil
}

// Mode returns the measurement mode of the job.
func (j *Job) Mode() string {
	if j.gapSource != nil {
		return ModeGaps
	}
	return ModeTrailing
}

// Run executes one pass of the pipeline. The returned result is always populated,
// including when a prerequisite stage fails and a non-nil error is returned.
// Measurement failures for individual stations are counted, never returned.
func (j *Job) Run(ctx context.Context) (*RunResult, error) {
	runID := uuid.NewString()
	stats := &RunStats{}
	started := time.Now()

	logger := j.logger.With().
		Str("run_id", runID).
		Str("mode", j.Mode()).
		Logger()

	logger.Info().
		Str("location_id", j.config.LocationID).
		Int("concurrency", j.config.Concurrency).
		Int64("run_call_quota", j.config.RunCallQuota).
		Msg("starting run")

	err := j.run(ctx, logger, stats)
	if err != nil && ctx.Err() != nil {
		stats.cancelled.Store(true)
	}

	result := stats.result(runID, j.Mode(), started, time.Now())
	j.metrics.record(ctx, result, err != nil)

	event := logger.Info()
	if err != nil {
		event = logger.Error().Err(err)
	}
	event.
		Int64("api_call_count", result.APICallCount).
		Int64("error_count", result.ErrorCount).
		Int64("published_count", result.PublishedCount).
		Int64("publish_error_count", result.PublishErrorCount).
		Int64("stations_processed", result.StationsProcessed).
		Bool("quota_exhausted", result.QuotaExhausted).
		Bool("cancelled", result.Cancelled).
		Float64("duration_in_seconds", result.DurationInSeconds).
		Msg("run finished")

	return result, err
}

func (j *Job) run(ctx context.Context, logger zerolog.Logger, stats *RunStats) error {
	today := j.config.today()

	datatypes, err := j.fetcher.Fetch(ctx, j.datatypesRequest(), stats)
	if err != nil {
		stats.errors.Add(1)
		return fmt.Errorf("fetching datatypes: %w", err)
	}
	logger.Info().Int("records", len(datatypes)).Msg("fetched datatypes")
	j.publishAll(ctx, logger, stats, publish.KindDatatype, datatypes)

	stations, err := j.fetcher.Fetch(ctx, j.stationsRequest(today), stats)
	if err != nil {
		stats.errors.Add(1)
		return fmt.Errorf("fetching stations: %w", err)
	}
	logger.Info().Int("records", len(stations)).Msg("fetched stations")
	j.publishAll(ctx, logger, stats, publish.KindStation, stations)

	requests, err := j.measurementRequests(ctx, logger, stations, today)
	if err != nil {
		stats.errors.Add(1)
		return err
	}

	j.fetchMeasurements(ctx, logger, stats, requests)
	return nil
}

func (j *Job) datatypesRequest() noaa.FetchRequest {
	return noaa.FetchRequest{
		Endpoint: noaa.EndpointDatatypes,
		Filter: noaa.Filter{
			LocationID: j.config.LocationID,
			EndDate:    j.config.ActiveSince,
		},
	}
}

// stationsRequest lists stations active between ActiveSince and the start of the
// trailing window. The stations endpoint reads startdate/enddate as activity
// bounds, hence the reversed order.
func (j *Job) stationsRequest(today time.Time) noaa.FetchRequest {
	return noaa.FetchRequest{
		Endpoint: noaa.EndpointStations,
		Filter: noaa.Filter{
			LocationID: j.config.LocationID,
			StartDate:  j.windowStart(today),
			EndDate:    j.config.ActiveSince,
		},
	}
}

func (j *Job) measurementRequest(stationID string, start, end time.Time) noaa.FetchRequest {
	return noaa.FetchRequest{
		Endpoint: noaa.EndpointMeasurements,
		Filter: noaa.Filter{
			DatasetID: j.config.DatasetID,
			StationID: stationID,
			Units:     j.config.Units,
			StartDate: start,
			EndDate:   end,
		},
	}
}

func (j *Job) windowStart(today time.Time) time.Time {
	return today.AddDate(0, 0, -j.config.TrailingDays)
}

func (j *Job) measurementRequests(ctx context.Context, logger zerolog.Logger, stations []noaa.Record, today time.Time) ([]noaa.FetchRequest, error) {
	if j.gapSource == nil {
		start := j.windowStart(today)
		requests := make([]noaa.FetchRequest, 0, len(stations))
		for _, station := range stations {
			id := station.ID()
			if id == "" {
				logger.Warn().Msg("skipping station without id")
				continue
			}
			requests = append(requests, j.measurementRequest(id, start, today))
		}
		return requests, nil
	}

	missing, err := j.gapSource.MissingDays(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying missing days: %w", err)
	}

	ranges := gaps.Ranges(gaps.Resolve(missing))
	logger.Info().
		Int("missing_days", len(missing)).
		Int("stations_with_gaps", len(ranges)).
		Msg("resolved gap ranges")

	requests := make([]noaa.FetchRequest, 0, len(ranges))
	for _, r := range ranges {
		requests = append(requests, j.measurementRequest(r.StationID, r.Start, r.End))
	}
	return requests, nil
}

// fetchMeasurements fetches and publishes each station's measurements. A failed
// station is logged and counted without affecting the others.
func (j *Job) fetchMeasurements(ctx context.Context, logger zerolog.Logger, stats *RunStats, requests []noaa.FetchRequest) {
	p := pool.New().WithMaxGoroutines(j.config.Concurrency)

	for _, req := range requests {
		if ctx.Err() != nil {
			stats.cancelled.Store(true)
			logger.Warn().Err(ctx.Err()).Msg("run cancelled, not starting further stations")
			break
		}
		if j.quotaReached(stats) {
			stats.quotaExhausted.Store(true)
			logger.Warn().
				Int64("api_call_count", stats.APICalls()).
				Msg("run call quota reached, not starting further stations")
			break
		}

		p.Go(func() {
			j.fetchStation(ctx, logger, stats, req)
		})
	}

	p.Wait()
}

func (j *Job) quotaReached(stats *RunStats) bool {
	return j.config.RunCallQuota > 0 && stats.APICalls() >= j.config.RunCallQuota
}

func (j *Job) fetchStation(ctx context.Context, logger zerolog.Logger, stats *RunStats, req noaa.FetchRequest) {
	stationLogger := logger.With().Str("station_id", req.Filter.StationID).Logger()

	// The quota may have been reached by workers that started after this task
	// was queued.
	if j.quotaReached(stats) {
		stats.quotaExhausted.Store(true)
		return
	}
	if ctx.Err() != nil {
		stats.cancelled.Store(true)
		return
	}

	records, err := j.fetcher.Fetch(ctx, req, stats)
	if err != nil && ctx.Err() != nil {
		// Interrupted, not a station fault.
		stats.cancelled.Store(true)
		stationLogger.Warn().Err(err).Msg("station fetch interrupted by cancellation")
		return
	}
	if err != nil {
		stats.errors.Add(1)
		stationLogger.Error().Err(err).Msg("skipping station")
		return
	}

	stats.stationsProcessed.Add(1)
	stationLogger.Debug().Int("records", len(records)).Msg("fetched measurements")
	j.publishAll(ctx, stationLogger, stats, publish.KindMeasurement, records)
}

func (j *Job) publishAll(ctx context.Context, logger zerolog.Logger, stats *RunStats, kind publish.RecordKind, records []noaa.Record) {
	for _, record := range records {
		if _, err := j.publisher.Publish(ctx, kind, record); err != nil {
			stats.publishErrors.Add(1)
			logger.Error().
				Err(err).
				Str("record_type", string(kind)).
				Str("record_id", record.ID()).
				Msg("failed to publish record")
			continue
		}
		stats.published.Add(1)
	}
}
