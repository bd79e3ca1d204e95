package etl

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/cdoweather/cdoweather/internal/etl"

// Metrics holds the OpenTelemetry instruments reported after each run.
type Metrics struct {
	apiCalls      metric.Int64Counter
	errors        metric.Int64Counter
	published     metric.Int64Counter
	publishErrors metric.Int64Counter
	runDuration   metric.Float64Histogram
}

// NewMetrics creates the run instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	apiCalls, err := meter.Int64Counter(
		"etl.api.calls",
		metric.WithDescription("Logical CDO API calls made by pipeline runs"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"etl.errors",
		metric.WithDescription("Failed CDO fetches"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	published, err := meter.Int64Counter(
		"etl.records.published",
		metric.WithDescription("Records confirmed by the message broker"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	publishErrors, err := meter.Int64Counter(
		"etl.records.publish_errors",
		metric.WithDescription("Records the message broker did not confirm"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"etl.run.duration",
		metric.WithDescription("Wall-clock duration of pipeline runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		apiCalls:      apiCalls,
		errors:        errorCount,
		published:     published,
		publishErrors: publishErrors,
		runDuration:   runDuration,
	}, nil
}

func (m *Metrics) record(ctx context.Context, result *RunResult, failed bool) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("etl.mode", result.Mode),
		attribute.Bool("etl.failed", failed),
	)

	m.apiCalls.Add(ctx, result.APICallCount, attrs)
	m.errors.Add(ctx, result.ErrorCount, attrs)
	m.published.Add(ctx, result.PublishedCount, attrs)
	m.publishErrors.Add(ctx, result.PublishErrorCount, attrs)
	m.runDuration.Record(ctx, result.DurationInSeconds, attrs)
}
