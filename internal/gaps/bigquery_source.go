package gaps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

// BigQuerySource reads missing station days from a BigQuery view.
type BigQuerySource struct {
	client *bigquery.Client
	view   string
	logger zerolog.Logger
}

// BigQuerySourceConfig holds configuration for BigQuerySource.
type BigQuerySourceConfig struct {
	Client *bigquery.Client
	// View is "dataset.view" or "project.dataset.view". Defaults to DefaultView.
	View   string
	Logger zerolog.Logger
}

type bigQueryRow struct {
	StationID string     `bigquery:"station_id"`
	Date      civil.Date `bigquery:"date"`
}

// NewBigQuerySource creates a BigQuery-backed Source.
func NewBigQuerySource(cfg BigQuerySourceConfig) *BigQuerySource {
	view := cfg.View
	if view == "" {
		view = DefaultView
	}
	return &BigQuerySource{
		client: cfg.Client,
		view:   view,
		logger: cfg.Logger,
	}
}

// MissingDays runs the gap query and returns every row.
func (s *BigQuerySource) MissingDays(ctx context.Context) ([]MissingEntry, error) {
	sql, err := missingDaysQuery(s.view, backtick)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().Str("view", s.view).Msg("querying bigquery for missing station days")

	it, err := s.client.Query(sql).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("running gap query: %w", err)
	}

	var entries []MissingEntry
	for {
		var row bigQueryRow
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading gap row: %w", err)
		}
		entries = append(entries, MissingEntry{
			StationID: row.StationID,
			Date:      row.Date.In(time.UTC),
		})
	}

	s.logger.Info().
		Str("view", s.view).
		Int("missing_days", len(entries)).
		Msg("loaded missing station days")

	return entries, nil
}
