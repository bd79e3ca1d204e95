package gaps

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Querier is the subset of *pgxpool.Pool used by PostgresSource.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads missing station days from a PostgreSQL view.
type PostgresSource struct {
	db     Querier
	view   string
	logger zerolog.Logger
}

// NewPostgresSource creates a PostgreSQL-backed Source. An empty view uses DefaultView.
func NewPostgresSource(db Querier, view string, logger zerolog.Logger) *PostgresSource {
	if view == "" {
		view = DefaultView
	}
	return &PostgresSource{db: db, view: view, logger: logger}
}

// MissingDays runs the gap query and returns every row.
func (s *PostgresSource) MissingDays(ctx context.Context) ([]MissingEntry, error) {
	query, err := missingDaysQuery(s.view, bare)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("running gap query: %w", err)
	}
	defer rows.Close()

	var entries []MissingEntry
	for rows.Next() {
		var (
			stationID string
			date      time.Time
		)
		if err := rows.Scan(&stationID, &date); err != nil {
			return nil, fmt.Errorf("scanning gap row: %w", err)
		}
		entries = append(entries, MissingEntry{StationID: stationID, Date: date})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading gap rows: %w", err)
	}

	s.logger.Info().
		Str("view", s.view).
		Int("missing_days", len(entries)).
		Msg("loaded missing station days")

	return entries, nil
}
