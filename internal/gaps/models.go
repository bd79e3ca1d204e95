// Package gaps turns the warehouse's list of missing (station, day) pairs into
// one date range per station, so measurements are only requested where data is
// absent.
package gaps

import (
	"context"
	"time"
)

// DefaultView is the warehouse view listing missing station days.
const DefaultView = "weather.missing_station_days"

// MissingEntry is a station/day combination absent from the warehouse.
type MissingEntry struct {
	StationID string
	Date      time.Time
}

// GapRange is the contiguous interval covering every missing day of a station.
// Days inside the range that are not missing are fetched again on purpose:
// one wide request costs less quota than many narrow ones.
type GapRange struct {
	StationID string
	Start     time.Time
	End       time.Time
}

// Days returns the number of calendar days covered by the range, inclusive.
func (g GapRange) Days() int {
	return int(g.End.Sub(g.Start).Hours()/24) + 1
}

// Source lists missing station days.
type Source interface {
	MissingDays(ctx context.Context) ([]MissingEntry, error)
}
