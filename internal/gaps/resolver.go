package gaps

import (
	"sort"
	"time"
)

// Resolve groups missing entries by station and returns, per station, the range
// from the earliest to the latest missing day. Stations without entries are absent
// from the result.
func Resolve(missing []MissingEntry) map[string]GapRange {
	ranges := make(map[string]GapRange)
	for _, m := range missing {
		if m.StationID == "" || m.Date.IsZero() {
			continue
		}
		day := truncateDay(m.Date)

		r, ok := ranges[m.StationID]
		if !ok {
			ranges[m.StationID] = GapRange{StationID: m.StationID, Start: day, End: day}
			continue
		}
		if day.Before(r.Start) {
			r.Start = day
		}
		if day.After(r.End) {
			r.End = day
		}
		ranges[m.StationID] = r
	}
	return ranges
}

// Ranges returns the ranges ordered by station id.
func Ranges(ranges map[string]GapRange) []GapRange {
	out := make([]GapRange, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	return out
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
