package gaps

import (
	"context"
	"sync"
)

// MemorySource is an in-memory Source.
// This is intended for testing and local runs.
type MemorySource struct {
	mu      sync.RWMutex
	entries []MissingEntry
	err     error
}

// NewMemorySource creates a source returning the given entries.
func NewMemorySource(entries ...MissingEntry) *MemorySource {
	return &MemorySource{entries: entries}
}

// SetError makes subsequent MissingDays calls fail with err.
func (s *MemorySource) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.err = err
}

// MissingDays returns a copy of the configured entries.
func (s *MemorySource) MissingDays(_ context.Context) ([]MissingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.err != nil {
		return nil, s.err
	}
	out := make([]MissingEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}
