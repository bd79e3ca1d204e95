package etl

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrRunInProgress is returned by Exclusive.Run while another run is executing.
var ErrRunInProgress = errors.New("a run is already in progress")

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context) (*RunResult, error)
}

// Exclusive serialises runs: a trigger that arrives while a run is executing is
// rejected rather than queued, so two runs never spend the same quota.
// It also remembers the outcome of the last finished run.
type Exclusive struct {
	runner  Runner
	mu      sync.Mutex
	running atomic.Bool

	stateMu sync.RWMutex
	last    *RunResult
	lastErr error
}

// NewExclusive wraps runner.
func NewExclusive(runner Runner) *Exclusive {
	return &Exclusive{runner: runner}
}

// Run executes a run unless one is already in progress.
func (e *Exclusive) Run(ctx context.Context) (*RunResult, error) {
	if !e.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer e.mu.Unlock()

	e.running.Store(true)
	defer e.running.Store(false)

	result, err := e.runner.Run(ctx)

	e.stateMu.Lock()
	e.last, e.lastErr = result, err
	e.stateMu.Unlock()

	return result, err
}

// Running reports whether a run is executing.
func (e *Exclusive) Running() bool {
	return e.running.Load()
}

// Last returns the result and error of the most recent finished run.
// The result is nil before the first run.
func (e *Exclusive) Last() (*RunResult, error) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.last, e.lastErr
}
