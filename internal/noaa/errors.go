package noaa

import (
	"errors"
	"fmt"
)

// Predefined fetch errors.
var (
	// ErrRetriesExhausted marks a transient failure that persisted past the retry budget.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrUnexpectedStatus marks a non-retryable HTTP status.
	ErrUnexpectedStatus = errors.New("unexpected status code")

	// ErrMissingToken is returned when a client is built without an API token.
	ErrMissingToken = errors.New("noaa api token is required")
)

// FetchError is returned when a logical fetch cannot be completed.
type FetchError struct {
	Endpoint Endpoint
	// Status is the last HTTP status seen, or 0 if no response was received.
	Status int
	// Transient is true when the failure was retryable but retries ran out.
	Transient bool
	Err       error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Endpoint, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Endpoint, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
