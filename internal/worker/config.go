// Package worker runs the pipeline in response to Pub/Sub trigger messages.
package worker

import (
	"time"
)

// Config holds configuration for the trigger subscriber.
type Config struct {
	// Subscription is the trigger subscription, as an ID or a full resource name.
	Subscription string

	// MaxOutstandingMessages bounds the messages held at once.
	// Default: 1. A second trigger waits while a run is executing.
	MaxOutstandingMessages int

	// MaxExtension is how long a message's ack deadline is extended while its
	// job runs. A full run can take a long time at NOAA's rate limit.
	// Default: 60 minutes
	MaxExtension time.Duration
}

// DefaultConfig returns the default subscriber configuration.
func DefaultConfig(subscription string) Config {
	return Config{
		Subscription:           subscription,
		MaxOutstandingMessages: 1,
		MaxExtension:           60 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig(c.Subscription)
	if c.MaxOutstandingMessages <= 0 {
		c.MaxOutstandingMessages = def.MaxOutstandingMessages
	}
	if c.MaxExtension <= 0 {
		c.MaxExtension = def.MaxExtension
	}
	return c
}
