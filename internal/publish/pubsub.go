package publish

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/cdoweather/cdoweather/internal/noaa"
)

// DefaultAckTimeout bounds the wait for a publish confirmation.
const DefaultAckTimeout = 30 * time.Second

// Configuration errors.
var (
	ErrMissingClient = errors.New("pubsub client is required")
	ErrMissingTopic  = errors.New("pubsub topic is required")
)

// PubSubConfig holds configuration for the Pub/Sub publisher.
type PubSubConfig struct {
	// Client is an open Pub/Sub client (required). The publisher does not close it.
	Client *pubsub.Client

	// Topic is the topic ID or full resource name (required).
	Topic string

	// AckTimeout bounds each confirmation wait.
	// Default: 30 seconds
	AckTimeout time.Duration

	// Logger for publish operations.
	Logger zerolog.Logger
}

// PubSubPublisher publishes records to a Google Cloud Pub/Sub topic.
type PubSubPublisher struct {
	publisher  *pubsub.Publisher
	topic      string
	ackTimeout time.Duration
	logger     zerolog.Logger
}

// NewPubSubPublisher creates a publisher for the configured topic.
func NewPubSubPublisher(cfg PubSubConfig) (*PubSubPublisher, error) {
	if cfg.Client == nil {
		return nil, ErrMissingClient
	}
	if cfg.Topic == "" {
		return nil, ErrMissingTopic
	}

	ackTimeout := cfg.AckTimeout
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}

	return &PubSubPublisher{
		publisher:  cfg.Client.Publisher(cfg.Topic),
		topic:      cfg.Topic,
		ackTimeout: ackTimeout,
		logger:     cfg.Logger.With().Str("topic", cfg.Topic).Logger(),
	}, nil
}

// Publish sends the record and blocks until the broker confirms it.
// It returns the server-assigned message ID.
func (p *PubSubPublisher) Publish(ctx context.Context, kind RecordKind, record noaa.Record) (string, error) {
	if !kind.Valid() {
		return "", &PublishError{Kind: kind, Err: ErrUnknownKind}
	}

	data, err := Encode(record)
	if err != nil {
		return "", &PublishError{Kind: kind, Err: err}
	}

	ackCtx, cancel := context.WithTimeout(ctx, p.ackTimeout)
	defer cancel()

	res := p.publisher.Publish(ackCtx, &pubsub.Message{
		Data:       data,
		Attributes: attributes(kind),
	})

	id, err := res.Get(ackCtx)
	if err != nil {
		return "", &PublishError{Kind: kind, Err: err}
	}

	p.logger.Debug().
		Str("record_type", string(kind)).
		Str("record_id", record.ID()).
		Str("message_id", id).
		Msg("record published")

	return id, nil
}

// Stop flushes pending messages and releases the publisher's goroutines.
func (p *PubSubPublisher) Stop() {
	p.publisher.Stop()
}
