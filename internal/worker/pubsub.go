package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/cdoweather/cdoweather/internal/etl"
)

// Job types carried in trigger messages.
const (
	JobTypeFetchRun    = "fetch_run"
	JobTypeHealthCheck = "health_check"
)

// Predefined errors for trigger processing.
var (
	// ErrMalformedMessage is returned for a message body that is not a trigger.
	ErrMalformedMessage = errors.New("malformed trigger message")

	// ErrUnknownJobType is returned for a trigger naming a job this worker does not run.
	ErrUnknownJobType = errors.New("unknown job type")

	ErrMissingRunner = errors.New("runner is required")
)

// TriggerMessage is the body of a trigger message.
type TriggerMessage struct {
	JobType string `json:"job_type"`
}

// Pinger verifies upstream connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandlerConfig holds the dependencies of a TriggerHandler.
type HandlerConfig struct {
	Runs etl.Runner

	// Pinger serves health_check jobs. Optional; without it health checks pass.
	Pinger Pinger

	Logger zerolog.Logger
}

// TriggerHandler handles trigger messages for the worker.
type TriggerHandler struct {
	runs   etl.Runner
	pinger Pinger
	logger zerolog.Logger
}

// NewTriggerHandler creates a new trigger handler.
func NewTriggerHandler(cfg HandlerConfig) (*TriggerHandler, error) {
	if cfg.Runs == nil {
		return nil, ErrMissingRunner
	}
	return &TriggerHandler{
		runs:   cfg.Runs,
		pinger: cfg.Pinger,
		logger: cfg.Logger,
	}, nil
}

// NewSubscriber returns the subscriber for cfg.Subscription with receive settings applied.
func NewSubscriber(client *pubsub.Client, cfg Config) *pubsub.Subscriber {
	cfg = cfg.withDefaults()

	subscriber := client.Subscriber(cfg.Subscription)
	subscriber.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	subscriber.ReceiveSettings.MaxExtension = cfg.MaxExtension
	return subscriber
}

// Start processes messages from subscriber until ctx is cancelled.
func (h *TriggerHandler) Start(ctx context.Context, subscriber *pubsub.Subscriber) error {
	h.logger.Info().Msg("starting trigger subscriber")

	return subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

func (h *TriggerHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received trigger message")

	err := h.process(ctx, logger, msg.Data)
	switch {
	case err == nil:
		msg.Ack()
	case Permanent(err):
		// Redelivery cannot succeed.
		logger.Warn().Err(err).Msg("dropping trigger message")
		msg.Ack()
	default:
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
	}
}

// Process runs the job named by a trigger message body. A nil error means the
// message should be acked. Permanent errors should be acked too, everything
// else nacked for redelivery.
func (h *TriggerHandler) Process(ctx context.Context, data []byte) error {
	return h.process(ctx, h.logger, data)
}

func (h *TriggerHandler) process(ctx context.Context, logger zerolog.Logger, data []byte) error {
	var trigger TriggerMessage
	if err := json.Unmarshal(data, &trigger); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	startTime := time.Now()
	logger = logger.With().Str("job_type", trigger.JobType).Logger()

	var err error
	switch trigger.JobType {
	case JobTypeFetchRun:
		err = h.handleFetchRun(ctx, logger)
	case JobTypeHealthCheck:
		err = h.handleHealthCheck(ctx, logger)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJobType, trigger.JobType)
	}
	if err != nil {
		return err
	}

	logger.Info().
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return nil
}

// Permanent reports whether a Process error means redelivery cannot help.
func Permanent(err error) bool {
	return errors.Is(err, ErrMalformedMessage) || errors.Is(err, ErrUnknownJobType)
}

func (h *TriggerHandler) handleFetchRun(ctx context.Context, logger zerolog.Logger) error {
	result, err := h.runs.Run(ctx)
	if errors.Is(err, etl.ErrRunInProgress) {
		// The run already executing covers this trigger.
		logger.Info().Msg("run already in progress, skipping trigger")
		return nil
	}
	if err != nil {
		return fmt.Errorf("running pipeline: %w", err)
	}

	logger.Info().
		Str("run_id", result.RunID).
		Int64("api_call_count", result.APICallCount).
		Int64("error_count", result.ErrorCount).
		Int64("published_count", result.PublishedCount).
		Msg("pipeline run completed")
	return nil
}

func (h *TriggerHandler) handleHealthCheck(ctx context.Context, logger zerolog.Logger) error {
	if h.pinger == nil {
		return nil
	}

	logger.Debug().Msg("running health check")
	if err := h.pinger.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	logger.Debug().Msg("health check passed")
	return nil
}
