package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Predefined errors for resilient operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrMaxRetriesExceeded is returned when all retry attempts have been exhausted.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies this client for circuit breaker naming.
	Name string

	// Timeout is the request timeout for individual HTTP calls.
	// Default: 10 seconds
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	// Default: 2 (three attempts in total)
	MaxRetries uint64

	// InitialInterval is the delay before the first retry.
	// Default: 2 seconds
	InitialInterval time.Duration

	// Multiplier grows the delay between consecutive retries.
	// Default: 2
	Multiplier float64

	// MaxInterval caps the delay between retries.
	// Default: 30 seconds
	MaxInterval time.Duration

	// RequestsPerSecond limits attempts across every caller sharing this client.
	// Zero disables limiting.
	RequestsPerSecond float64

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Registry receives the client so its health can be reported.
	// Optional.
	Registry *Registry

	// Logger for retry notifications.
	Logger zerolog.Logger
}

// DefaultClientConfig returns the retry policy used for upstream providers:
// three attempts with delays of 2s and 4s.
func DefaultClientConfig(name string) ClientConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      2,
		InitialInterval: 2 * time.Second,
		Multiplier:      2,
		MaxInterval:     30 * time.Second,
		CircuitBreaker:  &cbConfig,
		Logger:          zerolog.Nop(),
	}
}

// Client is a resilient HTTP client with circuit breaker, rate limiting and retry logic.
type Client struct {
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker[*http.Response]
	limiter        *rate.Limiter
	config         ClientConfig
	logger         zerolog.Logger
}

// NewClient creates a new resilient HTTP client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 2 * time.Second
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 30 * time.Second
	}

	cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
	}
	if cbConfig.IsSuccessful == nil {
		cbConfig.IsSuccessful = countsAsSuccess
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		circuitBreaker: NewCircuitBreaker[*http.Response](cbConfig), //nolint:bodyclose // type param, not response
		limiter:        limiter,
		config:         cfg,
		logger:         cfg.Logger,
	}

	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}

	return c
}

// Name returns the client name.
func (c *Client) Name() string {
	return c.config.Name
}

// Do executes an HTTP request with circuit breaker protection and retry logic.
// Network errors, 5xx and 429 responses are retried with exponential backoff.
// Other responses are returned to the caller as-is. When retries are exhausted on
// a retryable status the last response is returned so the caller can inspect it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext executes an HTTP request with the given context.
//
// The breaker records one outcome per call, after retries. A resource that keeps
// failing therefore adds a single failure however many attempts it took.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.circuitBreaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller is responsible for closing
		return c.retry(ctx, req)
	})
	if err == nil {
		c.recordSuccess()
		return resp, nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = ErrCircuitOpen
	}
	c.recordFailure(err)

	// Retryable status that exhausted retries: hand back the response.
	var serverErr *ServerError
	if resp != nil && errors.As(err, &serverErr) {
		return resp, nil
	}
	return nil, err
}

// retry performs the attempts of a single call. A non-nil response is returned
// alongside a ServerError when the last attempt got a retryable status.
func (c *Client) retry(ctx context.Context, req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.Multiplier = c.config.Multiplier
	bo.MaxInterval = c.config.MaxInterval
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0 // Unlimited, we control retries via WithMaxRetries

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)

	var lastResp *http.Response
	attempt := 0

	operation := func() error {
		attempt++
		if lastResp != nil {
			drain(lastResp)
			lastResp = nil
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		resp, err := c.httpClient.Do(req.Clone(ctx))
		if err != nil {
			return err
		}
		lastResp = resp
		if IsRetryableStatus(resp.StatusCode) {
			return &ServerError{StatusCode: resp.StatusCode}
		}
		return nil
	}

	notify := func(err error, next time.Duration) {
		c.logger.Warn().
			Err(err).
			Str("client", c.config.Name).
			Str("url", req.URL.Redacted()).
			Int("attempt", attempt).
			Dur("retry_in", next).
			Msg("request failed, retrying")
	}

	err := backoff.RetryNotify(operation, policy, notify)
	if err == nil {
		return lastResp, nil
	}

	var serverErr *ServerError
	if ctx.Err() == nil && lastResp != nil && errors.As(err, &serverErr) {
		return lastResp, err
	}
	if lastResp != nil {
		drain(lastResp)
	}
	if ctx.Err() != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, err)
}

func (c *Client) recordSuccess() {
	if c.config.Registry != nil {
		c.config.Registry.RecordSuccess(c.config.Name)
	}
}

func (c *Client) recordFailure(err error) {
	if c.config.Registry != nil {
		c.config.Registry.RecordFailure(c.config.Name, err)
	}
}

// countsAsSuccess decides what the breaker treats as a healthy call. Rate
// limiting and caller cancellation say nothing about upstream health.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var serverErr *ServerError
	return errors.As(err, &serverErr) && serverErr.StatusCode < http.StatusInternalServerError
}

// IsRetryableStatus reports whether a response status is retried by the client.
func IsRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// ServerError represents a retryable HTTP status (5xx or 429).
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.circuitBreaker.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.circuitBreaker.Counts()
}
