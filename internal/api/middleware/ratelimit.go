package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/cdoweather/cdoweather/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// Requests per window
	RequestLimit int
	// Window duration
	WindowLength time.Duration
}

// TriggerRateLimit returns the limit applied to the run trigger: perMinute
// requests per minute per client IP. Each accepted trigger can spend a large
// share of the daily API quota, so the default is low.
func TriggerRateLimit(perMinute int) RateLimitConfig {
	if perMinute <= 0 {
		perMinute = 10
	}
	return RateLimitConfig{RequestLimit: perMinute, WindowLength: time.Minute}
}

// RateLimitByIP creates a rate limiter middleware keyed by client IP.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(cfg.WindowLength.Seconds()))

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			problem := models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
			problem.Instance = r.URL.Path

			// httprate does not expose the reset time, so advertise the full window.
			w.Header().Set("Retry-After", retryAfter)
			problem.Write(w)
		}),
	)
}
