package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdoweather/cdoweather/internal/api/middleware"
	"github.com/cdoweather/cdoweather/internal/api/models"
)

func newTriggerLimited(limit int) http.Handler {
	return middleware.RequestID(
		middleware.RateLimitByIP(middleware.RateLimitConfig{RequestLimit: limit, WindowLength: time.Minute})(
			http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}),
		),
	)
}

func trigger(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		requests int
		want     []int
	}{
		{
			name:     "within limit",
			limit:    3,
			requests: 3,
			want:     []int{http.StatusOK, http.StatusOK, http.StatusOK},
		},
		{
			name:     "over limit",
			limit:    2,
			requests: 4,
			want:     []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests},
		},
		{
			name:     "single trigger per window",
			limit:    1,
			requests: 2,
			want:     []int{http.StatusOK, http.StatusTooManyRequests},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTriggerLimited(tt.limit)
			got := make([]int, 0, tt.requests)
			for i := 0; i < tt.requests; i++ {
				got = append(got, trigger(h, "198.51.100.7:40000").Code)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRateLimitByIP_SchedulersLimitedIndependently(t *testing.T) {
	h := newTriggerLimited(1)

	assert.Equal(t, http.StatusOK, trigger(h, "10.8.0.2:5000").Code)
	assert.Equal(t, http.StatusTooManyRequests, trigger(h, "10.8.0.2:5001").Code)
	assert.Equal(t, http.StatusOK, trigger(h, "10.8.0.3:5000").Code)
}

func TestRateLimitByIP_ProblemResponse(t *testing.T) {
	h := newTriggerLimited(1)
	trigger(h, "203.0.113.9:1234")

	rec := trigger(h, "203.0.113.9:1234")

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	var problem models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, models.ProblemTypeTooManyRequests, problem.Type)
	assert.Equal(t, http.StatusTooManyRequests, problem.Status)
	assert.Equal(t, "/", problem.Instance)
	assert.NotEmpty(t, problem.TraceID)
	assert.Equal(t, problem.TraceID, rec.Header().Get("X-Request-Id"))
}

func TestTriggerRateLimit(t *testing.T) {
	cfg := middleware.TriggerRateLimit(4)
	assert.Equal(t, 4, cfg.RequestLimit)
	assert.Equal(t, time.Minute, cfg.WindowLength)

	cfg = middleware.TriggerRateLimit(0)
	assert.Equal(t, 10, cfg.RequestLimit)
}
