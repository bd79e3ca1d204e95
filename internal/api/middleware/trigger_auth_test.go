package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdoweather/cdoweather/internal/api/middleware"
	"github.com/cdoweather/cdoweather/internal/auth"
)

func newTokenService(t *testing.T) *auth.TokenService {
	t.Helper()
	svc, err := auth.NewTokenService(auth.TokenConfig{
		SigningKey: "test-signing-key-of-enough-length",
		Issuer:     "scheduler",
		Audience:   "cdoweather-fetcher",
	})
	require.NoError(t, err)
	return svc
}

func protected(validator middleware.TokenValidator) http.Handler {
	return middleware.TriggerAuth(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(middleware.GetTriggerSubject(r.Context())))
	}))
}

func TestTriggerAuth_ValidToken(t *testing.T) {
	svc := newTokenService(t)
	token, err := svc.Issue("cloud-scheduler", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	protected(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cloud-scheduler", w.Body.String())
}

func TestTriggerAuth_LowercaseScheme(t *testing.T) {
	svc := newTokenService(t)
	token, err := svc.Issue("cloud-scheduler", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	req.Header.Set("Authorization", "bearer "+token)
	w := httptest.NewRecorder()

	protected(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTriggerAuth_Rejects(t *testing.T) {
	svc := newTokenService(t)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.TriggerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "cloud-scheduler",
			Issuer:    "scheduler",
			Audience:  jwt.ClaimStrings{"cdoweather-fetcher"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}).SignedString([]byte("test-signing-key-of-enough-length"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		detail string
	}{
		{"missing header", "", "missing authorization header"},
		{"basic scheme", "Basic dXNlcjpwYXNz", "invalid authorization header format"},
		{"empty token", "Bearer   ", "missing bearer token"},
		{"garbage token", "Bearer not-a-jwt", "invalid trigger token"},
		{"expired token", "Bearer " + expired, "trigger token has expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			protected(svc).ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
			assert.Contains(t, w.Body.String(), tt.detail)
		})
	}
}

func TestTriggerAuth_NilValidatorDisablesCheck(t *testing.T) {
	w := httptest.NewRecorder()
	protected(nil).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", http.NoBody))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}
