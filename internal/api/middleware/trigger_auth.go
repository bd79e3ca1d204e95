package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/cdoweather/cdoweather/internal/api/models"
	"github.com/cdoweather/cdoweather/internal/auth"
)

// TokenValidator verifies trigger bearer tokens.
type TokenValidator interface {
	Validate(token string) (*auth.TriggerClaims, error)
}

// triggerSubjectKey is the context key for the authenticated trigger subject.
type triggerSubjectKey struct{}

// TriggerAuth requires a valid bearer token on every request. A nil validator
// disables the check, for deployments where the platform authenticates callers.
func TriggerAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if validator == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, r, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if len(authHeader) < len(bearerPrefix) ||
				!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
				writeUnauthorized(w, r, "invalid authorization header format")
				return
			}

			token := strings.TrimSpace(authHeader[len(bearerPrefix):])
			if token == "" {
				writeUnauthorized(w, r, "missing bearer token")
				return
			}

			claims, err := validator.Validate(token)
			if err != nil {
				if errors.Is(err, auth.ErrTokenExpired) {
					writeUnauthorized(w, r, "trigger token has expired")
				} else {
					writeUnauthorized(w, r, "invalid trigger token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), triggerSubjectKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTriggerSubject returns the subject of the token that authorized the request.
func GetTriggerSubject(ctx context.Context) string {
	if s, ok := ctx.Value(triggerSubjectKey{}).(string); ok {
		return s
	}
	return ""
}

// writeUnauthorized is local to avoid an import cycle with the response package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	problem := models.NewUnauthorized(GetRequestID(r.Context()), detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}
