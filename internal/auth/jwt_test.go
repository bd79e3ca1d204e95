package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdoweather/cdoweather/internal/auth"
)

func newService(t *testing.T, key, issuer, audience string) *auth.TokenService {
	t.Helper()
	svc, err := auth.NewTokenService(auth.TokenConfig{
		SigningKey: key,
		Issuer:     issuer,
		Audience:   audience,
	})
	require.NoError(t, err)
	return svc
}

func TestTokenService_IssueAndValidate(t *testing.T) {
	svc := newService(t, "test-secret-key-for-testing-only", "cloud-scheduler", "cdoweather-fetcher")

	token, err := svc.Issue("nightly-run", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "nightly-run", claims.Subject)
	assert.Equal(t, "cloud-scheduler", claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"cdoweather-fetcher"}, claims.Audience)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenService_InvalidToken(t *testing.T) {
	svc := newService(t, "test-key", "", "cdoweather-fetcher")

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestTokenService_WrongSigningKey(t *testing.T) {
	token, err := newService(t, "key-one", "", "cdoweather-fetcher").Issue("run", 0)
	require.NoError(t, err)

	_, err = newService(t, "key-two", "", "cdoweather-fetcher").Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenService_WrongAudience(t *testing.T) {
	token, err := newService(t, "test-key", "", "audience-one").Issue("run", 0)
	require.NoError(t, err)

	_, err = newService(t, "test-key", "", "audience-two").Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenService_WrongIssuer(t *testing.T) {
	token, err := newService(t, "test-key", "issuer-one", "aud").Issue("run", 0)
	require.NoError(t, err)

	_, err = newService(t, "test-key", "issuer-two", "aud").Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenService_Expired(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Audience:  jwt.ClaimStrings{"aud"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)

	_, err = newService(t, "test-key", "", "aud").Validate(token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestTokenService_ExpiryRequired(t *testing.T) {
	claims := jwt.RegisteredClaims{Audience: jwt.ClaimStrings{"aud"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)

	_, err = newService(t, "test-key", "", "aud").Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenService_RejectsNoneAlgorithm(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Audience:  jwt.ClaimStrings{"aud"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newService(t, "test-key", "", "aud").Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestNewTokenService_RequiresKey(t *testing.T) {
	_, err := auth.NewTokenService(auth.TokenConfig{Audience: "aud"})
	assert.ErrorIs(t, err, auth.ErrNoSigningKey)
}
