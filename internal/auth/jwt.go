// Package auth verifies the bearer tokens that authorize pipeline runs.
//
// Trigger tokens are short-lived HS256 JWTs minted by the scheduler (or an
// operator) with a shared signing key. The token's audience must name this
// service, and every token must carry an expiry.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of tokens minted by Issue.
const DefaultTokenTTL = 5 * time.Minute

// Predefined token errors.
var (
	ErrInvalidToken = errors.New("invalid trigger token")
	ErrTokenExpired = errors.New("trigger token has expired")
	ErrNoSigningKey = errors.New("trigger signing key is required")
)

// TriggerClaims are the claims of a trigger token.
type TriggerClaims struct {
	jwt.RegisteredClaims
}

// TokenConfig holds configuration for the trigger token service.
type TokenConfig struct {
	// SigningKey is the shared HS256 secret (required).
	SigningKey string

	// Issuer is checked when non-empty.
	Issuer string

	// Audience is the audience every token must carry (e.g. "cdoweather-fetcher").
	Audience string
}

// TokenService issues and validates trigger tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   string
}

// NewTokenService creates a new token service.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cfg.SigningKey == "" {
		return nil, ErrNoSigningKey
	}
	return &TokenService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
	}, nil
}

// Issue mints a token for subject valid for ttl. A non-positive ttl uses DefaultTokenTTL.
func (s *TokenService) Issue(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()

	claims := TriggerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			ID:        tokenID(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("signing trigger token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a trigger token.
func (s *TokenService) Validate(tokenString string) (*TriggerClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &TriggerClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*TriggerClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func tokenID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
