// Package secrets retrieves named secrets such as the CDO API token.
package secrets

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
)

// DefaultTokenSecret is the name of the secret holding the CDO API token.
const DefaultTokenSecret = "ncdc_cdo_web_services_token"

// ErrNotFound is returned when a secret does not exist or is empty.
var ErrNotFound = errors.New("secret not found")

// Source resolves secrets by name.
type Source interface {
	Secret(ctx context.Context, name string) (string, error)
}

// EnvSource reads secrets from environment variables. Names are mapped through
// Vars first; unmapped names are upper-cased.
type EnvSource struct {
	Vars map[string]string
}

// Secret returns the value of the environment variable backing name.
func (s EnvSource) Secret(_ context.Context, name string) (string, error) {
	key, ok := s.Vars[name]
	if !ok {
		key = strings.ToUpper(name)
	}
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return "", ErrNotFound
	}
	return value, nil
}

// StaticSource serves secrets from a fixed map.
type StaticSource map[string]string

// Secret returns the configured value for name.
func (s StaticSource) Secret(_ context.Context, name string) (string, error) {
	value, ok := s[name]
	if !ok || value == "" {
		return "", ErrNotFound
	}
	return value, nil
}

// ChainSource tries each source in order and returns the first secret found.
type ChainSource []Source

// Secret returns the first value found. Errors other than ErrNotFound stop the chain.
func (c ChainSource) Secret(ctx context.Context, name string) (string, error) {
	for _, src := range c {
		value, err := src.Secret(ctx, name)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", ErrNotFound
}

// CachedSource memoizes successful lookups of an underlying source for the
// lifetime of the process.
type CachedSource struct {
	source Source

	mu     sync.Mutex
	values map[string]string
}

// NewCachedSource wraps source with a cache.
func NewCachedSource(source Source) *CachedSource {
	return &CachedSource{source: source, values: make(map[string]string)}
}

// Secret returns the cached value or resolves it.
func (c *CachedSource) Secret(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.values[name]; ok {
		return v, nil
	}

	v, err := c.source.Secret(ctx, name)
	if err != nil {
		return "", err
	}
	c.values[name] = v
	return v, nil
}
