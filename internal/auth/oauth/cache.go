package oauth

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/cfdproxy/internal/util"
)

// Metrics for the token cache.
var (
	tokenCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cfdproxy_token_cache_hits_total",
			Help: "Total number of token cache hits",
		},
	)

	tokenCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cfdproxy_token_cache_misses_total",
			Help: "Total number of token cache misses",
		},
	)
)

// Fetcher obtains a fresh access token.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// Cache holds the single access token shared by all in-flight requests.
//
// The check-then-fetch sequence is intentionally not mutually exclusive:
// two requests arriving while the token is expired may both detect expiry
// and both fetch, with the last completed fetch winning. Token fetch is
// idempotent at the identity provider, so the worst case is one redundant
// request per expiry window. The mutex only guards the value swap.
type Cache struct {
	fetcher   Fetcher
	validator Validator
	logger    *zap.Logger

	mu    sync.RWMutex
	token string
}

// CacheOption is a functional option for configuring the cache.
type CacheOption func(*Cache)

// WithCacheLogger sets the logger for the cache.
func WithCacheLogger(logger *zap.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// NewCache creates a new token cache. The token is absent until the first
// request forces a fetch.
func NewCache(fetcher Fetcher, validator Validator, opts ...CacheOption) *Cache {
	c := &Cache{
		fetcher:   fetcher,
		validator: validator,
		logger:    zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Token returns a valid access token, fetching a fresh one when the cached
// value is absent or the validator reports it expired. Any other validation
// error, and any fetch error, is propagated so the caller aborts the
// in-flight request.
func (c *Cache) Token(ctx context.Context) (string, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	if token != "" {
		err := c.validator.Validate(ctx, token)
		if err == nil {
			tokenCacheHits.Inc()
			return token, nil
		}
		if !errors.Is(err, ErrTokenExpired) {
			return "", util.NewTokenError("validate", err)
		}
		c.logger.Debug("cached token expired, refetching")
	}

	tokenCacheMisses.Inc()

	fresh, err := c.fetcher.Fetch(ctx)
	if err != nil {
		return "", util.NewTokenError("fetch", err)
	}

	c.mu.Lock()
	c.token = fresh
	c.mu.Unlock()

	return fresh, nil
}

// Current returns the currently cached token, or the empty string when no
// token has been fetched yet.
func (c *Cache) Current() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}
