package momo

import (
	"context"
	"sync"
	"time"
)

// DefaultTokenTTL sits just under the provider's one hour token lifetime.
const DefaultTokenTTL = 3500 * time.Second

// TokenFetcher obtains a fresh access token from the provider.
type TokenFetcher func(ctx context.Context) (string, error)

// TokenCache hands out a bearer token and refreshes it after its TTL.
//
// The lock only guards reads and writes of the cached value; fetching happens
// outside it, so two callers racing on an expired token may both fetch. A failed
// fetch leaves whatever was cached before in place.
type TokenCache struct {
	fetch TokenFetcher
	ttl   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type TokenCacheOption func(*TokenCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) TokenCacheOption {
	return func(c *TokenCache) {
		c.now = now
	}
}

func NewTokenCache(fetch TokenFetcher, ttl time.Duration, opts ...TokenCacheOption) *TokenCache {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	c := &TokenCache{
		fetch: fetch,
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the cached token, fetching a new one when none is cached or
// the cached one has expired.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if token, ok := c.cached(); ok {
		return token, nil
	}

	token, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.token = token
	c.expiresAt = c.now().Add(c.ttl)
	c.mu.Unlock()

	return token, nil
}

// Invalidate drops the cached token so the next call fetches a new one.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || !c.now().Before(c.expiresAt) {
		return "", false
	}
	return c.token, true
}
