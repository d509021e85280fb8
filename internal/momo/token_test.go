package momo

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func countingFetcher(calls *atomic.Int32) TokenFetcher {
	return func(context.Context) (string, error) {
		n := calls.Add(1)
		return fmt.Sprintf("token-%d", n), nil
	}
}

func TestTokenCache(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches lazily and reuses until expiry", func(t *testing.T) {
		var calls atomic.Int32
		clock := &fakeClock{now: time.Unix(1000, 0)}
		cache := NewTokenCache(countingFetcher(&calls), time.Minute, WithClock(clock.Now))

		assert.Equal(t, int32(0), calls.Load())

		token, err := cache.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "token-1", token)

		clock.now = clock.now.Add(59 * time.Second)
		token, err = cache.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "token-1", token)

		clock.now = clock.now.Add(time.Second)
		token, err = cache.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "token-2", token)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("failed fetch keeps the previous token", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(1000, 0)}
		fail := false
		cache := NewTokenCache(func(context.Context) (string, error) {
			if fail {
				return "", errors.New("provider down")
			}
			return "good", nil
		}, time.Minute, WithClock(clock.Now))

		_, err := cache.Token(ctx)
		require.NoError(t, err)

		clock.now = clock.now.Add(2 * time.Minute)
		fail = true
		_, err = cache.Token(ctx)
		require.Error(t, err)

		cache.mu.Lock()
		assert.Equal(t, "good", cache.token)
		cache.mu.Unlock()

		fail = false
		token, err := cache.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "good", token)
	})

	t.Run("invalidate forces a refetch", func(t *testing.T) {
		var calls atomic.Int32
		cache := NewTokenCache(countingFetcher(&calls), time.Hour)

		_, _ = cache.Token(ctx)
		cache.Invalidate()
		token, err := cache.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "token-2", token)
	})

	t.Run("zero ttl falls back to the default", func(t *testing.T) {
		cache := NewTokenCache(countingFetcher(new(atomic.Int32)), 0)
		assert.Equal(t, DefaultTokenTTL, cache.ttl)
	})
}
