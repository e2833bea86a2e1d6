//go:build integration

package cache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/illmade-knight/go-query/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type redisTestValue struct {
	ID   string
	Data []byte
}

func TestRedisStore_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	cfg := &cache.RedisConfig{
		Addr: addr,
		TTL:  time.Minute,
	}

	store, err := cache.NewRedisStore[string, redisTestValue](ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})

	t.Run("Miss is reported as ErrNotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "missing-key")
		assert.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("Save then Get round-trips the envelope", func(t *testing.T) {
		storedAt := time.Now().UTC().Truncate(time.Millisecond)
		value := redisTestValue{ID: "v1", Data: []byte("payload")}
		require.NoError(t, store.Save(ctx, "round-trip", value, storedAt))

		entry, err := store.Get(ctx, "round-trip")
		require.NoError(t, err)
		assert.Equal(t, value, entry.Value)
		assert.True(t, entry.StoredAt.Equal(storedAt), "stored-at timestamp must survive the round trip")
	})

	t.Run("IsFresh applies the policy to the stored timestamp", func(t *testing.T) {
		now := time.Now()
		require.NoError(t, store.Save(ctx, "stale", redisTestValue{ID: "v2"}, now.Add(-time.Hour)))

		assert.False(t, store.IsFresh(ctx, "stale", now, cache.MaxAge(time.Minute)))
		assert.True(t, store.IsFresh(ctx, "stale", now, cache.KeepForever()))
	})
}
