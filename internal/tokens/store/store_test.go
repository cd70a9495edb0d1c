package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peoplefinder/internal/tokens"
	"peoplefinder/internal/tokens/store"
	"peoplefinder/pkg/platform/sentinel"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()

	_, err := s.Load(ctx, "graph")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	expires := time.Date(2026, 3, 14, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	require.NoError(t, s.Save(ctx, tokens.CachedToken{Backend: "graph", Token: "one", ExpiresAt: expires}))
	require.NoError(t, s.Save(ctx, tokens.CachedToken{Backend: "graph", Token: "two", ExpiresAt: expires.Add(time.Hour)}))

	got, err := s.Load(ctx, "graph")
	require.NoError(t, err)
	assert.Equal(t, "two", got.Token)
	assert.Equal(t, time.UTC, got.ExpiresAt.Location())
	assert.True(t, got.ExpiresAt.Equal(expires.Add(time.Hour)))

	assert.Error(t, s.Save(ctx, tokens.CachedToken{Token: "orphan"}))
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniredis(t)
	s := store.NewRedisStore(client)

	t.Run("missing key is not found", func(t *testing.T) {
		_, err := s.Load(ctx, "graph")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("round trip with ttl", func(t *testing.T) {
		expires := time.Now().Add(time.Hour).Truncate(time.Second)
		require.NoError(t, s.Save(ctx, tokens.CachedToken{Backend: "graph", Token: "abc", ExpiresAt: expires}))

		got, err := s.Load(ctx, "graph")
		require.NoError(t, err)
		assert.Equal(t, "abc", got.Token)
		assert.Equal(t, "graph", got.Backend)
		assert.True(t, got.ExpiresAt.Equal(expires))
		assert.Equal(t, time.UTC, got.ExpiresAt.Location())

		assert.True(t, mr.Exists("peoplefinder:token:graph"))
		ttl := mr.TTL("peoplefinder:token:graph")
		assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 5)
	})

	t.Run("key expires with the token", func(t *testing.T) {
		mr.FastForward(2 * time.Hour)
		_, err := s.Load(ctx, "graph")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("expired token removes the key", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, tokens.CachedToken{Backend: "profile", Token: "x", ExpiresAt: time.Now().Add(time.Hour)}))
		require.NoError(t, s.Save(ctx, tokens.CachedToken{Backend: "profile", Token: "y", ExpiresAt: time.Now().Add(-time.Minute)}))
		assert.False(t, mr.Exists("peoplefinder:token:profile"))
	})

	t.Run("custom prefix", func(t *testing.T) {
		prefixed := store.NewRedisStore(client, store.WithKeyPrefix("pf:"))
		require.NoError(t, prefixed.Save(ctx, tokens.CachedToken{Backend: "contactcenter", Token: "c", ExpiresAt: time.Now().Add(time.Hour)}))
		assert.True(t, mr.Exists("pf:contactcenter"))
	})

	t.Run("corrupt payload", func(t *testing.T) {
		require.NoError(t, mr.Set("peoplefinder:token:directory", "{not json"))
		_, err := s.Load(ctx, "directory")
		require.Error(t, err)
		assert.NotErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestRedisStoreBackingCache(t *testing.T) {
	_, client := newMiniredis(t)
	cache, err := tokens.NewCache(store.NewRedisStore(client))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, cache.StoreToken(ctx, "graph", "shared", time.Hour))

	other, err := tokens.NewCache(store.NewRedisStore(client))
	require.NoError(t, err)
	token, ok := other.GetToken(ctx, "graph")
	assert.True(t, ok)
	assert.Equal(t, "shared", token)
}
