package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"peoplefinder/internal/tokens"
	"peoplefinder/pkg/platform/sentinel"
)

const (
	// Redis key prefix for cached backend tokens
	tokenKeyPrefix = "peoplefinder:token:"
)

// RedisStore shares cached tokens between instances. Keys expire with the token.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisStoreOption configures a RedisStore instance.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix replaces the default key prefix.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore constructs a Redis-backed token store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: tokenKeyPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) key(backend string) string {
	return s.prefix + backend
}

// Load returns the entry for backend, or sentinel.ErrNotFound.
func (s *RedisStore) Load(ctx context.Context, backend string) (tokens.CachedToken, error) {
	raw, err := s.client.Get(ctx, s.key(backend)).Bytes()
	if errors.Is(err, redis.Nil) {
		return tokens.CachedToken{}, fmt.Errorf("token for %s: %w", backend, sentinel.ErrNotFound)
	}
	if err != nil {
		return tokens.CachedToken{}, fmt.Errorf("load token for %s: %w", backend, err)
	}

	var cached tokens.CachedToken
	if err := json.Unmarshal(raw, &cached); err != nil {
		return tokens.CachedToken{}, fmt.Errorf("decode token for %s: %w", backend, err)
	}
	cached.ExpiresAt = cached.ExpiresAt.UTC()
	return cached, nil
}

// Save writes token and its expiry in one SET. Already expired tokens remove
// the key instead.
func (s *RedisStore) Save(ctx context.Context, token tokens.CachedToken) error {
	if token.Backend == "" {
		return fmt.Errorf("token backend is required")
	}
	token.ExpiresAt = token.ExpiresAt.UTC()

	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return s.client.Del(ctx, s.key(token.Backend)).Err()
	}

	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode token for %s: %w", token.Backend, err)
	}
	if err := s.client.Set(ctx, s.key(token.Backend), raw, ttl).Err(); err != nil {
		return fmt.Errorf("save token for %s: %w", token.Backend, err)
	}
	return nil
}
