//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"peoplefinder/internal/tokens"
	"peoplefinder/internal/tokens/store"
	"peoplefinder/pkg/platform/sentinel"
	"peoplefinder/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = store.NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestTokenExpiresFromRedis() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, tokens.CachedToken{
		Backend:   "graph",
		Token:     "short-lived",
		ExpiresAt: time.Now().Add(1500 * time.Millisecond),
	}))

	got, err := s.store.Load(ctx, "graph")
	s.Require().NoError(err)
	s.Equal("short-lived", got.Token)

	s.Eventually(func() bool {
		_, err := s.store.Load(ctx, "graph")
		return err != nil
	}, 5*time.Second, 100*time.Millisecond)

	_, err = s.store.Load(ctx, "graph")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
