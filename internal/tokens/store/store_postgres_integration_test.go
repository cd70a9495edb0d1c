//go:build integration

package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"peoplefinder/internal/tokens"
	"peoplefinder/internal/tokens/store"
	"peoplefinder/pkg/platform/sentinel"
	"peoplefinder/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgresStore(s.postgres.Pool)
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "api_tokens"))
}

func (s *PostgresStoreSuite) TestMissingToken() {
	_, err := s.store.Load(context.Background(), "graph")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpsertReplacesWholeEntry() {
	ctx := context.Background()
	first := time.Date(2026, 3, 14, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	s.Require().NoError(s.store.Save(ctx, tokens.CachedToken{Backend: "graph", Token: "one", ExpiresAt: first}))
	s.Require().NoError(s.store.Save(ctx, tokens.CachedToken{Backend: "graph", Token: "two", ExpiresAt: first.Add(time.Hour)}))

	got, err := s.store.Load(ctx, "graph")
	s.Require().NoError(err)
	s.Equal("two", got.Token)
	s.True(got.ExpiresAt.Equal(first.Add(time.Hour)))
	s.Equal(time.UTC, got.ExpiresAt.Location())
}

// Concurrent writers for one backend must leave a matching token/expiry pair.
func (s *PostgresStoreSuite) TestConcurrentSavesNeverMixEntries() {
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_ = s.store.Save(ctx, tokens.CachedToken{
				Backend:   "graph",
				Token:     fmt.Sprintf("token-%d", idx),
				ExpiresAt: base.Add(time.Duration(idx) * time.Minute),
			})
		}(i)
	}
	wg.Wait()

	got, err := s.store.Load(ctx, "graph")
	s.Require().NoError(err)
	var idx int
	_, err = fmt.Sscanf(got.Token, "token-%d", &idx)
	s.Require().NoError(err)
	s.True(got.ExpiresAt.Equal(base.Add(time.Duration(idx) * time.Minute)))
}
