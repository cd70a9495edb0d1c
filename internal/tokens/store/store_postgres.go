package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"peoplefinder/internal/tokens"
	"peoplefinder/pkg/platform/sentinel"
)

// Querier is the subset of *pgxpool.Pool the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const createTokenTable = `
CREATE TABLE IF NOT EXISTS api_tokens (
	service_name TEXT PRIMARY KEY,
	token        TEXT NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertToken = `
INSERT INTO api_tokens (service_name, token, expires_at, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (service_name) DO UPDATE
SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at, updated_at = now()`

const selectToken = `SELECT token, expires_at FROM api_tokens WHERE service_name = $1`

// PostgresStore persists cached tokens in PostgreSQL so they survive restarts.
type PostgresStore struct {
	db Querier
}

// NewPostgresStore constructs a PostgreSQL-backed token store.
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the token table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createTokenTable); err != nil {
		return fmt.Errorf("create api_tokens: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, backend string) (tokens.CachedToken, error) {
	cached := tokens.CachedToken{Backend: backend}
	err := s.db.QueryRow(ctx, selectToken, backend).Scan(&cached.Token, &cached.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return tokens.CachedToken{}, fmt.Errorf("token for %s: %w", backend, sentinel.ErrNotFound)
	}
	if err != nil {
		return tokens.CachedToken{}, fmt.Errorf("load token for %s: %w", backend, err)
	}
	cached.ExpiresAt = cached.ExpiresAt.UTC()
	return cached, nil
}

// Save upserts token and expiry in a single statement.
func (s *PostgresStore) Save(ctx context.Context, token tokens.CachedToken) error {
	if token.Backend == "" {
		return fmt.Errorf("token backend is required")
	}
	if _, err := s.db.Exec(ctx, upsertToken, token.Backend, token.Token, token.ExpiresAt.UTC()); err != nil {
		return fmt.Errorf("save token for %s: %w", token.Backend, err)
	}
	return nil
}
