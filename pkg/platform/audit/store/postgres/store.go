package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "peoplefinder/pkg/platform/audit"
)

// Schema creates the search_audit table.
const Schema = `
CREATE TABLE IF NOT EXISTS search_audit (
	id            UUID PRIMARY KEY,
	action        TEXT NOT NULL,
	occurred_at   TIMESTAMPTZ NOT NULL,
	caller        TEXT NOT NULL DEFAULT '',
	request_id    TEXT NOT NULL DEFAULT '',
	term          TEXT NOT NULL,
	contributors  TEXT[] NOT NULL DEFAULT '{}',
	result_count  INTEGER NOT NULL,
	errors        JSONB NOT NULL DEFAULT '{}',
	all_timed_out BOOLEAN NOT NULL DEFAULT FALSE,
	retried       BOOLEAN NOT NULL DEFAULT FALSE,
	duration_ms   BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS search_audit_caller_idx ON search_audit (caller, occurred_at);`

// Store implements audit.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate search_audit: %w", err)
	}
	return nil
}

// Append inserts one event. Re-inserting the same ID is a no-op.
func (s *Store) Append(ctx context.Context, event audit.SearchEvent) error {
	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}
	errs, err := json.Marshal(nonNil(event.Errors))
	if err != nil {
		return fmt.Errorf("marshal audit errors: %w", err)
	}

	query := `
		INSERT INTO search_audit (
			id, action, occurred_at, caller, request_id, term,
			contributors, result_count, errors, all_timed_out, retried, duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		id,
		event.Action,
		event.Timestamp.UTC(),
		event.Caller,
		event.RequestID,
		event.Term,
		pq.Array(event.Contributors),
		event.ResultCount,
		errs,
		event.AllTimedOut,
		event.Retried,
		event.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert search audit: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, action, occurred_at, caller, request_id, term,
		contributors, result_count, errors, all_timed_out, retried, duration_ms
	FROM search_audit`

func (s *Store) ListByCaller(ctx context.Context, caller string) ([]audit.SearchEvent, error) {
	return s.list(ctx, selectColumns+` WHERE caller = $1 ORDER BY occurred_at ASC`, caller)
}

// ListRecent returns up to limit events, most recent first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.SearchEvent, error) {
	return s.list(ctx, selectColumns+` ORDER BY occurred_at DESC LIMIT $1`, limit)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]audit.SearchEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query search audit: %w", err)
	}
	defer rows.Close()

	var out []audit.SearchEvent
	for rows.Next() {
		var (
			e          audit.SearchEvent
			errs       []byte
			durationMS int64
		)
		if err := rows.Scan(
			&e.ID, &e.Action, &e.Timestamp, &e.Caller, &e.RequestID, &e.Term,
			pq.Array(&e.Contributors), &e.ResultCount, &errs, &e.AllTimedOut, &e.Retried, &durationMS,
		); err != nil {
			return nil, fmt.Errorf("scan search audit: %w", err)
		}
		if err := json.Unmarshal(errs, &e.Errors); err != nil {
			return nil, fmt.Errorf("decode audit errors for %s: %w", e.ID, err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search audit: %w", err)
	}
	return out, nil
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
