// Package logstore writes search audit events to a structured logger. It is
// the default sink when no durable audit store is configured.
package logstore

import (
	"context"
	"log/slog"

	audit "peoplefinder/pkg/platform/audit"
)

type Store struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger}
}

func (s *Store) Append(ctx context.Context, event audit.SearchEvent) error {
	attrs := []slog.Attr{
		slog.String("event_id", event.ID),
		slog.String("action", event.Action),
		slog.Time("timestamp", event.Timestamp),
		slog.String("caller", event.Caller),
		slog.String("request_id", event.RequestID),
		slog.String("term", event.Term),
		slog.Any("contributors", event.Contributors),
		slog.Int("result_count", event.ResultCount),
		slog.Bool("all_timed_out", event.AllTimedOut),
		slog.Int64("duration_ms", event.Duration.Milliseconds()),
	}
	for _, name := range event.FailedBackends() {
		attrs = append(attrs, slog.String("error."+name, event.Errors[name]))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "search audit", attrs...)
	return nil
}
