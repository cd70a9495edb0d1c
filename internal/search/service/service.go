package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"peoplefinder/internal/search/domain"
	"peoplefinder/internal/search/merge"
	"peoplefinder/internal/search/metrics"
	"peoplefinder/internal/search/orchestrator"
	"peoplefinder/internal/search/providers"
	audit "peoplefinder/pkg/platform/audit"
	"peoplefinder/pkg/requestcontext"
)

// AllTimedOutAdvisory is returned when no backend answered in time.
const AllTimedOutAdvisory = "All sources timed out. Try a more specific search term."

var ErrEmptyTerm = errors.New("search term is required")

// Searcher fans a request out to every backend.
type Searcher interface {
	Search(ctx context.Context, req orchestrator.Request) orchestrator.Outcomes
}

// Merger reconciles per-backend outcomes.
type Merger interface {
	Merge(ctx context.Context, outcomes map[string]domain.Outcome) merge.Result
}

// AuditPublisher receives one event per completed search.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.SearchEvent) error
}

// Service runs a search end to end: fan-out, merge, audit.
type Service struct {
	searcher           Searcher
	merger             Merger
	backends           *providers.Registry
	auditor            AuditPublisher
	metrics            *metrics.Metrics
	logger             *slog.Logger
	retryOnAllTimeouts bool
	checkTimeout       time.Duration
}

type Option func(*Service)

func WithAuditor(a AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRetryOnAllTimeouts re-runs the fan-out once when every backend timed out.
func WithRetryOnAllTimeouts(enabled bool) Option {
	return func(s *Service) {
		s.retryOnAllTimeouts = enabled
	}
}

// WithCheckTimeout bounds each backend's TestConnection during Check.
func WithCheckTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.checkTimeout = d
		}
	}
}

func New(searcher Searcher, merger Merger, backends *providers.Registry, opts ...Option) (*Service, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if merger == nil {
		return nil, fmt.Errorf("merger is required")
	}
	if backends == nil {
		return nil, fmt.Errorf("backend registry is required")
	}
	s := &Service{
		searcher:     searcher,
		merger:       merger,
		backends:     backends,
		logger:       slog.Default(),
		checkTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Request is a caller's search.
type Request struct {
	Term     string
	KnownIDs map[string]string
}

// Response is the reconciled answer plus the raw per-backend slots for
// diagnostics.
type Response struct {
	SearchID    string
	Term        string
	Result      merge.Result
	Outcomes    orchestrator.Outcomes
	AllTimedOut bool
	Retried     bool
	Advisory    string
	Duration    time.Duration
}

// Search runs one invocation. The only error is validation; backend failures
// are carried in the response.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	if req.Term == "" && len(req.KnownIDs) == 0 {
		return nil, ErrEmptyTerm
	}

	start := time.Now()
	searchID := uuid.NewString()
	orchReq := orchestrator.Request{Term: req.Term, KnownIDs: req.KnownIDs}

	outcomes := s.searcher.Search(ctx, orchReq)
	retried := false
	if outcomes.AllTimedOut() {
		s.metrics.IncrementAllTimedOut()
		if s.retryOnAllTimeouts && ctx.Err() == nil {
			s.logger.InfoContext(ctx, "all backends timed out, retrying once",
				"search_id", searchID,
			)
			outcomes = s.searcher.Search(ctx, orchReq)
			retried = true
		}
	}

	resp := &Response{
		SearchID:    searchID,
		Term:        req.Term,
		Result:      s.merger.Merge(ctx, outcomes.ByBackend()),
		Outcomes:    outcomes,
		AllTimedOut: outcomes.AllTimedOut(),
		Retried:     retried,
		Duration:    time.Since(start),
	}
	if resp.AllTimedOut {
		resp.Advisory = AllTimedOutAdvisory
	}

	for section, merged := range resp.Result.Sections() {
		s.metrics.IncrementOutcome(section, merged.Kind.String())
	}
	s.metrics.ObserveSearchLatency(resp.Duration)

	s.audit(ctx, resp)

	s.logger.InfoContext(ctx, "search completed",
		"search_id", searchID,
		"request_id", requestcontext.RequestID(ctx),
		"identity", resp.Result.Identity.Kind.String(),
		"results", resp.Result.Count(),
		"failed_backends", len(outcomes.Failures()),
		"duration_ms", resp.Duration.Milliseconds(),
	)
	return resp, nil
}

func (s *Service) audit(ctx context.Context, resp *Response) {
	if s.auditor == nil {
		return
	}
	event := audit.SearchEvent{
		ID:           resp.SearchID,
		Action:       audit.ActionSearch,
		Timestamp:    requestcontext.Now(ctx),
		Caller:       requestcontext.Caller(ctx),
		RequestID:    requestcontext.RequestID(ctx),
		Term:         resp.Term,
		Contributors: resp.Outcomes.Contributors(),
		ResultCount:  resp.Result.Count(),
		Errors:       resp.Outcomes.Failures(),
		AllTimedOut:  resp.AllTimedOut,
		Retried:      resp.Retried,
		Duration:     resp.Duration,
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "search audit failed",
			"search_id", resp.SearchID,
			"error", err,
		)
	}
}

// Photo resolves a lazily loaded photo from backend.
func (s *Service) Photo(ctx context.Context, backend, id string) ([]byte, string, error) {
	b, ok := s.backends.Get(backend)
	if !ok {
		return nil, "", fmt.Errorf("%s: %w", backend, providers.ErrBackendNotFound)
	}
	fetcher, ok := b.(providers.PhotoFetcher)
	if !ok {
		return nil, "", fmt.Errorf("%s: %w", backend, providers.ErrPhotosNotSupported)
	}
	data, contentType, err := fetcher.Photo(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("fetch photo from %s: %w", backend, err)
	}
	return data, contentType, nil
}
