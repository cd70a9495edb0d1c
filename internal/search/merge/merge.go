// Package merge reconciles the per-backend outcomes of one search into the
// answer shown to the caller.
//
// The identity section combines the directory and graph backends, graph
// taking precedence field by field. Contact-center and profile data form
// their own sections. When one side of a pair found a single person and the
// other several, the candidates are matched on email or user principal name
// and the matching one is fetched in full; this is the only I/O the merger
// performs.
package merge

import (
	"context"
	"fmt"
	"log/slog"

	"peoplefinder/internal/search/domain"
	"peoplefinder/internal/search/providers"
)

// Sections of a merged search result.
const (
	SectionIdentity      = "identity"
	SectionContactCenter = providers.ContactCenter
	SectionProfile       = providers.Profile
)

// Result is the reconciled answer for one search.
type Result struct {
	Identity      domain.Merged
	ContactCenter domain.Merged
	Profile       domain.Merged
}

// Sections returns the result keyed by section name.
func (r Result) Sections() map[string]domain.Merged {
	return map[string]domain.Merged{
		SectionIdentity:      r.Identity,
		SectionContactCenter: r.ContactCenter,
		SectionProfile:       r.Profile,
	}
}

// Count is the number of person records across all sections.
func (r Result) Count() int {
	return r.Identity.Count() + r.ContactCenter.Count() + r.Profile.Count()
}

// Fetcher resolves a full record for a smart-matched candidate. The
// orchestrator implements it, applying the backend's timeout and breaker.
type Fetcher interface {
	FetchByID(ctx context.Context, backend, id string) (domain.Record, error)
}

type Merger struct {
	fetcher Fetcher
	logger  *slog.Logger
}

type Option func(*Merger)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Merger) {
		m.logger = logger
	}
}

// New builds a merger. fetcher is normally the orchestrator.
func New(fetcher Fetcher, opts ...Option) (*Merger, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("backend fetcher is required")
	}
	m := &Merger{
		fetcher: fetcher,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Merge reconciles outcomes, keyed by backend name. Backends missing from the
// map are treated as having found nothing.
func (m *Merger) Merge(ctx context.Context, outcomes map[string]domain.Outcome) Result {
	identity := m.mergePair(ctx,
		side{name: providers.Directory, outcome: lookup(outcomes, providers.Directory)},
		side{name: providers.Graph, outcome: lookup(outcomes, providers.Graph)},
	)

	var anchor domain.Record
	if identity.Kind == domain.MergedSingle {
		anchor = identity.Record
	}

	return Result{
		Identity:      identity,
		ContactCenter: m.mergeSection(ctx, providers.ContactCenter, lookup(outcomes, providers.ContactCenter), anchor),
		Profile:       m.mergeSection(ctx, providers.Profile, lookup(outcomes, providers.Profile), anchor),
	}
}

func lookup(outcomes map[string]domain.Outcome, name string) domain.Outcome {
	if out, ok := outcomes[name]; ok {
		return out
	}
	return domain.Absent()
}

type side struct {
	name    string
	outcome domain.Outcome
}

// mergePair reconciles two directory-like backends. preferred wins every
// field both populate.
func (m *Merger) mergePair(ctx context.Context, base, preferred side) domain.Merged {
	if base.outcome.IsFailed() && preferred.outcome.IsFailed() {
		return domain.AbsentResult(bothFailed(base, preferred))
	}

	b, p := base.outcome, preferred.outcome
	switch {
	case b.Kind() == domain.OutcomeFound && p.Kind() == domain.OutcomeFound:
		return domain.SingleResult(domain.Combine(b.Record(), base.name, p.Record(), preferred.name))

	case b.Kind() == domain.OutcomeFound && p.Kind() == domain.OutcomeCandidates:
		if match, ok := m.smartMatch(ctx, b.Record(), preferred.name, p.Candidates()); ok {
			return domain.SingleResult(domain.Combine(b.Record(), base.name, match, preferred.name))
		}
		return domain.DisambiguationResult(domain.TagAll(p.Candidates(), preferred.name))

	case b.Kind() == domain.OutcomeCandidates && p.Kind() == domain.OutcomeFound:
		if match, ok := m.smartMatch(ctx, p.Record(), base.name, b.Candidates()); ok {
			return domain.SingleResult(domain.Combine(match, base.name, p.Record(), preferred.name))
		}
		return domain.DisambiguationResult(domain.TagAll(b.Candidates(), base.name))

	case b.Kind() == domain.OutcomeCandidates || p.Kind() == domain.OutcomeCandidates:
		return domain.DisambiguationResult(
			domain.TagAll(b.Candidates(), base.name),
			domain.TagAll(p.Candidates(), preferred.name),
		)

	case b.Kind() == domain.OutcomeFound:
		return domain.SingleResult(domain.Combine(b.Record(), base.name, nil, preferred.name))

	case p.Kind() == domain.OutcomeFound:
		return domain.SingleResult(domain.Combine(nil, base.name, p.Record(), preferred.name))
	}
	return domain.AbsentResult("")
}

// mergeSection reconciles a single-backend section. anchor, when set, is the
// resolved identity used to pick one of several candidates.
func (m *Merger) mergeSection(ctx context.Context, name string, out domain.Outcome, anchor domain.Record) domain.Merged {
	switch out.Kind() {
	case domain.OutcomeFailed:
		return domain.AbsentResult(out.ErrorMessage())
	case domain.OutcomeFound:
		return domain.SingleResult(domain.Tag(out.Record(), name))
	case domain.OutcomeCandidates:
		if anchor != nil {
			if match, ok := m.smartMatch(ctx, anchor, name, out.Candidates()); ok {
				return domain.SingleResult(domain.Tag(match, name))
			}
		}
		return domain.DisambiguationResult(domain.TagAll(out.Candidates(), name))
	}
	return domain.AbsentResult("")
}

// smartMatch finds the candidate sharing an identifier with anchor and
// fetches its full record from backend. A failed fetch falls back to the
// candidate as listed.
func (m *Merger) smartMatch(ctx context.Context, anchor domain.Record, backend string, candidates []domain.Record) (domain.Record, bool) {
	candidate, ok := domain.MatchCandidate(anchor, candidates)
	if !ok {
		return nil, false
	}
	id := candidate.ID()
	if id == "" {
		return candidate, true
	}

	full, err := m.fetcher.FetchByID(ctx, backend, id)
	switch {
	case err != nil:
		m.logger.WarnContext(ctx, "smart match fetch failed, using candidate summary",
			"backend", backend,
			"id", id,
			"error", err,
		)
		return candidate, true
	case full == nil:
		m.logger.WarnContext(ctx, "smart match candidate vanished, using candidate summary",
			"backend", backend,
			"id", id,
		)
		return candidate, true
	}
	return full, true
}

func bothFailed(base, preferred side) string {
	return fmt.Sprintf("%s and %s both failed: %s; %s",
		base.name, preferred.name, base.outcome.ErrorMessage(), preferred.outcome.ErrorMessage())
}
