package handler

import (
	"peoplefinder/internal/search/domain"
	"peoplefinder/internal/search/service"
)

// SearchResponse is the HTTP response for GET /api/search.
type SearchResponse struct {
	SearchID      string            `json:"search_id"`
	Term          string            `json:"term"`
	Identity      SectionResponse   `json:"identity"`
	ContactCenter SectionResponse   `json:"contact_center"`
	Profile       SectionResponse   `json:"profile"`
	AllTimedOut   bool              `json:"all_timed_out"`
	Retried       bool              `json:"retried,omitempty"`
	Advisory      string            `json:"advisory,omitempty"`
	Backends      []BackendResponse `json:"backends"`
	DurationMS    int64             `json:"duration_ms"`
}

// SectionResponse is one merged section.
type SectionResponse struct {
	Kind       string          `json:"kind"`
	Record     domain.Record   `json:"record,omitempty"`
	Candidates []domain.Record `json:"candidates,omitempty"`
	Total      int             `json:"total,omitempty"`
	Advisory   string          `json:"advisory,omitempty"`
}

// BackendResponse summarizes one backend's slot.
type BackendResponse struct {
	Backend   string `json:"backend"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// HealthResponse is the HTTP response for GET /healthz.
type HealthResponse struct {
	Healthy  bool                    `json:"healthy"`
	Backends []BackendHealthResponse `json:"backends"`
}

type BackendHealthResponse struct {
	Backend   string `json:"backend"`
	Healthy   bool   `json:"healthy"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

func toSection(m domain.Merged) SectionResponse {
	return SectionResponse{
		Kind:       m.Kind.String(),
		Record:     m.Record,
		Candidates: m.Candidates,
		Total:      m.Total,
		Advisory:   m.Advisory,
	}
}

// FromResponse converts a service response to its HTTP shape.
func FromResponse(resp *service.Response) *SearchResponse {
	out := &SearchResponse{
		SearchID:      resp.SearchID,
		Term:          resp.Term,
		Identity:      toSection(resp.Result.Identity),
		ContactCenter: toSection(resp.Result.ContactCenter),
		Profile:       toSection(resp.Result.Profile),
		AllTimedOut:   resp.AllTimedOut,
		Retried:       resp.Retried,
		Advisory:      resp.Advisory,
		Backends:      make([]BackendResponse, 0, len(resp.Outcomes)),
		DurationMS:    resp.Duration.Milliseconds(),
	}
	for _, r := range resp.Outcomes {
		out.Backends = append(out.Backends, BackendResponse{
			Backend:   r.Backend,
			Status:    r.Status(),
			Error:     r.Outcome.ErrorMessage(),
			ElapsedMS: r.Elapsed.Milliseconds(),
		})
	}
	return out
}

// FromHealth converts health results to their HTTP shape.
func FromHealth(results []service.BackendHealth) *HealthResponse {
	out := &HealthResponse{
		Healthy:  service.Healthy(results),
		Backends: make([]BackendHealthResponse, 0, len(results)),
	}
	for _, r := range results {
		out.Backends = append(out.Backends, BackendHealthResponse{
			Backend:   r.Backend,
			Healthy:   r.Healthy,
			Error:     r.Error,
			LatencyMS: r.Latency.Milliseconds(),
		})
	}
	return out
}
