package audit

import (
	"context"
	"slices"
	"time"
)

// ActionSearch is the only action the search service records.
const ActionSearch = "person_search"

// SearchEvent is the post-hoc summary of one completed search. It is emitted
// exactly once per invocation, after merging. Keep it transport-agnostic so
// stores and sinks can fan out.
type SearchEvent struct {
	ID        string
	Action    string
	Timestamp time.Time
	Caller    string
	RequestID string
	Term      string

	// Contributors lists the backends that answered with at least one record
	Contributors []string
	ResultCount  int

	// Errors maps each failed backend to its error string
	Errors      map[string]string
	AllTimedOut bool
	Retried     bool
	Duration    time.Duration
}

// FailedBackends returns the failed backend names in sorted order.
func (e SearchEvent) FailedBackends() []string {
	names := make([]string, 0, len(e.Errors))
	for name := range e.Errors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Store persists or forwards search events.
type Store interface {
	Append(ctx context.Context, event SearchEvent) error
}

// Lister is implemented by stores that can be queried.
type Lister interface {
	ListByCaller(ctx context.Context, caller string) ([]SearchEvent, error)
	ListRecent(ctx context.Context, limit int) ([]SearchEvent, error)
}
