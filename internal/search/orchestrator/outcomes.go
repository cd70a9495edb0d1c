package orchestrator

import (
	"time"

	"peoplefinder/internal/search/domain"
	"peoplefinder/internal/search/providers"
)

// Result is one backend's slot in a search invocation.
type Result struct {
	Backend string
	Outcome domain.Outcome
	Elapsed time.Duration
}

// Status is the metric and log label for the slot: the outcome kind, or the
// error category when the backend failed.
func (r Result) Status() string {
	if r.Outcome.IsFailed() {
		return string(providers.GetCategory(r.Outcome.Err()))
	}
	return r.Outcome.Kind().String()
}

// Outcomes holds one Result per configured backend in registration order.
type Outcomes []Result

// Get returns the outcome for backend. Unconfigured backends are Absent.
func (o Outcomes) Get(backend string) (domain.Outcome, bool) {
	for _, r := range o {
		if r.Backend == backend {
			return r.Outcome, true
		}
	}
	return domain.Absent(), false
}

// ByBackend indexes the outcomes by backend name.
func (o Outcomes) ByBackend() map[string]domain.Outcome {
	out := make(map[string]domain.Outcome, len(o))
	for _, r := range o {
		out[r.Backend] = r.Outcome
	}
	return out
}

// AllTimedOut reports the aggregate "all sources timed out" condition. It is
// false for an invocation with no backends.
func (o Outcomes) AllTimedOut() bool {
	if len(o) == 0 {
		return false
	}
	for _, r := range o {
		if !r.Outcome.IsFailed() || !providers.IsTimeout(r.Outcome.Err()) {
			return false
		}
	}
	return true
}

// Failures maps each failed backend to its error message.
func (o Outcomes) Failures() map[string]string {
	out := make(map[string]string)
	for _, r := range o {
		if r.Outcome.IsFailed() {
			out[r.Backend] = r.Outcome.ErrorMessage()
		}
	}
	return out
}

// Contributors lists the backends that answered with at least one record.
func (o Outcomes) Contributors() []string {
	var out []string
	for _, r := range o {
		if r.Outcome.HasAnswer() {
			out = append(out, r.Backend)
		}
	}
	return out
}
