package providers

import (
	"fmt"

	"peoplefinder/internal/search/domain"
)

// Classify turns a raw result list into an Outcome. Backends fetch one row past
// their cap, so more than limit records means the backend would have had to
// truncate, which is reported as ErrorTooManyResults instead.
func Classify(backend string, records []domain.Record, limit int) (domain.Outcome, error) {
	if limit > 0 && len(records) > limit {
		return domain.Outcome{}, TooManyResults(backend, limit)
	}
	return domain.Candidates(records), nil
}

// TooManyResults builds the error a backend reports when a term matches more
// than limit people.
func TooManyResults(backend string, limit int) *ProviderError {
	return NewProviderError(ErrorTooManyResults, backend,
		fmt.Sprintf("more than %d matches, please refine the search", limit), nil)
}
