package orchestrator

import (
	"errors"

	"peoplefinder/internal/search/providers"
)

func asProviderError(err error) (*providers.ProviderError, bool) {
	var pe *providers.ProviderError
	ok := errors.As(err, &pe)
	return pe, ok
}
