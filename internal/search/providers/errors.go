package providers

import (
	"errors"
	"fmt"
)

// ErrorCategory defines the normalized failure taxonomy
type ErrorCategory string

const (
	// ErrorTimeout indicates the backend did not answer within its allotted time
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBackend indicates the backend call failed for any other reason:
	// connection failures, error statuses, unreadable responses
	ErrorBackend ErrorCategory = "backend_error"

	// ErrorTooManyResults indicates the backend refused to enumerate past its cap
	ErrorTooManyResults ErrorCategory = "too_many_results"

	// ErrorTokenAcquisition indicates no bearer token could be obtained, so the
	// backend was never called
	ErrorTokenAcquisition ErrorCategory = "token_acquisition_failed"

	// ErrorBadData indicates the backend answered with malformed data
	ErrorBadData ErrorCategory = "bad_data"
)

// IsBackendFailure reports whether the category counts as a BackendError from
// the orchestrator's point of view.
func (c ErrorCategory) IsBackendFailure() bool {
	switch c {
	case ErrorBackend, ErrorTokenAcquisition, ErrorBadData:
		return true
	default:
		return false
	}
}

// ProviderError wraps backend failures with normalized categorization
type ProviderError struct {
	Category   ErrorCategory
	ProviderID string
	Message    string
	Underlying error
	Retryable  bool // Whether the next search may succeed where this one failed
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.ProviderID, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s [%s]: %s", e.ProviderID, e.Category, e.Message)
}

// Unwrap supports error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

// NewProviderError creates a new normalized provider error
func NewProviderError(category ErrorCategory, providerID, message string, underlying error) *ProviderError {
	retryable := category == ErrorTimeout ||
		category == ErrorBackend ||
		category == ErrorTokenAcquisition

	return &ProviderError{
		Category:   category,
		ProviderID: providerID,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// IsRetryable checks if an error is worth retrying on a later search
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error. Errors that were
// never categorized are backend errors.
func GetCategory(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorBackend
}

// IsTimeout reports whether err is a categorized timeout.
func IsTimeout(err error) bool {
	return err != nil && GetCategory(err) == ErrorTimeout
}

// Sentinel errors for common cases
var (
	ErrBackendNotFound    = errors.New("backend not found")
	ErrBackendRegistered  = errors.New("backend already registered")
	ErrPhotosNotSupported = errors.New("backend does not serve photos")
)
