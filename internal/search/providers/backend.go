package providers

import (
	"context"
	"fmt"

	"peoplefinder/internal/search/domain"
)

// Stable backend names.
const (
	Directory     = "directory"
	Graph         = "graph"
	ContactCenter = "contactcenter"
	Profile       = "profile"
)

// Backend is the universal interface all identity sources implement.
type Backend interface {
	// Name returns the stable service name, also used as the token cache key
	Name() string

	// Search looks up term and classifies the answer. Failures are returned as
	// errors, preferably *ProviderError; the outcome is then ignored.
	Search(ctx context.Context, term string) (domain.Outcome, error)

	// FetchByID returns the full record for a backend-specific identifier, or
	// nil when it does not exist.
	FetchByID(ctx context.Context, id string) (domain.Record, error)

	// TestConnection checks that the backend is reachable and authorized
	TestConnection(ctx context.Context) error
}

// PhotoFetcher is implemented by backends that can resolve lazily loaded photos.
type PhotoFetcher interface {
	Photo(ctx context.Context, id string) (data []byte, contentType string, err error)
}

// Registry keeps configured backends in registration order.
type Registry struct {
	order    []string
	backends map[string]Backend
}

// NewRegistry creates a new empty registry
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
	}
}

// Register adds a backend to the registry
func (r *Registry) Register(b Backend) error {
	name := b.Name()
	if _, exists := r.backends[name]; exists {
		return fmt.Errorf("%s: %w", name, ErrBackendRegistered)
	}
	r.backends[name] = b
	r.order = append(r.order, name)
	return nil
}

// Get retrieves a backend by name
func (r *Registry) Get(name string) (Backend, bool) {
	b, ok := r.backends[name]
	return b, ok
}

// All returns all registered backends in registration order
func (r *Registry) All() []Backend {
	result := make([]Backend, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.backends[name])
	}
	return result
}

// Names returns the registered backend names in registration order
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of registered backends
func (r *Registry) Len() int {
	return len(r.order)
}

// TokenProvider hands out a bearer token for one backend.
// *tokens.Acquirer satisfies it.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}
