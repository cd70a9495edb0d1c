package tokens

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Grant is a freshly issued token and its lifetime.
type Grant struct {
	AccessToken string
	ExpiresIn   time.Duration
}

// Source performs the backend-specific credential exchange.
type Source interface {
	Exchange(ctx context.Context) (Grant, error)
}

// Acquirer hands one backend's client a usable bearer token, exchanging
// credentials only when the cache has nothing usable.
type Acquirer struct {
	backend string
	cache   *Cache
	source  Source
	timeout time.Duration
	logger  *slog.Logger
}

type AcquirerOption func(*Acquirer)

// WithAcquisitionTimeout bounds a single credential exchange.
func WithAcquisitionTimeout(d time.Duration) AcquirerOption {
	return func(a *Acquirer) {
		a.timeout = d
	}
}

func WithAcquirerLogger(logger *slog.Logger) AcquirerOption {
	return func(a *Acquirer) {
		a.logger = logger
	}
}

const defaultAcquisitionTimeout = 3 * time.Second

// NewAcquirer builds the acquirer for backend.
func NewAcquirer(backend string, cache *Cache, source Source, opts ...AcquirerOption) (*Acquirer, error) {
	if backend == "" {
		return nil, fmt.Errorf("backend name is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("token cache is required")
	}
	if source == nil {
		return nil, fmt.Errorf("token source is required")
	}
	a := &Acquirer{
		backend: backend,
		cache:   cache,
		source:  source,
		timeout: defaultAcquisitionTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// AccessToken returns a usable token, acquiring and caching a new one on a
// miss. It fails only when the exchange itself fails; a failure to write the
// cache is logged and the fresh token is still returned.
func (a *Acquirer) AccessToken(ctx context.Context) (string, error) {
	if token, ok := a.cache.GetToken(ctx, a.backend); ok {
		return token, nil
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	grant, err := a.source.Exchange(exchangeCtx)
	if a.cache.recorder != nil {
		a.cache.recorder.RecordTokenAcquisition(a.backend, err)
	}
	if err != nil {
		return "", fmt.Errorf("acquire token for %s: %w", a.backend, err)
	}
	if grant.AccessToken == "" {
		return "", fmt.Errorf("acquire token for %s: empty access token", a.backend)
	}

	if err := a.cache.StoreToken(ctx, a.backend, grant.AccessToken, grant.ExpiresIn); err != nil {
		a.logger.WarnContext(ctx, "token cache write failed",
			"backend", a.backend,
			"error", err,
		)
	}
	return grant.AccessToken, nil
}

// Backend returns the backend this acquirer serves.
func (a *Acquirer) Backend() string {
	return a.backend
}
