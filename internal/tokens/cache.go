package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"peoplefinder/pkg/platform/sentinel"
	"peoplefinder/pkg/requestcontext"
)

// Recorder receives cache hit/miss observations. *metrics.Metrics from the
// search context satisfies it.
type Recorder interface {
	RecordTokenCacheHit(backend string)
	RecordTokenCacheMiss(backend string)
	RecordTokenAcquisition(backend string, err error)
}

// Cache is the process-wide token cache shared by every backend client.
type Cache struct {
	store    Store
	logger   *slog.Logger
	recorder Recorder
}

type CacheOption func(*Cache)

func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

func WithRecorder(recorder Recorder) CacheOption {
	return func(c *Cache) {
		c.recorder = recorder
	}
}

// NewCache wraps store.
func NewCache(store Store, opts ...CacheOption) (*Cache, error) {
	if store == nil {
		return nil, fmt.Errorf("token store is required")
	}
	c := &Cache{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetToken returns the cached token for backend only if it is still usable
// at the request time carried by ctx. Store failures are logged and treated
// as a miss.
func (c *Cache) GetToken(ctx context.Context, backend string) (string, bool) {
	cached, err := c.store.Load(ctx, backend)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			c.logger.WarnContext(ctx, "token cache read failed",
				"backend", backend,
				"error", err,
			)
		}
		c.miss(backend)
		return "", false
	}
	if !cached.UsableAt(requestcontext.Now(ctx)) {
		c.miss(backend)
		return "", false
	}
	if c.recorder != nil {
		c.recorder.RecordTokenCacheHit(backend)
	}
	return cached.Token, true
}

// StoreToken replaces the entry for backend with one expiring expiresIn from now.
func (c *Cache) StoreToken(ctx context.Context, backend, token string, expiresIn time.Duration) error {
	entry := NewCachedToken(backend, token, requestcontext.Now(ctx), expiresIn)
	if err := c.store.Save(ctx, entry); err != nil {
		return fmt.Errorf("save token for %s: %w", backend, err)
	}
	return nil
}

func (c *Cache) miss(backend string) {
	if c.recorder != nil {
		c.recorder.RecordTokenCacheMiss(backend)
	}
}
