package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// BackendHealth is one backend's connection test result.
type BackendHealth struct {
	Backend string
	Healthy bool
	Error   string
	Latency time.Duration
}

// Check tests every backend's connection concurrently. A failing backend does
// not cancel the others.
func (s *Service) Check(ctx context.Context) []BackendHealth {
	backends := s.backends.All()
	results := make([]BackendHealth, len(backends))

	var g errgroup.Group
	for i, b := range backends {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(ctx, s.checkTimeout)
			defer cancel()

			start := time.Now()
			err := b.TestConnection(ctx)
			results[i] = BackendHealth{
				Backend: b.Name(),
				Healthy: err == nil,
				Latency: time.Since(start),
			}
			if err != nil {
				results[i].Error = err.Error()
				s.logger.WarnContext(ctx, "backend health check failed",
					"backend", b.Name(),
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Healthy reports whether every backend passed.
func Healthy(results []BackendHealth) bool {
	for _, r := range results {
		if !r.Healthy {
			return false
		}
	}
	return true
}
