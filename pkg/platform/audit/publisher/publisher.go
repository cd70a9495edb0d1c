// Package publisher emits search audit events to an audit.Store.
//
// In sync mode Emit writes through and returns the store error. In async mode
// events are queued on a bounded buffer and written by one background
// goroutine; Emit never blocks on the store and Close drains the queue.
// A circuit breaker stops hammering a store that keeps failing.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	audit "peoplefinder/pkg/platform/audit"
	"peoplefinder/pkg/platform/circuit"
)

// ErrBufferFull is returned by Emit in async mode when the queue is full.
var ErrBufferFull = errors.New("audit buffer full")

type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	breaker *circuit.Breaker

	mu     sync.RWMutex
	queue  chan queued
	closed bool
	wg     sync.WaitGroup
}

type queued struct {
	ctx   context.Context
	event audit.SearchEvent
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with a queue of size n.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.queue = make(chan queued, n)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithCircuitBreaker drops events without calling the store after threshold
// consecutive store failures, until cooldown elapses.
func WithCircuitBreaker(threshold int, cooldown time.Duration) Option {
	return func(p *Publisher) {
		if threshold > 0 {
			p.breaker = circuit.New("audit-store",
				circuit.WithFailureThreshold(threshold),
				circuit.WithSuccessThreshold(1),
				circuit.WithCooldown(cooldown),
			)
		}
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.queue != nil {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Emit records event. Missing ID, action and timestamp are filled in.
func (p *Publisher) Emit(ctx context.Context, event audit.SearchEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Action == "" {
		event.Action = audit.ActionSearch
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if p.queue == nil {
		return p.write(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return p.write(ctx, event)
	}

	select {
	case p.queue <- queued{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.metrics.IncDropped()
		return ErrBufferFull
	}
}

// List returns the events recorded for caller when the store supports queries.
func (p *Publisher) List(ctx context.Context, caller string) ([]audit.SearchEvent, error) {
	lister, ok := p.store.(audit.Lister)
	if !ok {
		return nil, fmt.Errorf("audit store %T cannot be listed", p.store)
	}
	return lister.ListByCaller(ctx, caller)
}

// Close drains queued events and stops the background writer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		if p.queue != nil {
			close(p.queue)
		}
	}
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for q := range p.queue {
		if err := p.write(q.ctx, q.event); err != nil {
			p.logger.WarnContext(q.ctx, "async audit write failed",
				"event_id", q.event.ID,
				"error", err,
			)
		}
	}
}

func (p *Publisher) write(ctx context.Context, event audit.SearchEvent) error {
	if p.breaker != nil && !p.breaker.Allow() {
		p.metrics.IncDropped()
		return fmt.Errorf("audit store circuit open")
	}

	start := time.Now()
	err := p.store.Append(ctx, event)
	if err != nil {
		p.metrics.IncPersistFailures()
		if p.breaker != nil {
			if _, change := p.breaker.RecordFailure(); change.Opened {
				p.metrics.SetCircuitBreakerState(true)
				p.logger.ErrorContext(ctx, "audit store circuit opened", "error", err)
			}
		}
		return fmt.Errorf("append audit event: %w", err)
	}

	if p.breaker != nil {
		if _, change := p.breaker.RecordSuccess(); change.Closed {
			p.metrics.SetCircuitBreakerState(false)
		}
	}
	p.metrics.ObservePersistDuration(time.Since(start))
	p.metrics.IncEmitted()
	return nil
}
