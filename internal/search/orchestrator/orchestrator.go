// Package orchestrator fans one search out to every configured backend and
// collects exactly one outcome per backend.
//
// Every backend call runs in its own goroutine under a per-backend timeout
// nested in the overall invocation timeout. The orchestrator stops waiting at
// whichever deadline comes first; a result arriving after that is discarded.
// Backend errors and panics become Failed outcomes and never abort sibling
// calls.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"peoplefinder/internal/search/domain"
	"peoplefinder/internal/search/metrics"
	"peoplefinder/internal/search/providers"
	"peoplefinder/pkg/platform/circuit"
	"peoplefinder/pkg/requestcontext"
)

const (
	defaultBackendTimeout = 4 * time.Second
	defaultOverallTimeout = 12 * time.Second
)

// Request is one search invocation.
type Request struct {
	Term string

	// KnownIDs routes the named backends to FetchByID instead of Search, for
	// re-queries after the caller picked one candidate.
	KnownIDs map[string]string
}

// Orchestrator runs searches against a fixed set of backends.
type Orchestrator struct {
	registry       *providers.Registry
	overall        time.Duration
	defaultTimeout time.Duration
	timeouts       map[string]time.Duration
	breakers       map[string]*circuit.Breaker
	metrics        *metrics.Metrics
	logger         *slog.Logger
	tracer         trace.Tracer
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithOverallTimeout caps the whole invocation.
func WithOverallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.overall = d
		}
	}
}

// WithDefaultBackendTimeout applies to backends without their own timeout.
func WithDefaultBackendTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.defaultTimeout = d
		}
	}
}

// WithBackendTimeout sets the timeout for a single backend.
func WithBackendTimeout(backend string, d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeouts[backend] = d
		}
	}
}

// WithCircuitBreakers guards every backend with its own breaker. A zero
// failure threshold leaves breakers disabled.
func WithCircuitBreakers(failureThreshold, successThreshold int, cooldown time.Duration) Option {
	return func(o *Orchestrator) {
		if failureThreshold <= 0 {
			return
		}
		for _, name := range o.registry.Names() {
			o.breakers[name] = circuit.New(name,
				circuit.WithFailureThreshold(failureThreshold),
				circuit.WithSuccessThreshold(successThreshold),
				circuit.WithCooldown(cooldown),
			)
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// New builds an orchestrator over registry.
func New(registry *providers.Registry, opts ...Option) (*Orchestrator, error) {
	if registry == nil {
		return nil, fmt.Errorf("backend registry is required")
	}
	o := &Orchestrator{
		registry:       registry,
		overall:        defaultOverallTimeout,
		defaultTimeout: defaultBackendTimeout,
		timeouts:       make(map[string]time.Duration),
		breakers:       make(map[string]*circuit.Breaker),
		logger:         slog.Default(),
		tracer:         otel.Tracer("peoplefinder/search/orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// TimeoutFor returns the effective timeout for backend.
func (o *Orchestrator) TimeoutFor(backend string) time.Duration {
	if d, ok := o.timeouts[backend]; ok {
		return d
	}
	return o.defaultTimeout
}

// OverallTimeout returns the invocation cap.
func (o *Orchestrator) OverallTimeout() time.Duration {
	return o.overall
}

type slot struct {
	index  int
	result Result
}

// Search dispatches req to every backend and returns one Result per backend,
// in registration order, no later than the overall timeout.
func (o *Orchestrator) Search(ctx context.Context, req Request) Outcomes {
	ctx, span := o.tracer.Start(ctx, "search.fanout",
		trace.WithAttributes(attribute.Int("search.backends", o.registry.Len())))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.overall)
	defer cancel()

	backends := o.registry.All()
	results := make(Outcomes, len(backends))
	resolved := make([]bool, len(backends))

	// Buffered so a straggler can always deliver and exit after we stop listening.
	done := make(chan slot, len(backends))
	for i, b := range backends {
		go func() {
			done <- slot{index: i, result: o.run(ctx, b, req)}
		}()
	}

	start := time.Now()
collect:
	for pending := len(backends); pending > 0; pending-- {
		select {
		case s := <-done:
			results[s.index] = s.result
			resolved[s.index] = true
		case <-ctx.Done():
			break collect
		}
	}

	// Each slot is observed here exactly once, whether it answered or was cut
	// off; a straggler delivering after this point is never observed.
	for i, b := range backends {
		if !resolved[i] {
			err := providers.NewProviderError(providers.ErrorTimeout, b.Name(),
				fmt.Sprintf("exceeded overall timeout %s", o.overall), ctx.Err())
			results[i] = Result{Backend: b.Name(), Outcome: domain.Failed(err), Elapsed: time.Since(start)}
		}
		o.observe(ctx, results[i])
	}

	if results.AllTimedOut() {
		span.SetStatus(codes.Error, "all backends timed out")
	}
	return results
}

// FetchByID loads one record from backend by its identifier under the same
// timeout and circuit breaker as a search call. A record the backend no
// longer has yields nil and no error.
func (o *Orchestrator) FetchByID(ctx context.Context, backend, id string) (domain.Record, error) {
	b, ok := o.registry.Get(backend)
	if !ok {
		return nil, fmt.Errorf("%s: %w", backend, providers.ErrBackendNotFound)
	}
	result := o.run(ctx, b, Request{KnownIDs: map[string]string{backend: id}})
	o.observe(ctx, result)
	if result.Outcome.IsFailed() {
		return nil, result.Outcome.Err()
	}
	return result.Outcome.Record(), nil
}

// run executes one backend call under its own timeout. The adapter runs in a
// nested goroutine so an adapter that ignores cancellation cannot hold the
// slot past its deadline.
func (o *Orchestrator) run(ctx context.Context, b providers.Backend, req Request) Result {
	name := b.Name()
	timeout := o.TimeoutFor(name)

	ctx, span := o.tracer.Start(ctx, "search.backend",
		trace.WithAttributes(attribute.String("search.backend", name)))
	defer span.End()

	start := time.Now()
	result := Result{Backend: name}

	breaker := o.breakers[name]
	if breaker != nil && !breaker.Allow() {
		result.Outcome = domain.Failed(providers.NewProviderError(providers.ErrorBackend, name, "circuit open", nil))
		result.Elapsed = time.Since(start)
		span.SetStatus(codes.Error, "circuit open")
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	answered := make(chan domain.Outcome, 1)
	go func() {
		answered <- o.invoke(callCtx, b, req)
	}()

	select {
	case out := <-answered:
		result.Outcome = out
	case <-callCtx.Done():
		result.Outcome = domain.Failed(o.timeoutError(ctx, name, timeout))
	}
	result.Elapsed = time.Since(start)

	o.recordBreaker(ctx, breaker, result)
	span.SetAttributes(attribute.String("search.status", result.Status()))
	if result.Outcome.IsFailed() {
		span.SetStatus(codes.Error, result.Outcome.ErrorMessage())
	}
	return result
}

// invoke calls the adapter and converts every failure, including panics, into
// a Failed outcome carrying a *providers.ProviderError.
func (o *Orchestrator) invoke(ctx context.Context, b providers.Backend, req Request) (out domain.Outcome) {
	name := b.Name()
	defer func() {
		if r := recover(); r != nil {
			o.logger.ErrorContext(ctx, "backend panicked",
				"backend", name,
				"panic", r,
			)
			out = domain.Failed(providers.NewProviderError(providers.ErrorBackend, name,
				fmt.Sprintf("panic: %v", r), nil))
		}
	}()

	if id, ok := req.KnownIDs[name]; ok && id != "" {
		record, err := b.FetchByID(ctx, id)
		if err != nil {
			return domain.Failed(o.normalize(ctx, name, err))
		}
		return domain.Found(record)
	}

	outcome, err := b.Search(ctx, req.Term)
	if err != nil {
		return domain.Failed(o.normalize(ctx, name, err))
	}
	return outcome
}

func (o *Orchestrator) normalize(ctx context.Context, name string, err error) error {
	if _, ok := asProviderError(err); ok {
		return err
	}
	if ctx.Err() != nil {
		return providers.NewProviderError(providers.ErrorTimeout, name,
			fmt.Sprintf("exceeded %s", o.TimeoutFor(name)), err)
	}
	return providers.NewProviderError(providers.ErrorBackend, name, "search failed", err)
}

// timeoutError names the overall timeout when parent expired, else the
// backend's own.
func (o *Orchestrator) timeoutError(parent context.Context, name string, timeout time.Duration) error {
	if parent.Err() != nil {
		return providers.NewProviderError(providers.ErrorTimeout, name,
			fmt.Sprintf("exceeded overall timeout %s", o.overall), parent.Err())
	}
	return providers.NewProviderError(providers.ErrorTimeout, name,
		fmt.Sprintf("exceeded %s", timeout), context.DeadlineExceeded)
}

func (o *Orchestrator) recordBreaker(ctx context.Context, breaker *circuit.Breaker, result Result) {
	if breaker == nil {
		return
	}
	failed := result.Outcome.IsFailed() &&
		providers.GetCategory(result.Outcome.Err()) != providers.ErrorTooManyResults
	if failed {
		if _, change := breaker.RecordFailure(); change.Opened {
			o.logger.WarnContext(ctx, "backend circuit opened",
				"backend", result.Backend,
				"error", result.Outcome.ErrorMessage(),
			)
			o.metrics.RecordCircuitTransition(result.Backend, circuit.StateOpen.String())
		}
		return
	}
	if _, change := breaker.RecordSuccess(); change.Closed {
		o.logger.InfoContext(ctx, "backend circuit closed", "backend", result.Backend)
		o.metrics.RecordCircuitTransition(result.Backend, circuit.StateClosed.String())
	}
}

func (o *Orchestrator) observe(ctx context.Context, result Result) {
	o.metrics.ObserveBackendLatency(result.Backend, result.Status(), result.Elapsed)
	if !result.Outcome.IsFailed() {
		return
	}
	o.logger.WarnContext(ctx, "backend search failed",
		"request_id", requestcontext.RequestID(ctx),
		"backend", result.Backend,
		"status", result.Status(),
		"duration_ms", result.Elapsed.Milliseconds(),
		"error", result.Outcome.ErrorMessage(),
	)
}
