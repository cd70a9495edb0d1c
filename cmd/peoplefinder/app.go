package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"peoplefinder/internal/platform/config"
	"peoplefinder/internal/platform/redis"
	"peoplefinder/internal/search/merge"
	"peoplefinder/internal/search/metrics"
	"peoplefinder/internal/search/orchestrator"
	"peoplefinder/internal/search/providers"
	"peoplefinder/internal/search/providers/contactcenter"
	"peoplefinder/internal/search/providers/directory"
	"peoplefinder/internal/search/providers/graph"
	"peoplefinder/internal/search/providers/profile"
	"peoplefinder/internal/search/service"
	"peoplefinder/internal/tokens"
	"peoplefinder/internal/tokens/oauth"
	tokenstore "peoplefinder/internal/tokens/store"
	"peoplefinder/pkg/platform/audit"
	"peoplefinder/pkg/platform/audit/publisher"
	"peoplefinder/pkg/platform/audit/store/kafka"
	"peoplefinder/pkg/platform/audit/store/logstore"
	auditmemory "peoplefinder/pkg/platform/audit/store/memory"
	auditpostgres "peoplefinder/pkg/platform/audit/store/postgres"
)

// app holds everything a command needs, plus the cleanups to run on exit.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *providers.Registry
	service   *service.Service
	publisher *publisher.Publisher
	closers   []func()
}

// Close releases resources in reverse construction order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// build wires the search service from cfg. reg receives every metric; pass
// prometheus.DefaultRegisterer when serving /metrics.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, registry: providers.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	m := metrics.NewWithRegisterer(reg)

	cache, err := a.tokenCache(ctx, m)
	if err != nil {
		return nil, err
	}
	if err := a.registerBackends(cache); err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(a.registry,
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(m),
		orchestrator.WithOverallTimeout(cfg.Search.OverallTimeout),
		orchestrator.WithDefaultBackendTimeout(cfg.Search.BackendTimeout),
		orchestrator.WithBackendTimeout(providers.Directory, cfg.TimeoutFor(providers.Directory)),
		orchestrator.WithBackendTimeout(providers.Graph, cfg.TimeoutFor(providers.Graph)),
		orchestrator.WithBackendTimeout(providers.ContactCenter, cfg.TimeoutFor(providers.ContactCenter)),
		orchestrator.WithBackendTimeout(providers.Profile, cfg.TimeoutFor(providers.Profile)),
		orchestrator.WithCircuitBreakers(
			cfg.Search.CircuitBreaker.FailureThreshold,
			cfg.Search.CircuitBreaker.SuccessThreshold,
			cfg.Search.CircuitBreaker.Cooldown,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	merger, err := merge.New(orch, merge.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("build merger: %w", err)
	}

	store, err := a.auditStore(ctx)
	if err != nil {
		return nil, err
	}
	a.publisher = publisher.NewPublisher(store,
		publisher.WithAsyncBuffer(cfg.Audit.AsyncBuffer),
		publisher.WithLogger(logger),
		publisher.WithMetrics(publisher.NewMetrics(reg)),
		publisher.WithCircuitBreaker(cfg.Audit.CircuitThreshold, cfg.Audit.CircuitCooldown),
	)
	a.onClose(func() {
		if err := a.publisher.Close(); err != nil {
			logger.Warn("audit publisher close failed", "error", err)
		}
	})

	a.service, err = service.New(orch, merger, a.registry,
		service.WithAuditor(a.publisher),
		service.WithMetrics(m),
		service.WithLogger(logger),
		service.WithRetryOnAllTimeouts(cfg.Search.RetryOnAllTimeouts),
		service.WithCheckTimeout(cfg.Search.CheckTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("build search service: %w", err)
	}
	return a, nil
}

func (a *app) tokenCache(ctx context.Context, m *metrics.Metrics) (*tokens.Cache, error) {
	var store tokens.Store
	switch a.cfg.Tokens.Store {
	case config.TokenStoreRedis:
		client, err := redis.New(ctx, a.cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("token store: %w", err)
		}
		a.onClose(func() { _ = client.Close() })
		store = tokenstore.NewRedisStore(client.Client, tokenstore.WithKeyPrefix(a.cfg.Tokens.KeyPrefix))
	case config.TokenStorePostgres:
		pool, err := pgxpool.New(ctx, a.cfg.Tokens.DSN)
		if err != nil {
			return nil, fmt.Errorf("token store: %w", err)
		}
		a.onClose(pool.Close)
		pg := tokenstore.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("token store: %w", err)
		}
		store = pg
	default:
		store = tokenstore.NewInMemoryStore()
	}
	return tokens.NewCache(store, tokens.WithLogger(a.logger), tokens.WithRecorder(m))
}

func (a *app) acquirer(backend string, cache *tokens.Cache, cfg config.OAuth, httpClient *http.Client) (*tokens.Acquirer, error) {
	source, err := oauth.New(oauth.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
		BasicAuth:    cfg.BasicAuth,
	}, oauth.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("%s token source: %w", backend, err)
	}
	return tokens.NewAcquirer(backend, cache, source,
		tokens.WithAcquisitionTimeout(a.cfg.Tokens.AcquisitionTimeout),
		tokens.WithAcquirerLogger(a.logger),
	)
}

// registerBackends registers enabled backends in a fixed order: directory,
// graph, contact center, profile.
func (a *app) registerBackends(cache *tokens.Cache) error {
	cfg := a.cfg
	httpClient := &http.Client{}
	lazy := cfg.Search.LazyLoadPhotos

	var backends []providers.Backend

	if d := cfg.Backends.Directory; d.Enabled {
		b, err := directory.New(directory.Config{
			URL:          d.URL,
			BindDN:       d.BindDN,
			BindPassword: d.BindPassword,
			BaseDN:       d.BaseDN,
			Timeout:      cfg.TimeoutFor(providers.Directory),
			Limit:        d.Limit,
			LazyPhotos:   lazy,
		})
		if err != nil {
			return err
		}
		backends = append(backends, b)
	}

	if g := cfg.Backends.Graph; g.Enabled {
		acq, err := a.acquirer(providers.Graph, cache, g.OAuth, httpClient)
		if err != nil {
			return err
		}
		b, err := graph.New(graph.Config{BaseURL: g.BaseURL, Limit: g.Limit, LazyPhotos: lazy}, httpClient, acq)
		if err != nil {
			return err
		}
		backends = append(backends, b)
	}

	if cc := cfg.Backends.ContactCenter; cc.Enabled {
		acq, err := a.acquirer(providers.ContactCenter, cache, cc.OAuth, httpClient)
		if err != nil {
			return err
		}
		b, err := contactcenter.New(contactcenter.Config{BaseURL: cc.BaseURL, Limit: cc.Limit}, httpClient, acq)
		if err != nil {
			return err
		}
		backends = append(backends, b)
	}

	if p := cfg.Backends.Profile; p.Enabled {
		b, err := profile.Open(profile.Config{DSN: p.DSN, Limit: p.Limit})
		if err != nil {
			return err
		}
		a.onClose(func() { _ = b.Close() })
		backends = append(backends, b)
	}

	for _, b := range backends {
		if err := a.registry.Register(b); err != nil {
			return err
		}
	}
	if len(backends) == 0 {
		a.logger.Warn("no backends enabled; every search will be empty")
	}
	return nil
}

func (a *app) auditStore(ctx context.Context) (audit.Store, error) {
	switch a.cfg.Audit.Sink {
	case config.AuditSinkKafka:
		store, closeFn, err := kafka.Dial(a.cfg.Audit.Brokers, a.cfg.Audit.Topic)
		if err != nil {
			return nil, fmt.Errorf("audit sink: %w", err)
		}
		a.onClose(closeFn)
		return store, nil
	case config.AuditSinkPostgres:
		db, err := sql.Open("postgres", a.cfg.Audit.DSN)
		if err != nil {
			return nil, fmt.Errorf("audit sink: %w", err)
		}
		a.onClose(func() { _ = db.Close() })
		store := auditpostgres.New(db)
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("audit sink: %w", err)
		}
		return store, nil
	case config.AuditSinkMemory:
		return auditmemory.NewInMemoryStore(), nil
	case config.AuditSinkLog:
		return logstore.New(a.logger), nil
	default:
		return nil, errors.New("unknown audit sink " + a.cfg.Audit.Sink)
	}
}
