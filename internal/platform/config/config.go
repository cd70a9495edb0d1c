package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. PEOPLEFINDER_SERVER_ADDR.
const EnvPrefix = "PEOPLEFINDER_"

// Config is the full application configuration.
type Config struct {
	Server   Server   `yaml:"server" envPrefix:"SERVER_"`
	Log      Log      `yaml:"log" envPrefix:"LOG_"`
	Search   Search   `yaml:"search" envPrefix:"SEARCH_"`
	Backends Backends `yaml:"backends" envPrefix:"BACKENDS_"`
	Tokens   Tokens   `yaml:"tokens" envPrefix:"TOKENS_"`
	Redis    Redis    `yaml:"redis" envPrefix:"REDIS_"`
	Audit    Audit    `yaml:"audit" envPrefix:"AUDIT_"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string        `yaml:"addr" env:"ADDR"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type Log struct {
	Level  string `yaml:"level" env:"LEVEL"`   // debug | info | warn | error
	Format string `yaml:"format" env:"FORMAT"` // json | text
}

// Search holds fan-out and merge settings shared by every backend.
type Search struct {
	BackendTimeout     time.Duration  `yaml:"backend_timeout" env:"BACKEND_TIMEOUT"`
	OverallTimeout     time.Duration  `yaml:"overall_timeout" env:"OVERALL_TIMEOUT"`
	CheckTimeout       time.Duration  `yaml:"check_timeout" env:"CHECK_TIMEOUT"`
	RetryOnAllTimeouts bool           `yaml:"retry_on_all_timeouts" env:"RETRY_ON_ALL_TIMEOUTS"`
	LazyLoadPhotos     bool           `yaml:"lazy_load_photos" env:"LAZY_LOAD_PHOTOS"`
	CircuitBreaker     CircuitBreaker `yaml:"circuit_breaker" envPrefix:"CIRCUIT_"`
}

// CircuitBreaker is disabled when FailureThreshold is zero.
type CircuitBreaker struct {
	FailureThreshold int           `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	SuccessThreshold int           `yaml:"success_threshold" env:"SUCCESS_THRESHOLD"`
	Cooldown         time.Duration `yaml:"cooldown" env:"COOLDOWN"`
}

type Backends struct {
	Directory     Directory     `yaml:"directory" envPrefix:"DIRECTORY_"`
	Graph         Graph         `yaml:"graph" envPrefix:"GRAPH_"`
	ContactCenter ContactCenter `yaml:"contact_center" envPrefix:"CONTACTCENTER_"`
	Profile       Profile       `yaml:"profile" envPrefix:"PROFILE_"`
}

type Directory struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	URL          string        `yaml:"url" env:"URL"`
	BindDN       string        `yaml:"bind_dn" env:"BIND_DN"`
	BindPassword string        `yaml:"bind_password" env:"BIND_PASSWORD"`
	BaseDN       string        `yaml:"base_dn" env:"BASE_DN"`
	Limit        int           `yaml:"limit" env:"LIMIT"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type Graph struct {
	Enabled bool          `yaml:"enabled" env:"ENABLED"`
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Limit   int           `yaml:"limit" env:"LIMIT"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	OAuth   OAuth         `yaml:"oauth" envPrefix:"OAUTH_"`
}

type ContactCenter struct {
	Enabled bool          `yaml:"enabled" env:"ENABLED"`
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Limit   int           `yaml:"limit" env:"LIMIT"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	OAuth   OAuth         `yaml:"oauth" envPrefix:"OAUTH_"`
}

type Profile struct {
	Enabled bool          `yaml:"enabled" env:"ENABLED"`
	DSN     string        `yaml:"dsn" env:"DSN"`
	Limit   int           `yaml:"limit" env:"LIMIT"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// OAuth is a client-credentials grant for one REST backend.
type OAuth struct {
	ClientID     string   `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret string   `yaml:"client_secret" env:"CLIENT_SECRET"`
	TokenURL     string   `yaml:"token_url" env:"TOKEN_URL"`
	Scopes       []string `yaml:"scopes" env:"SCOPES"`
	BasicAuth    bool     `yaml:"basic_auth" env:"BASIC_AUTH"`
}

// Token store kinds.
const (
	TokenStoreMemory   = "memory"
	TokenStoreRedis    = "redis"
	TokenStorePostgres = "postgres"
)

type Tokens struct {
	Store              string        `yaml:"store" env:"STORE"`
	DSN                string        `yaml:"dsn" env:"DSN"`
	KeyPrefix          string        `yaml:"key_prefix" env:"KEY_PREFIX"`
	AcquisitionTimeout time.Duration `yaml:"acquisition_timeout" env:"ACQUISITION_TIMEOUT"`
}

// Redis configures the shared go-redis client. An empty URL disables it.
type Redis struct {
	URL          string        `yaml:"url" env:"URL"`
	PoolSize     int           `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int           `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// Audit sink kinds.
const (
	AuditSinkLog      = "log"
	AuditSinkKafka    = "kafka"
	AuditSinkPostgres = "postgres"
	AuditSinkMemory   = "memory"
)

type Audit struct {
	Sink             string        `yaml:"sink" env:"SINK"`
	Brokers          []string      `yaml:"brokers" env:"BROKERS"`
	Topic            string        `yaml:"topic" env:"TOPIC"`
	DSN              string        `yaml:"dsn" env:"DSN"`
	AsyncBuffer      int           `yaml:"async_buffer" env:"ASYNC_BUFFER"`
	CircuitThreshold int           `yaml:"circuit_threshold" env:"CIRCUIT_THRESHOLD"`
	CircuitCooldown  time.Duration `yaml:"circuit_cooldown" env:"CIRCUIT_COOLDOWN"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: Server{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Log: Log{Level: "info", Format: "json"},
		Search: Search{
			BackendTimeout: 4 * time.Second,
			OverallTimeout: 12 * time.Second,
			CheckTimeout:   5 * time.Second,
			LazyLoadPhotos: true,
			CircuitBreaker: CircuitBreaker{
				SuccessThreshold: 2,
				Cooldown:         30 * time.Second,
			},
		},
		Backends: Backends{
			Directory:     Directory{Limit: 25},
			Graph:         Graph{Limit: 25},
			ContactCenter: ContactCenter{Limit: 25},
			Profile:       Profile{Limit: 25},
		},
		Tokens: Tokens{
			Store:              TokenStoreMemory,
			KeyPrefix:          "peoplefinder:token:",
			AcquisitionTimeout: 3 * time.Second,
		},
		Redis: Redis{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Audit: Audit{
			Sink:             AuditSinkLog,
			Topic:            "peoplefinder.search-audit",
			AsyncBuffer:      256,
			CircuitThreshold: 5,
			CircuitCooldown:  30 * time.Second,
		},
	}
}

// Load starts from Default, overlays the YAML file at path when path is not
// empty, then applies PEOPLEFINDER_* environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TimeoutFor returns the effective timeout of a backend by name: its own
// setting when present, otherwise the shared default.
func (c *Config) TimeoutFor(backend string) time.Duration {
	var t time.Duration
	switch backend {
	case "directory":
		t = c.Backends.Directory.Timeout
	case "graph":
		t = c.Backends.Graph.Timeout
	case "contactcenter":
		t = c.Backends.ContactCenter.Timeout
	case "profile":
		t = c.Backends.Profile.Timeout
	}
	if t <= 0 {
		return c.Search.BackendTimeout
	}
	return t
}

// EnabledBackends lists enabled backend names in registration order.
func (c *Config) EnabledBackends() []string {
	var names []string
	if c.Backends.Directory.Enabled {
		names = append(names, "directory")
	}
	if c.Backends.Graph.Enabled {
		names = append(names, "graph")
	}
	if c.Backends.ContactCenter.Enabled {
		names = append(names, "contactcenter")
	}
	if c.Backends.Profile.Enabled {
		names = append(names, "profile")
	}
	return names
}

// tokenBackends lists enabled backends that acquire OAuth tokens per call.
func (c *Config) tokenBackends() []string {
	var names []string
	if c.Backends.Graph.Enabled {
		names = append(names, "graph")
	}
	if c.Backends.ContactCenter.Enabled {
		names = append(names, "contactcenter")
	}
	return names
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Search.OverallTimeout <= 0 {
		add("search.overall_timeout must be positive")
	}
	if c.Search.BackendTimeout <= 0 {
		add("search.backend_timeout must be positive")
	}
	for _, name := range c.EnabledBackends() {
		if t := c.TimeoutFor(name); t > c.Search.OverallTimeout {
			add("%s timeout %s exceeds overall timeout %s", name, t, c.Search.OverallTimeout)
		}
	}
	for _, name := range c.tokenBackends() {
		if t := c.TimeoutFor(name); c.Tokens.AcquisitionTimeout >= t {
			add("tokens.acquisition_timeout %s must be shorter than %s timeout %s", c.Tokens.AcquisitionTimeout, name, t)
		}
	}
	if c.Search.CircuitBreaker.FailureThreshold < 0 {
		add("search.circuit_breaker.failure_threshold must not be negative")
	}

	if d := c.Backends.Directory; d.Enabled {
		if d.URL == "" {
			add("backends.directory.url is required")
		}
		if d.BaseDN == "" {
			add("backends.directory.base_dn is required")
		}
	}
	if g := c.Backends.Graph; g.Enabled {
		if g.BaseURL == "" {
			add("backends.graph.base_url is required")
		}
		errs = append(errs, g.OAuth.validate("backends.graph.oauth")...)
	}
	if cc := c.Backends.ContactCenter; cc.Enabled {
		if cc.BaseURL == "" {
			add("backends.contact_center.base_url is required")
		}
		errs = append(errs, cc.OAuth.validate("backends.contact_center.oauth")...)
	}
	if p := c.Backends.Profile; p.Enabled && p.DSN == "" {
		add("backends.profile.dsn is required")
	}

	switch c.Tokens.Store {
	case TokenStoreMemory:
	case TokenStoreRedis:
		if c.Redis.URL == "" {
			add("redis.url is required for the redis token store")
		}
	case TokenStorePostgres:
		if c.Tokens.DSN == "" {
			add("tokens.dsn is required for the postgres token store")
		}
	default:
		add("unknown token store %q", c.Tokens.Store)
	}

	switch c.Audit.Sink {
	case AuditSinkLog, AuditSinkMemory:
	case AuditSinkKafka:
		if len(c.Audit.Brokers) == 0 || c.Audit.Topic == "" {
			add("audit.brokers and audit.topic are required for the kafka sink")
		}
	case AuditSinkPostgres:
		if c.Audit.DSN == "" {
			add("audit.dsn is required for the postgres sink")
		}
	default:
		add("unknown audit sink %q", c.Audit.Sink)
	}

	if !slices.Contains([]string{"json", "text"}, c.Log.Format) {
		add("unknown log format %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

func (o OAuth) validate(path string) []error {
	var errs []error
	if o.ClientID == "" {
		errs = append(errs, fmt.Errorf("%s.client_id is required", path))
	}
	if o.ClientSecret == "" {
		errs = append(errs, fmt.Errorf("%s.client_secret is required", path))
	}
	if o.TokenURL == "" {
		errs = append(errs, fmt.Errorf("%s.token_url is required", path))
	}
	return errs
}
