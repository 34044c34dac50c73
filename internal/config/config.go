package config

import (
	"sort"
	"time"

	"github.com/stevedore/stevedore/internal/core"
)

// Config represents the complete application configuration
// following the Fulmen Forge Workhorse Standard three-layer pattern:
// Layer 1: Crucible defaults (config/stevedore/v0/stevedore-defaults.yaml)
// Layer 2: User overrides (~/.config/stevedore/stevedore/config.yaml)
// Layer 3: Environment variables and runtime overrides
type Config struct {
	Server    ServerConfig             `mapstructure:"server"`
	Store     StoreConfig              `mapstructure:"store"`
	Backends  map[string]BackendConfig `mapstructure:"backends"`
	RateLimit RateLimitConfig          `mapstructure:"rate_limit"`
	Health    HealthConfig             `mapstructure:"health"`
	Ingest    IngestConfig             `mapstructure:"ingest"`
	Logging   LoggingConfig            `mapstructure:"logging"`
	Metrics   MetricsConfig            `mapstructure:"metrics"`
	Debug     DebugConfig              `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// BackendConfig describes one configured storage backend, keyed by its ID
// in the backends map.
type BackendConfig struct {
	ID   string           `mapstructure:"-"`
	Name string           `mapstructure:"name"`
	Type core.BackendType `mapstructure:"type"`

	// localfs
	Root string `mapstructure:"root"`

	// s3
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Secure    bool   `mapstructure:"secure"`
}

// RateLimitConfig contains admission-control settings for backend calls.
type RateLimitConfig struct {
	Strategy          string        `mapstructure:"strategy"`
	MaxRequests       int           `mapstructure:"max_requests"`
	Window            time.Duration `mapstructure:"window"`
	BurstSize         int           `mapstructure:"burst_size"`
	RetryAfter        time.Duration `mapstructure:"retry_after"`
	EnableBackoff     bool          `mapstructure:"enable_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	MaxBackoffDelay   time.Duration `mapstructure:"max_backoff_delay"`
}

// HealthConfig contains backend health monitoring configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints and the probe loop are active
	Enabled bool `mapstructure:"enabled"`

	// Interval is the monitoring probe cadence
	Interval time.Duration `mapstructure:"interval"`

	// TrendWindow is the default lookback for trend queries
	TrendWindow time.Duration `mapstructure:"trend_window"`
}

// IngestConfig contains bulk ingestion defaults.
type IngestConfig struct {
	// Concurrency is the default upload worker ceiling
	Concurrency int `mapstructure:"concurrency"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles per Fulmen Forge Workhorse Standard:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
// - ENTERPRISE: Multiple sinks, middleware, throttling, policy enforcement (production)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	// See: gofulmen/docs/crucible-go/standards/observability/logging.md
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	// Metrics are also available at the main HTTP port in JSON format
	Port int `mapstructure:"port"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	// Enabled controls whether debug mode is active
	Enabled bool `mapstructure:"enabled"`

	// PprofEnabled controls whether pprof endpoints are exposed
	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}

// OrderedBackends returns the configured backends sorted by ID, with the
// map key filled into each entry's ID field.
func (c *Config) OrderedBackends() []BackendConfig {
	if c == nil || len(c.Backends) == 0 {
		return nil
	}
	out := make([]BackendConfig, 0, len(c.Backends))
	for id, b := range c.Backends {
		b.ID = id
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Backend looks up one backend config by ID.
func (c *Config) Backend(id string) (BackendConfig, bool) {
	if c == nil {
		return BackendConfig{}, false
	}
	b, ok := c.Backends[id]
	if !ok {
		return BackendConfig{}, false
	}
	b.ID = id
	return b, true
}
