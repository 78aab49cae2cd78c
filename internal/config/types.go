package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Storage        StorageConfig        `yaml:"storage"`
	Wallet         WalletConfig         `yaml:"wallet"`
	Orders         OrdersConfig         `yaml:"orders"`
	Poller         PollerConfig         `yaml:"poller"`
	Reconciler     ReconcilerConfig     `yaml:"reconciler"`
	Callbacks      CallbacksConfig      `yaml:"callbacks"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	RoutePrefix        string   `yaml:"route_prefix"`
	AdminMetricsAPIKey string   `yaml:"admin_metrics_api_key"`
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Environment string `yaml:"environment"`
}

// PostgresPoolConfig holds PostgreSQL connection pool settings.
type PostgresPoolConfig struct {
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// SchemaMappingConfig holds table/collection name overrides for the gateway's entities.
type SchemaMappingConfig struct {
	Merchants    TableMappingConfig `yaml:"merchants"`
	Credentials  TableMappingConfig `yaml:"credentials"`
	Orders       TableMappingConfig `yaml:"orders"`
	CallbackLogs TableMappingConfig `yaml:"callback_logs"`
	BalanceLogs  TableMappingConfig `yaml:"balance_logs"`
}

// TableMappingConfig defines a single table/collection mapping.
type TableMappingConfig struct {
	TableName string `yaml:"table_name"`
}

// StorageConfig holds storage backend configuration.
type StorageConfig struct {
	Backend         string              `yaml:"backend"` // "memory", "postgres", or "mongodb"
	PostgresURL     string              `yaml:"postgres_url"`
	MongoDBURL      string              `yaml:"mongodb_url"`
	MongoDBDatabase string              `yaml:"mongodb_database"`
	PostgresPool    PostgresPoolConfig  `yaml:"postgres_pool"`
	SchemaMapping   SchemaMappingConfig `yaml:"schema_mapping"`
	Archival        ArchivalConfig      `yaml:"archival"`
}

// ArchivalConfig holds retention settings for terminal orders/logs.
type ArchivalConfig struct {
	Enabled         bool     `yaml:"enabled"`
	RetentionPeriod Duration `yaml:"retention_period"`
	RunInterval     Duration `yaml:"run_interval"`
}

// WalletConfig holds defaults for outbound calls to operator wallet gateways.
// Per-credential RSA keys and app ids live in the Credential entity; this
// section only carries cross-credential defaults.
type WalletConfig struct {
	GatewayURL    string   `yaml:"gateway_url"`    // Default wallet gateway endpoint (balance.query)
	SignType      string   `yaml:"sign_type"`      // "RSA2" (only supported scheme)
	Charset       string   `yaml:"charset"`        // "utf-8"
	Version       string   `yaml:"version"`        // wallet protocol version, e.g. "1.0"
	Timeout       Duration `yaml:"timeout"`        // HTTP timeout for wallet calls (default 10s)
	EncryptionKey string   `yaml:"-"`              // master secret for credential-at-rest encryption, env only
}

// OrdersConfig controls the order engine.
type OrdersConfig struct {
	ExpireAfter     Duration `yaml:"expire_after"`      // PENDING -> EXPIRED threshold (default 10m)
	ExpireSweep     Duration `yaml:"expire_sweep"`       // how often ExpireSweep runs (default 60s)
	MaxAdjustSteps  int      `yaml:"max_adjust_steps"`   // amount ladder width (default 100)
	TradeNoRetries  int      `yaml:"trade_no_retries"`   // collision retries (default 10)
}

// PollerConfig controls the per-order polling loop.
type PollerConfig struct {
	Interval Duration `yaml:"interval"` // query cadence (default 1s)
	Duration Duration `yaml:"duration"` // total poll lifetime (default 600s)
}

// ReconcilerConfig controls the balance-delta matcher.
type ReconcilerConfig struct {
	ConsecutiveFailureWarnThreshold int `yaml:"consecutive_failure_warn_threshold"` // default 3
	// DistributedLockURL, if set, switches the reconciler's per-credential
	// match/rebase critical section from an in-process mutex registry to a
	// Redis-backed advisory lock (SET NX PX), letting multiple gateway
	// instances serialize reconciliation on the same credential. Empty
	// disables it and keeps the in-process registry.
	DistributedLockURL string `yaml:"distributed_lock_url"`
}

// CallbacksConfig holds webhook callback configuration.
type CallbacksConfig struct {
	Timeout      Duration      `yaml:"timeout"`       // per-attempt HTTP timeout (default 10s)
	ScanInterval Duration      `yaml:"scan_interval"` // retry-decision scan cadence (default 15s, spec bounds <=30s)
	RetrySchedule []Duration   `yaml:"retry_schedule"` // defaults to [5s,30s,60s,300s,1800s]
	DLQEnabled   bool          `yaml:"dlq_enabled"`
	DLQPath      string        `yaml:"dlq_path"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	PerMerchantEnabled bool     `yaml:"per_merchant_enabled"`
	PerMerchantLimit   int      `yaml:"per_merchant_limit"`
	PerMerchantWindow  Duration `yaml:"per_merchant_window"`

	PerIPEnabled bool     `yaml:"per_ip_enabled"`
	PerIPLimit   int      `yaml:"per_ip_limit"`
	PerIPWindow  Duration `yaml:"per_ip_window"`
}

// CircuitBreakerConfig holds circuit breaker configuration for external services.
type CircuitBreakerConfig struct {
	Enabled bool                 `yaml:"enabled"`
	Wallet  BreakerServiceConfig `yaml:"wallet"`
	Webhook BreakerServiceConfig `yaml:"webhook"`
}

// BreakerServiceConfig configures a circuit breaker for a specific external service.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`
	Interval            Duration `yaml:"interval"`
	Timeout             Duration `yaml:"timeout"`
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"`
	FailureRatio        float64  `yaml:"failure_ratio"`
	MinRequests         uint32   `yaml:"min_requests"`
}
