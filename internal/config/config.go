package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := cfg.parseFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  Duration{Duration: 15 * time.Second},
			WriteTimeout: Duration{Duration: 15 * time.Second},
			IdleTimeout:  Duration{Duration: 60 * time.Second},
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Environment: "production",
		},
		Storage: StorageConfig{
			Backend: "memory",
			Archival: ArchivalConfig{
				Enabled:         false,
				RetentionPeriod: Duration{Duration: 90 * 24 * time.Hour},
				RunInterval:     Duration{Duration: 24 * time.Hour},
			},
		},
		Wallet: WalletConfig{
			SignType: "RSA2",
			Charset:  "utf-8",
			Version:  "1.0",
			Timeout:  Duration{Duration: 10 * time.Second},
		},
		Orders: OrdersConfig{
			ExpireAfter:    Duration{Duration: 10 * time.Minute},
			ExpireSweep:    Duration{Duration: 60 * time.Second},
			MaxAdjustSteps: 100,
			TradeNoRetries: 10,
		},
		Poller: PollerConfig{
			Interval: Duration{Duration: 1 * time.Second},
			Duration: Duration{Duration: 600 * time.Second},
		},
		Reconciler: ReconcilerConfig{
			ConsecutiveFailureWarnThreshold: 3,
		},
		Callbacks: CallbacksConfig{
			Timeout:      Duration{Duration: 10 * time.Second},
			ScanInterval: Duration{Duration: 15 * time.Second},
			RetrySchedule: []Duration{
				{Duration: 5 * time.Second},
				{Duration: 30 * time.Second},
				{Duration: 60 * time.Second},
				{Duration: 300 * time.Second},
				{Duration: 1800 * time.Second},
			},
			DLQEnabled: false,
			DLQPath:    "./data/callback-dlq.json",
		},
		RateLimit: RateLimitConfig{
			PerMerchantEnabled: true,
			PerMerchantLimit:   30,
			PerMerchantWindow:  Duration{Duration: time.Minute},
			PerIPEnabled:       true,
			PerIPLimit:         60,
			PerIPWindow:        Duration{Duration: time.Minute},
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled: true,
			Wallet: BreakerServiceConfig{
				MaxRequests:         3,
				Interval:            Duration{Duration: 60 * time.Second},
				Timeout:             Duration{Duration: 30 * time.Second},
				ConsecutiveFailures: 5,
				FailureRatio:        0.5,
				MinRequests:         10,
			},
			Webhook: BreakerServiceConfig{
				MaxRequests:         5,
				Interval:            Duration{Duration: 60 * time.Second},
				Timeout:             Duration{Duration: 60 * time.Second},
				ConsecutiveFailures: 10,
				FailureRatio:        0.7,
				MinRequests:         20,
			},
		},
	}
}

// parseFile reads and unmarshals a YAML configuration file.
func (c *Config) parseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

// ApplyPostgresPoolSettings configures sql.DB connection pool limits.
func ApplyPostgresPoolSettings(db interface {
	SetMaxOpenConns(int)
	SetMaxIdleConns(int)
	SetConnMaxLifetime(time.Duration)
}, cfg PostgresPoolConfig) {
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	lifetime := cfg.ConnMaxLifetime.Duration
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)
}
