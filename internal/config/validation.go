package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// finalize applies defaults and validates the configuration.
func (c *Config) finalize() error {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "production"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Wallet.SignType == "" {
		c.Wallet.SignType = "RSA2"
	}
	if c.Wallet.Charset == "" {
		c.Wallet.Charset = "utf-8"
	}
	if c.Wallet.Timeout.Duration <= 0 {
		c.Wallet.Timeout = Duration{Duration: 10 * time.Second}
	}
	if c.Orders.ExpireAfter.Duration <= 0 {
		c.Orders.ExpireAfter = Duration{Duration: 10 * time.Minute}
	}
	if c.Orders.ExpireSweep.Duration <= 0 {
		c.Orders.ExpireSweep = Duration{Duration: 60 * time.Second}
	}
	if c.Orders.MaxAdjustSteps <= 0 {
		c.Orders.MaxAdjustSteps = 100
	}
	if c.Orders.TradeNoRetries <= 0 {
		c.Orders.TradeNoRetries = 10
	}
	if c.Poller.Interval.Duration <= 0 {
		c.Poller.Interval = Duration{Duration: time.Second}
	}
	if c.Poller.Duration.Duration <= 0 {
		c.Poller.Duration = Duration{Duration: 600 * time.Second}
	}
	if c.Reconciler.ConsecutiveFailureWarnThreshold <= 0 {
		c.Reconciler.ConsecutiveFailureWarnThreshold = 3
	}
	if c.Callbacks.Timeout.Duration <= 0 {
		c.Callbacks.Timeout = Duration{Duration: 10 * time.Second}
	}
	if c.Callbacks.ScanInterval.Duration <= 0 {
		c.Callbacks.ScanInterval = Duration{Duration: 15 * time.Second}
	}
	// Spec bounds the retry-decision scan cadence at <=30s.
	if c.Callbacks.ScanInterval.Duration > 30*time.Second {
		c.Callbacks.ScanInterval = Duration{Duration: 30 * time.Second}
	}
	if len(c.Callbacks.RetrySchedule) == 0 {
		c.Callbacks.RetrySchedule = []Duration{
			{Duration: 5 * time.Second},
			{Duration: 30 * time.Second},
			{Duration: 60 * time.Second},
			{Duration: 300 * time.Second},
			{Duration: 1800 * time.Second},
		}
	}

	switch c.Storage.Backend {
	case "", "memory":
		c.Storage.Backend = "memory"
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return errors.New("config: storage.postgres_url is required when storage.backend=postgres")
		}
		if _, err := url.Parse(c.Storage.PostgresURL); err != nil {
			return fmt.Errorf("config: invalid storage.postgres_url: %w", err)
		}
	case "mongodb":
		if c.Storage.MongoDBURL == "" {
			return errors.New("config: storage.mongodb_url is required when storage.backend=mongodb")
		}
		if c.Storage.MongoDBDatabase == "" {
			c.Storage.MongoDBDatabase = "qiupay"
		}
	default:
		return fmt.Errorf("config: unknown storage.backend %q", c.Storage.Backend)
	}

	return nil
}
