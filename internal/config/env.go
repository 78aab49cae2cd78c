package config

import (
	"os"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration.
// All env vars use QIUPAY_ prefix for namespace isolation.
func (c *Config) applyEnvOverrides() {
	setIfEnv(&c.Server.Address, "QIUPAY_SERVER_ADDRESS")
	setIfEnv(&c.Server.RoutePrefix, "QIUPAY_ROUTE_PREFIX")
	setIfEnv(&c.Server.AdminMetricsAPIKey, "QIUPAY_ADMIN_METRICS_API_KEY")
	if c.Server.RoutePrefix != "" {
		c.Server.RoutePrefix = normalizeRoutePrefix(c.Server.RoutePrefix)
	}

	setIfEnv(&c.Logging.Level, "QIUPAY_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "QIUPAY_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "QIUPAY_ENVIRONMENT")

	setIfEnv(&c.Storage.Backend, "QIUPAY_STORAGE_BACKEND")
	setIfEnv(&c.Storage.PostgresURL, "QIUPAY_POSTGRES_URL")
	setIfEnv(&c.Storage.MongoDBURL, "QIUPAY_MONGODB_URL")
	setIfEnv(&c.Storage.MongoDBDatabase, "QIUPAY_MONGODB_DATABASE")

	setIfEnv(&c.Wallet.GatewayURL, "QIUPAY_WALLET_GATEWAY_URL")
	setIfEnv(&c.Wallet.SignType, "QIUPAY_WALLET_SIGN_TYPE")
	setDurationIfEnv(&c.Wallet.Timeout, "QIUPAY_WALLET_TIMEOUT")
	// The master key used to decrypt credential private keys at rest is
	// deliberately env-only: it must never be committed to a YAML file.
	setIfEnv(&c.Wallet.EncryptionKey, "QIUPAY_CREDENTIAL_ENCRYPTION_KEY")

	setDurationIfEnv(&c.Orders.ExpireAfter, "QIUPAY_ORDERS_EXPIRE_AFTER")
	setDurationIfEnv(&c.Orders.ExpireSweep, "QIUPAY_ORDERS_EXPIRE_SWEEP")

	setDurationIfEnv(&c.Poller.Interval, "QIUPAY_POLLER_INTERVAL")
	setDurationIfEnv(&c.Poller.Duration, "QIUPAY_POLLER_DURATION")

	setIfEnv(&c.Reconciler.DistributedLockURL, "QIUPAY_RECONCILER_DISTRIBUTED_LOCK_URL")

	setDurationIfEnv(&c.Callbacks.Timeout, "QIUPAY_CALLBACKS_TIMEOUT")
	setDurationIfEnv(&c.Callbacks.ScanInterval, "QIUPAY_CALLBACKS_SCAN_INTERVAL")
	setBoolIfEnv(&c.Callbacks.DLQEnabled, "QIUPAY_CALLBACKS_DLQ_ENABLED")
	setIfEnv(&c.Callbacks.DLQPath, "QIUPAY_CALLBACKS_DLQ_PATH")

	setBoolIfEnv(&c.RateLimit.PerMerchantEnabled, "QIUPAY_RATE_LIMIT_PER_MERCHANT_ENABLED")
	setBoolIfEnv(&c.RateLimit.PerIPEnabled, "QIUPAY_RATE_LIMIT_PER_IP_ENABLED")

	setBoolIfEnv(&c.CircuitBreaker.Enabled, "QIUPAY_CIRCUIT_BREAKER_ENABLED")
}

// setIfEnv sets a string pointer to the environment variable value if it exists.
func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setBoolIfEnv sets a boolean pointer from an environment variable.
// Accepts "1", "true", "TRUE", "True" as true values.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

// setDurationIfEnv sets a Duration pointer from an environment variable.
// Uses time.ParseDuration to parse values like "5m", "120s", "1h30m".
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}

// normalizeRoutePrefix ensures the prefix starts with / and doesn't end with /.
// Examples: "api" -> "/api", "/api/" -> "/api", "pay" -> "/pay"
func normalizeRoutePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return prefix
}
