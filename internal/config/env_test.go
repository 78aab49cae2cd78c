package config

import (
	"os"
	"testing"
	"time"
)

func TestEnvOverrides_ServerConfig(t *testing.T) {
	defer os.Clearenv()

	tests := []struct {
		name      string
		envVars   map[string]string
		checkFunc func(*testing.T, *Config)
	}{
		{
			name: "QIUPAY_SERVER_ADDRESS overrides default",
			envVars: map[string]string{
				"QIUPAY_SERVER_ADDRESS": ":3000",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Server.Address != ":3000" {
					t.Errorf("Expected :3000, got %s", cfg.Server.Address)
				}
			},
		},
		{
			name: "QIUPAY_ROUTE_PREFIX is normalized",
			envVars: map[string]string{
				"QIUPAY_ROUTE_PREFIX": "api/",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Server.RoutePrefix != "/api" {
					t.Errorf("Expected /api, got %s", cfg.Server.RoutePrefix)
				}
			},
		},
		{
			name: "QIUPAY_ADMIN_METRICS_API_KEY override",
			envVars: map[string]string{
				"QIUPAY_ADMIN_METRICS_API_KEY": "secret-key",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Server.AdminMetricsAPIKey != "secret-key" {
					t.Errorf("Expected secret-key, got %s", cfg.Server.AdminMetricsAPIKey)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg := defaultConfig()
			cfg.applyEnvOverrides()
			tt.checkFunc(t, cfg)
		})
	}
}

func TestEnvOverrides_StorageConfig(t *testing.T) {
	defer os.Clearenv()

	os.Clearenv()
	os.Setenv("QIUPAY_STORAGE_BACKEND", "postgres")
	os.Setenv("QIUPAY_POSTGRES_URL", "postgres://localhost/qiupay")
	os.Setenv("QIUPAY_MONGODB_URL", "mongodb://localhost/qiupay")
	os.Setenv("QIUPAY_MONGODB_DATABASE", "qiupay_test")

	cfg := defaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Storage.Backend != "postgres" {
		t.Errorf("Storage.Backend = %q, want postgres", cfg.Storage.Backend)
	}
	if cfg.Storage.PostgresURL != "postgres://localhost/qiupay" {
		t.Errorf("Storage.PostgresURL = %q, want postgres://localhost/qiupay", cfg.Storage.PostgresURL)
	}
	if cfg.Storage.MongoDBURL != "mongodb://localhost/qiupay" {
		t.Errorf("Storage.MongoDBURL = %q, want mongodb://localhost/qiupay", cfg.Storage.MongoDBURL)
	}
	if cfg.Storage.MongoDBDatabase != "qiupay_test" {
		t.Errorf("Storage.MongoDBDatabase = %q, want qiupay_test", cfg.Storage.MongoDBDatabase)
	}
}

func TestEnvOverrides_WalletConfig(t *testing.T) {
	defer os.Clearenv()
	os.Clearenv()
	os.Setenv("QIUPAY_WALLET_GATEWAY_URL", "https://wallet.example.com/gateway.do")
	os.Setenv("QIUPAY_WALLET_SIGN_TYPE", "RSA2")
	os.Setenv("QIUPAY_WALLET_TIMEOUT", "5s")
	os.Setenv("QIUPAY_CREDENTIAL_ENCRYPTION_KEY", "master-secret")

	cfg := defaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Wallet.GatewayURL != "https://wallet.example.com/gateway.do" {
		t.Errorf("Wallet.GatewayURL = %q", cfg.Wallet.GatewayURL)
	}
	if cfg.Wallet.Timeout.Duration != 5*time.Second {
		t.Errorf("Wallet.Timeout = %v, want 5s", cfg.Wallet.Timeout.Duration)
	}
	if cfg.Wallet.EncryptionKey != "master-secret" {
		t.Errorf("Wallet.EncryptionKey = %q", cfg.Wallet.EncryptionKey)
	}
}

func TestEnvOverrides_OrdersAndPollerConfig(t *testing.T) {
	defer os.Clearenv()
	os.Clearenv()
	os.Setenv("QIUPAY_ORDERS_EXPIRE_AFTER", "15m")
	os.Setenv("QIUPAY_ORDERS_EXPIRE_SWEEP", "30s")
	os.Setenv("QIUPAY_POLLER_INTERVAL", "2s")
	os.Setenv("QIUPAY_POLLER_DURATION", "120s")

	cfg := defaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Orders.ExpireAfter.Duration != 15*time.Minute {
		t.Errorf("Orders.ExpireAfter = %v, want 15m", cfg.Orders.ExpireAfter.Duration)
	}
	if cfg.Orders.ExpireSweep.Duration != 30*time.Second {
		t.Errorf("Orders.ExpireSweep = %v, want 30s", cfg.Orders.ExpireSweep.Duration)
	}
	if cfg.Poller.Interval.Duration != 2*time.Second {
		t.Errorf("Poller.Interval = %v, want 2s", cfg.Poller.Interval.Duration)
	}
	if cfg.Poller.Duration.Duration != 120*time.Second {
		t.Errorf("Poller.Duration = %v, want 120s", cfg.Poller.Duration.Duration)
	}
}

func TestEnvOverrides_ReconcilerDistributedLock(t *testing.T) {
	defer os.Clearenv()
	os.Clearenv()
	os.Setenv("QIUPAY_RECONCILER_DISTRIBUTED_LOCK_URL", "redis://localhost:6379/0")

	cfg := defaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Reconciler.DistributedLockURL != "redis://localhost:6379/0" {
		t.Errorf("Reconciler.DistributedLockURL = %q", cfg.Reconciler.DistributedLockURL)
	}
}

func TestEnvOverrides_CallbacksConfig(t *testing.T) {
	defer os.Clearenv()
	os.Clearenv()
	os.Setenv("QIUPAY_CALLBACKS_TIMEOUT", "20s")
	os.Setenv("QIUPAY_CALLBACKS_SCAN_INTERVAL", "10s")
	os.Setenv("QIUPAY_CALLBACKS_DLQ_ENABLED", "true")
	os.Setenv("QIUPAY_CALLBACKS_DLQ_PATH", "/tmp/dlq.json")

	cfg := defaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Callbacks.Timeout.Duration != 20*time.Second {
		t.Errorf("Callbacks.Timeout = %v, want 20s", cfg.Callbacks.Timeout.Duration)
	}
	if cfg.Callbacks.ScanInterval.Duration != 10*time.Second {
		t.Errorf("Callbacks.ScanInterval = %v, want 10s", cfg.Callbacks.ScanInterval.Duration)
	}
	if !cfg.Callbacks.DLQEnabled {
		t.Error("Callbacks.DLQEnabled = false, want true")
	}
	if cfg.Callbacks.DLQPath != "/tmp/dlq.json" {
		t.Errorf("Callbacks.DLQPath = %q", cfg.Callbacks.DLQPath)
	}
}

func TestEnvOverrides_RateLimitAndCircuitBreaker(t *testing.T) {
	defer os.Clearenv()
	os.Clearenv()
	os.Setenv("QIUPAY_RATE_LIMIT_PER_MERCHANT_ENABLED", "false")
	os.Setenv("QIUPAY_RATE_LIMIT_PER_IP_ENABLED", "0")
	os.Setenv("QIUPAY_CIRCUIT_BREAKER_ENABLED", "false")

	cfg := defaultConfig()
	cfg.applyEnvOverrides()

	if cfg.RateLimit.PerMerchantEnabled {
		t.Error("RateLimit.PerMerchantEnabled = true, want false")
	}
	if cfg.RateLimit.PerIPEnabled {
		t.Error("RateLimit.PerIPEnabled = true, want false")
	}
	if cfg.CircuitBreaker.Enabled {
		t.Error("CircuitBreaker.Enabled = true, want false")
	}
}

func TestNormalizeRoutePrefixAppliedDuringEnvOverride(t *testing.T) {
	defer os.Clearenv()
	os.Clearenv()
	os.Setenv("QIUPAY_ROUTE_PREFIX", "  pay  ")

	cfg := defaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Server.RoutePrefix != "/pay" {
		t.Errorf("Server.RoutePrefix = %q, want /pay", cfg.Server.RoutePrefix)
	}
}
