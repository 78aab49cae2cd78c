package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/qiupay/gateway/internal/config"
)

// TestAppWiringAndHealthz exercises the full wiring path New performs —
// storage, credential encryptor, observability hooks, order engine,
// reconciler, poller, callback engine/scanner — and confirms the resulting
// handler serves a basic request. Only one App is constructed in this test
// binary since New registers its metrics against prometheus.DefaultRegisterer,
// and a second registration would panic on duplicate collectors.
func TestAppWiringAndHealthz(t *testing.T) {
	cfg := mustDefaultConfig(t)
	cfg.Wallet.EncryptionKey = "test-master-secret-for-wiring-test"

	app, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	handler := app.Handler()
	if handler == nil {
		t.Fatal("Handler() returned nil")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}
}

func mustDefaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load(\"\") error = %v", err)
	}
	return cfg
}
