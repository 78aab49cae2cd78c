package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.PerMerchantEnabled {
		t.Error("Expected per-merchant rate limiting to be enabled by default")
	}
	if cfg.PerMerchantLimit != 60 {
		t.Errorf("Expected per-merchant limit 60, got %d", cfg.PerMerchantLimit)
	}
	if !cfg.PerIPEnabled {
		t.Error("Expected per-IP rate limiting to be enabled by default")
	}
}

func TestMerchantLimiter_Disabled(t *testing.T) {
	cfg := Config{PerMerchantEnabled: false}
	limiter := MerchantLimiter(cfg)

	handler := limiter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 100; i++ {
		req := httptest.NewRequest("GET", "/test?pid=m1", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Request %d: expected 200, got %d", i, w.Code)
		}
	}
}

func TestMerchantLimiter_PerMerchantLimit(t *testing.T) {
	cfg := Config{
		PerMerchantEnabled: true,
		PerMerchantLimit:   3,
		PerMerchantWindow:  1 * time.Second,
		PerMerchantBurst:   1,
	}
	limiter := MerchantLimiter(cfg)

	handler := limiter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/test?pid=merchant1", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("merchant1 request %d: expected 200, got %d", i, w.Code)
		}
	}

	req := httptest.NewRequest("GET", "/test?pid=merchant1", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("merchant1: expected 429 after limit, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/test?pid=merchant2", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("merchant2: expected 200, got %d", w.Code)
	}
}

func TestMerchantLimiter_FallbackToIP(t *testing.T) {
	cfg := Config{
		PerMerchantEnabled: true,
		PerMerchantLimit:   3,
		PerMerchantWindow:  1 * time.Second,
		PerMerchantBurst:   1,
	}
	limiter := MerchantLimiter(cfg)

	handler := limiter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Request %d: expected 200, got %d", i, w.Code)
		}
	}

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after IP limit, got %d", w.Code)
	}
}

func TestExtractMerchantPID(t *testing.T) {
	tests := []struct {
		name        string
		setupReq    func() *http.Request
		expectedPID string
	}{
		{
			name: "query parameter",
			setupReq: func() *http.Request {
				return httptest.NewRequest("GET", "/test?pid=FromQuery", nil)
			},
			expectedPID: "FromQuery",
		},
		{
			name: "form-encoded POST body",
			setupReq: func() *http.Request {
				req := httptest.NewRequest("POST", "/test", strings.NewReader(url.Values{"pid": {"FromBody"}}.Encode()))
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				return req
			},
			expectedPID: "FromBody",
		},
		{
			name: "no pid present",
			setupReq: func() *http.Request {
				return httptest.NewRequest("GET", "/test", nil)
			},
			expectedPID: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pid := extractMerchantPID(tt.setupReq())
			if pid != tt.expectedPID {
				t.Errorf("expected pid %q, got %q", tt.expectedPID, pid)
			}
		})
	}
}

func TestIPLimiter_EnforcesLimit(t *testing.T) {
	cfg := Config{
		PerIPEnabled: true,
		PerIPLimit:   3,
		PerIPWindow:  1 * time.Second,
		PerIPBurst:   1,
	}
	limiter := IPLimiter(cfg)

	handler := limiter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	ip := "192.168.1.100:54321"

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = ip
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Request %d: expected 200, got %d", i, w.Code)
		}
	}

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = ip
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after IP limit, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "192.168.1.101:54321"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Different IP: Expected 200, got %d", w.Code)
	}
}
