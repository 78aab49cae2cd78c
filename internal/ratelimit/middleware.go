package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/qiupay/gateway/internal/metrics"
)

// Config holds rate limiting configuration.
type Config struct {
	// Per-merchant rate limiting (identified by the "pid" form/query field).
	PerMerchantEnabled bool
	PerMerchantLimit   int
	PerMerchantWindow  time.Duration
	PerMerchantBurst   int

	// Per-IP rate limiting (fallback when pid is absent or unrecognized).
	PerIPEnabled bool
	PerIPLimit   int
	PerIPWindow  time.Duration
	PerIPBurst   int

	// Metrics collector (optional).
	Metrics *metrics.Metrics
}

// rateLimitResponse is the JSON error body for a rate-limited request.
type rateLimitResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// DefaultConfig returns sensible default limits: generous enough not to
// bother a well-behaved merchant, tight enough to blunt obvious spam
// against /pay/create.
func DefaultConfig() Config {
	return Config{
		PerMerchantEnabled: true,
		PerMerchantLimit:   60,
		PerMerchantWindow:  time.Minute,
		PerMerchantBurst:   10,

		PerIPEnabled: true,
		PerIPLimit:   120,
		PerIPWindow:  time.Minute,
		PerIPBurst:   20,
	}
}

func createRateLimitHandler(
	limitType string,
	windowSeconds int,
	extractIdentifier func(*http.Request) string,
	metricsCollector *metrics.Metrics,
) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		identifier := "all"
		if extractIdentifier != nil {
			if id := extractIdentifier(r); id != "" {
				identifier = id
			}
		}

		if metricsCollector != nil {
			metricsCollector.ObserveRateLimit(limitType, identifier)
		}

		var message string
		switch limitType {
		case "per_merchant":
			if identifier != "" && identifier != "all" {
				message = fmt.Sprintf("Rate limit exceeded for merchant %s. Please try again later.", identifier)
			} else {
				message = "Rate limit exceeded. Please try again later."
			}
		case "per_ip":
			message = "IP rate limit exceeded. Please try again later."
		default:
			message = "Rate limit exceeded. Please try again later."
		}

		response := rateLimitResponse{
			Error:             "rate_limit_exceeded",
			Message:           message,
			RetryAfterSeconds: windowSeconds,
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", fmt.Sprintf("%d", windowSeconds))
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(response)
	}
}

// MerchantLimiter creates a per-merchant (pid) rate limiter middleware,
// falling back to per-IP keying when pid cannot be extracted.
func MerchantLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.PerMerchantEnabled {
		return func(next http.Handler) http.Handler { return next }
	}

	return httprate.Limit(
		cfg.PerMerchantLimit,
		cfg.PerMerchantWindow,
		httprate.WithKeyFuncs(merchantKeyExtractor),
		httprate.WithLimitHandler(
			createRateLimitHandler("per_merchant", int(cfg.PerMerchantWindow.Seconds()), extractMerchantPID, cfg.Metrics),
		),
	)
}

// IPLimiter creates a per-IP rate limiter middleware (fallback).
func IPLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.PerIPEnabled {
		return func(next http.Handler) http.Handler { return next }
	}

	return httprate.Limit(
		cfg.PerIPLimit,
		cfg.PerIPWindow,
		httprate.WithKeyByIP(),
		httprate.WithLimitHandler(
			createRateLimitHandler("per_ip", int(cfg.PerIPWindow.Seconds()), func(r *http.Request) string { return r.RemoteAddr }, cfg.Metrics),
		),
	)
}

// merchantKeyExtractor is an httprate.KeyFunc keying by the request's pid,
// falling back to IP-based limiting when pid is absent (a request with no
// pid will also fail signature verification downstream, but rate limiting
// runs before that check to stay cheap).
func merchantKeyExtractor(r *http.Request) (string, error) {
	if pid := extractMerchantPID(r); pid != "" {
		return "merchant:" + pid, nil
	}
	return httprate.KeyByIP(r)
}

// extractMerchantPID reads the "pid" field from the query string or, for
// form-encoded POSTs, the request body — without consuming the body for
// downstream handlers, since ParseForm caches r.Form/r.PostForm for reuse.
func extractMerchantPID(r *http.Request) string {
	if pid := r.URL.Query().Get("pid"); pid != "" {
		return pid
	}
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil {
			return r.PostFormValue("pid")
		}
	}
	return ""
}
