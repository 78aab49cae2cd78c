package callbacks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/qiupay/gateway/internal/httputil"
	"github.com/qiupay/gateway/internal/metrics"
)

// RetryConfig bounds a single notify attempt. Unlike the teacher's
// exponential-backoff client, the wait *between* attempts here is not the
// client's concern — it is a fixed schedule (config.CallbacksConfig.
// RetrySchedule) evaluated by Scanner, so RetryConfig only carries the
// per-attempt HTTP timeout and the hard attempt ceiling.
type RetryConfig struct {
	Timeout     time.Duration
	MaxAttempts int
}

// DefaultRetryConfig matches the retry schedule's length: 5 waits after the
// first attempt means 6 attempts total.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Timeout: 10 * time.Second, MaxAttempts: 6}
}

// ClientOption configures a Client.
type ClientOption func(*Client)

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

func WithDLQStore(store DLQStore) ClientOption {
	return func(c *Client) { c.dlq = store }
}

func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// Client sends a single notify attempt and classifies the outcome. It does
// not retry internally — Engine/Scanner own the retry schedule.
type Client struct {
	cfg        RetryConfig
	httpClient *http.Client
	dlq        DLQStore
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewClient builds a Client, applying functional options over the defaults.
func NewClient(cfg RetryConfig, opts ...ClientOption) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRetryConfig().Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	c := &Client{
		cfg:        cfg,
		httpClient: httputil.NewClient(cfg.Timeout),
		dlq:        NoopDLQStore{},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// attemptOutcome is what a single POST to the merchant's notify_url
// resolved to.
type attemptOutcome struct {
	success      bool
	httpStatus   int
	responseBody string
	duration     time.Duration
	err          error
}

// send posts the signed, form-encoded params to notifyURL and classifies the
// response. Success is exactly the merchant's response body, stripped of
// surrounding whitespace, equaling the literal "success".
func (c *Client) send(ctx context.Context, notifyURL string, params map[string]string) attemptOutcome {
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, notifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return attemptOutcome{err: fmt.Errorf("build notify request: %w", err), duration: time.Since(start)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		return attemptOutcome{err: fmt.Errorf("send notify request: %w", err), duration: duration}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if readErr != nil {
		return attemptOutcome{httpStatus: resp.StatusCode, err: fmt.Errorf("read notify response: %w", readErr), duration: duration}
	}

	trimmed := strings.TrimSpace(string(body))
	return attemptOutcome{
		success:      trimmed == "success",
		httpStatus:   resp.StatusCode,
		responseBody: trimmed,
		duration:     duration,
	}
}

func (c *Client) observe(eventType, status string, duration time.Duration, attempt int, sentToDLQ bool) {
	if c.metrics == nil {
		return
	}
	c.metrics.ObserveWebhook(eventType, status, duration, attempt, sentToDLQ)
}
