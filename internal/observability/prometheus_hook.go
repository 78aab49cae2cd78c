package observability

import (
	"context"

	"github.com/qiupay/gateway/internal/metrics"
	"github.com/qiupay/gateway/internal/money"
)

// PrometheusHook forwards observability events onto the existing Prometheus
// collectors in internal/metrics, so a second instrumentation sink (e.g. an
// OpenTelemetry or log-based hook) can be registered alongside Prometheus
// without touching the /metrics scrape path.
type PrometheusHook struct {
	metrics *metrics.Metrics
}

// NewPrometheusHook creates a hook that forwards events to m.
func NewPrometheusHook(m *metrics.Metrics) *PrometheusHook {
	return &PrometheusHook{metrics: m}
}

func (h *PrometheusHook) Name() string { return "prometheus" }

func (h *PrometheusHook) OnOrderCreated(ctx context.Context, event OrderCreatedEvent) {
	amount, err := money.FromMajor(money.CNY, event.Amount)
	if err != nil {
		return
	}
	h.metrics.ObserveOrderCreated(event.MerchantID, amount.Atomic, 0)
}

func (h *PrometheusHook) OnOrderExpired(ctx context.Context, event OrderExpiredEvent) {
	h.metrics.ObserveOrdersExpired(1)
}

func (h *PrometheusHook) OnReconciliationCheck(ctx context.Context, event ReconciliationCheckEvent) {
	outcome := "no_match"
	switch {
	case event.Error != "":
		outcome = "error"
	case event.Matched:
		outcome = "matched"
	}
	h.metrics.ObserveReconciliation(outcome, event.Duration)
}

func (h *PrometheusHook) OnWebhookQueued(ctx context.Context, event WebhookQueuedEvent) {
	// Prometheus tracks terminal outcomes, not queuing.
}

func (h *PrometheusHook) OnWebhookDelivered(ctx context.Context, event WebhookDeliveredEvent) {
	h.metrics.ObserveWebhook("notify", "success", event.Duration, event.Attempt, false)
}

func (h *PrometheusHook) OnWebhookFailed(ctx context.Context, event WebhookFailedEvent) {
	status := "retry"
	if event.FinalFailure {
		status = "failed"
	}
	h.metrics.ObserveWebhook("notify", status, 0, event.Attempt, event.FinalFailure)
}

func (h *PrometheusHook) OnWebhookRetried(ctx context.Context, event WebhookRetriedEvent) {
	// Retry counts are folded into OnWebhookFailed's attempt label.
}

func (h *PrometheusHook) OnWalletQuery(ctx context.Context, event WalletQueryEvent) {
	var err error
	if !event.Success {
		err = walletHookError(event.ErrorType)
	}
	h.metrics.ObserveWalletQuery(event.Duration, err)
}

func (h *PrometheusHook) OnStorageQuery(ctx context.Context, event StorageQueryEvent) {
	h.metrics.ObserveDBQuery(event.Operation, event.Backend, event.Duration)
	if event.OpenConnections > 0 {
		h.metrics.SetDBConnectionsActive(event.OpenConnections)
	}
}

// walletHookError is a minimal error carrying only the classification string
// already computed by the emitting call site, so ObserveWalletQuery's own
// classifyWalletError can recognize it without re-deriving anything.
type walletHookError string

func (e walletHookError) Error() string { return string(e) }
