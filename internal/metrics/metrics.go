package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the gateway exposes at /metrics.
type Metrics struct {
	// Order engine metrics
	OrdersCreatedTotal  *prometheus.CounterVec
	OrdersRejectedTotal *prometheus.CounterVec
	OrderAmountTotal    prometheus.Counter
	OrderCreateDuration prometheus.Histogram
	OrdersExpiredTotal  prometheus.Counter

	// Reconciliation metrics
	ReconciliationChecksTotal  *prometheus.CounterVec
	ReconciliationDuration     prometheus.Histogram
	ReconciliationFailureGauge prometheus.Gauge

	// Poller metrics
	PollerActiveTasks prometheus.Gauge
	PollerTasksTotal  *prometheus.CounterVec

	// Wallet gateway call metrics
	WalletQueriesTotal   *prometheus.CounterVec
	WalletQueryDuration  prometheus.Histogram
	WalletQueryErrors    *prometheus.CounterVec
	WalletBreakerOpens   *prometheus.CounterVec

	// Webhook metrics
	WebhooksTotal       *prometheus.CounterVec
	WebhookRetriesTotal *prometheus.CounterVec
	WebhookDLQTotal     *prometheus.CounterVec
	WebhookDuration     *prometheus.HistogramVec

	// Rate limiting metrics
	RateLimitHitsTotal *prometheus.CounterVec

	// Database metrics
	DBQueryDuration     *prometheus.HistogramVec
	DBConnectionsActive prometheus.Gauge
}

// New creates and registers every collector against registry (or the
// global default registerer if nil).
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		OrdersCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_orders_created_total",
				Help: "Total number of orders successfully created",
			},
			[]string{"merchant"},
		),
		OrdersRejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_orders_rejected_total",
				Help: "Total number of order creation requests rejected",
			},
			[]string{"reason"},
		),
		OrderAmountTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_order_amount_cents_total",
				Help: "Total amount, in cents, across all created orders",
			},
		),
		OrderCreateDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gateway_order_create_duration_seconds",
				Help:    "Time taken to validate and persist a new order",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
		),
		OrdersExpiredTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_orders_expired_total",
				Help: "Total number of orders retired by the expiry sweep",
			},
		),

		ReconciliationChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_reconciliation_checks_total",
				Help: "Total number of balance reconciliation checks performed",
			},
			[]string{"outcome"},
		),
		ReconciliationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gateway_reconciliation_duration_seconds",
				Help:    "Time taken for a single reconciliation check, including the wallet call",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		),
		ReconciliationFailureGauge: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_reconciliation_consecutive_failures",
				Help: "Current consecutive wallet-query failure count tracked by the reconciler",
			},
		),

		PollerActiveTasks: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_poller_active_tasks",
				Help: "Number of trade_nos currently being polled for payment",
			},
		),
		PollerTasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_poller_tasks_total",
				Help: "Total number of poller tasks started, by terminal outcome",
			},
			[]string{"outcome"},
		),

		WalletQueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_wallet_queries_total",
				Help: "Total number of wallet balance.query calls",
			},
			[]string{"status"},
		),
		WalletQueryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gateway_wallet_query_duration_seconds",
				Help:    "Duration of wallet balance.query HTTP calls",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		),
		WalletQueryErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_wallet_query_errors_total",
				Help: "Total number of failed wallet balance.query calls",
			},
			[]string{"reason"},
		),
		WalletBreakerOpens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_wallet_breaker_opens_total",
				Help: "Total number of times the wallet circuit breaker tripped open",
			},
			[]string{"service"},
		),

		WebhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_webhooks_total",
				Help: "Total number of notify callback deliveries",
			},
			[]string{"event_type", "status"},
		),
		WebhookRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_webhook_retries_total",
				Help: "Total number of notify callback retry attempts",
			},
			[]string{"event_type", "attempt"},
		),
		WebhookDLQTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_webhook_dlq_total",
				Help: "Total number of notify callbacks that exhausted their retry schedule",
			},
			[]string{"event_type"},
		),
		WebhookDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_webhook_duration_seconds",
				Help:    "Time taken for a single notify delivery attempt",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"event_type"},
		),

		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_rate_limit_hits_total",
				Help: "Total number of requests rejected by a rate limiter",
			},
			[]string{"limit_type", "identifier"},
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_db_query_duration_seconds",
				Help:    "Storage backend query duration",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1, 2},
			},
			[]string{"operation", "backend"},
		),
		DBConnectionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_db_connections_active",
				Help: "Number of active storage backend connections",
			},
		),
	}
}

// ObserveOrderCreated records a successfully created order.
func (m *Metrics) ObserveOrderCreated(merchantID string, amountCents int64, duration time.Duration) {
	m.OrdersCreatedTotal.WithLabelValues(merchantID).Inc()
	m.OrderAmountTotal.Add(float64(amountCents))
	m.OrderCreateDuration.Observe(duration.Seconds())
}

// ObserveOrderRejected records an order creation request that was rejected,
// tagged with the apperrors.Code that explains why.
func (m *Metrics) ObserveOrderRejected(reason string) {
	m.OrdersRejectedTotal.WithLabelValues(reason).Inc()
}

// ObserveOrdersExpired records how many orders a single sweep tick retired.
func (m *Metrics) ObserveOrdersExpired(count int) {
	m.OrdersExpiredTotal.Add(float64(count))
}

// ObserveReconciliation records one CheckPayment call: outcome is "matched",
// "no_match", or "error".
func (m *Metrics) ObserveReconciliation(outcome string, duration time.Duration) {
	m.ReconciliationChecksTotal.WithLabelValues(outcome).Inc()
	m.ReconciliationDuration.Observe(duration.Seconds())
}

// SetReconciliationFailures reports the reconciler's current consecutive
// wallet-query failure count for a credential group.
func (m *Metrics) SetReconciliationFailures(count int) {
	m.ReconciliationFailureGauge.Set(float64(count))
}

// SetPollerActiveTasks reports the poller's current in-flight task count.
func (m *Metrics) SetPollerActiveTasks(count int) {
	m.PollerActiveTasks.Set(float64(count))
}

// ObservePollerTaskFinished records why a poller task stopped: "paid",
// "timed_out", "cancelled", "vanished", or "no_longer_pending".
func (m *Metrics) ObservePollerTaskFinished(outcome string) {
	m.PollerTasksTotal.WithLabelValues(outcome).Inc()
}

// ObserveWalletQuery records a wallet balance.query call.
func (m *Metrics) ObserveWalletQuery(duration time.Duration, err error) {
	if err != nil {
		m.WalletQueriesTotal.WithLabelValues("error").Inc()
		m.WalletQueryErrors.WithLabelValues(classifyWalletError(err)).Inc()
		return
	}
	m.WalletQueriesTotal.WithLabelValues("success").Inc()
	m.WalletQueryDuration.Observe(duration.Seconds())
}

// ObserveBreakerOpen records a circuit breaker tripping open for service.
func (m *Metrics) ObserveBreakerOpen(service string) {
	m.WalletBreakerOpens.WithLabelValues(service).Inc()
}

// ObserveWebhook records a single notify delivery attempt.
func (m *Metrics) ObserveWebhook(eventType, status string, duration time.Duration, attempt int, sentToDLQ bool) {
	m.WebhooksTotal.WithLabelValues(eventType, status).Inc()
	m.WebhookDuration.WithLabelValues(eventType).Observe(duration.Seconds())

	if attempt > 1 {
		m.WebhookRetriesTotal.WithLabelValues(eventType, formatAttempt(attempt)).Inc()
	}
	if sentToDLQ {
		m.WebhookDLQTotal.WithLabelValues(eventType).Inc()
	}
}

// ObserveRateLimit records a rate limit hit.
func (m *Metrics) ObserveRateLimit(limitType, identifier string) {
	m.RateLimitHitsTotal.WithLabelValues(limitType, identifier).Inc()
}

// ObserveDBQuery records a storage backend query.
func (m *Metrics) ObserveDBQuery(operation, backend string, duration time.Duration) {
	m.DBQueryDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

// SetDBConnectionsActive reports the backing connection pool's current open
// connection count, for backends that expose one (Postgres; memory/Mongo
// report nothing and leave the gauge untouched).
func (m *Metrics) SetDBConnectionsActive(count int) {
	m.DBConnectionsActive.Set(float64(count))
}

func classifyWalletError(err error) string {
	s := err.Error()
	switch {
	case strings.Contains(s, "timeout"):
		return "timeout"
	case strings.Contains(s, "breaker") || strings.Contains(s, "open state") || strings.Contains(s, "circuit_open"):
		return "circuit_open"
	case strings.Contains(s, "connection"):
		return "connection"
	default:
		return "other"
	}
}

func formatAttempt(attempt int) string {
	if attempt <= 5 {
		return string(rune('0' + attempt))
	}
	return "5+"
}
