// Package callbacks delivers the merchant notify webhook: a signed,
// form-encoded POST to the order's notify_url, retried on a fixed schedule
// until the merchant's response body is exactly "success" or the schedule
// is exhausted.
package callbacks

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/qiupay/gateway/internal/apperrors"
	"github.com/qiupay/gateway/internal/config"
	"github.com/qiupay/gateway/internal/metrics"
	"github.com/qiupay/gateway/internal/storage"
)

// Engine owns notify delivery: the first attempt (fired on Enqueue) and
// every scheduled retry (fired by Scanner), plus the admin-facing manual
// re-notify and return-URL builder.
type Engine struct {
	store       storage.Store
	client      *Client
	dlq         DLQStore
	maxAttempts int
}

// NewEngine wires a callback Engine from config. The DLQStore is also handed
// to the underlying Client, but only Engine writes to it (on exhaustion). m
// may be nil, in which case the underlying Client's ObserveWebhook calls are
// no-ops.
func NewEngine(store storage.Store, cfg config.CallbacksConfig, dlq DLQStore, m *metrics.Metrics) *Engine {
	if dlq == nil {
		dlq = NoopDLQStore{}
	}
	retryCfg := RetryConfig{Timeout: cfg.Timeout.Duration, MaxAttempts: len(cfg.RetrySchedule) + 1}
	client := NewClient(retryCfg, WithDLQStore(dlq), WithMetrics(m))
	return &Engine{store: store, client: client, dlq: dlq, maxAttempts: retryCfg.MaxAttempts}
}

// Enqueue fires the first notify attempt in the background. It satisfies
// reconciler.CallbackDispatcher without either package importing the other.
func (e *Engine) Enqueue(tradeNo string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.attempt(ctx, tradeNo, 1); err != nil {
			log.Error().Err(err).Str("trade_no", tradeNo).Msg("callbacks.first_attempt_error")
		}
	}()
}

// attempt performs notify attempt number attemptNum for tradeNo: it loads
// the order and merchant, skips silently if there is no notify_url, marks
// the order in-flight, sends the signed form POST, appends a CallbackLog
// row regardless of outcome, and updates callback_status/callback_attempts.
func (e *Engine) attempt(ctx context.Context, tradeNo string, attemptNum int) error {
	order, err := e.store.GetOrderByTradeNo(ctx, tradeNo)
	if err != nil {
		return err
	}
	if order.CallbackStatus == storage.CallbackOK {
		return nil
	}
	if order.NotifyURL == "" {
		return nil
	}

	merchant, err := e.store.GetMerchant(ctx, order.MerchantID)
	if err != nil {
		return err
	}

	if err := e.store.UpdateCallbackStatus(ctx, tradeNo, storage.CallbackInFlight, attemptNum); err != nil {
		return err
	}

	params := signedNotifyParams(order, merchant)
	outcome := e.client.send(ctx, order.NotifyURL, params)

	responseBody := outcome.responseBody
	if outcome.err != nil {
		responseBody = outcome.err.Error()
	}
	_ = e.store.AppendCallbackLog(ctx, storage.CallbackLog{
		ID:           uuid.NewString(),
		OrderID:      order.ID,
		Attempt:      attemptNum,
		URL:          order.NotifyURL,
		HTTPStatus:   outcome.httpStatus,
		ResponseBody: responseBody,
		CreatedAt:    time.Now(),
	})

	if outcome.success {
		e.client.observe("notify", "success", outcome.duration, attemptNum, false)
		return e.store.UpdateCallbackStatus(ctx, tradeNo, storage.CallbackOK, attemptNum)
	}

	exhausted := attemptNum >= e.maxAttempts
	e.client.observe("notify", "failure", outcome.duration, attemptNum, exhausted)
	if exhausted {
		_ = e.dlq.SaveFailedWebhook(ctx, FailedWebhook{
			ID:          uuid.NewString(),
			TradeNo:     tradeNo,
			URL:         order.NotifyURL,
			Attempts:    attemptNum,
			LastError:   responseBody,
			LastAttempt: time.Now(),
			CreatedAt:   time.Now(),
		})
		return e.store.UpdateCallbackStatus(ctx, tradeNo, storage.CallbackFailed, attemptNum)
	}
	return e.store.UpdateCallbackStatus(ctx, tradeNo, storage.CallbackInFlight, attemptNum)
}

// ManualRenotify executes a single immediate attempt on a PENDING or PAID
// order with a notify_url, bumping its attempt count by one. Orders in any
// other status are rejected.
func (e *Engine) ManualRenotify(ctx context.Context, tradeNo string) error {
	order, err := e.store.GetOrderByTradeNo(ctx, tradeNo)
	if err != nil {
		return err
	}
	if order.Status != storage.OrderPending && order.Status != storage.OrderPaid {
		return apperrors.New(apperrors.CodeInvalidField, "order is neither pending nor paid")
	}
	return e.attempt(ctx, tradeNo, order.CallbackAttempts+1)
}

// BuildReturnURL builds the signed redirect URL for an order, merging the
// signed notify params onto merchant.ReturnURL's existing query string.
func (e *Engine) BuildReturnURL(ctx context.Context, tradeNo string) (string, error) {
	order, err := e.store.GetOrderByTradeNo(ctx, tradeNo)
	if err != nil {
		return "", err
	}
	merchant, err := e.store.GetMerchant(ctx, order.MerchantID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(order.ReturnURL) == "" {
		return "", nil
	}
	return mergeReturnURL(order.ReturnURL, order, merchant)
}
