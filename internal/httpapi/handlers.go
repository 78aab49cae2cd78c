// Package httpapi exposes the gateway's merchant-facing HTTP surface:
// order creation, order/merchant query, internal status polling, and a
// small operator admin surface over the callback dead-letter queue.
package httpapi

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/qiupay/gateway/internal/callbacks"
	"github.com/qiupay/gateway/internal/config"
	"github.com/qiupay/gateway/internal/metrics"
	"github.com/qiupay/gateway/internal/orders"
	"github.com/qiupay/gateway/internal/reconciler"
	"github.com/qiupay/gateway/internal/storage"
)

// PaymentChecker is the narrow reconciler view handlers need for the
// query endpoint's inline reconciliation.
type PaymentChecker interface {
	CheckPayment(ctx context.Context, tradeNo string) (bool, error)
}

// OrderCreator is the narrow orders.Engine view the create handler needs.
type OrderCreator interface {
	CreateOrder(ctx context.Context, p orders.CreateParams) (orders.CreateResult, error)
}

// CallbackRenotifier is the narrow callbacks.Engine view the admin
// re-notify handler needs.
type CallbackRenotifier interface {
	ManualRenotify(ctx context.Context, tradeNo string) error
}

// handlers holds the dependencies every route needs. appCtx is the
// application's long-lived context, passed to pollerStarter.Start so a poll
// task outlives the HTTP request that spawned it.
type handlers struct {
	cfg           *config.Config
	store         storage.Store
	orders        OrderCreator
	checker       PaymentChecker
	pollerStarter PollerStarter
	callback      CallbackRenotifier
	dlq           callbacks.DLQStore
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	appCtx        context.Context
}

var _ PaymentChecker = (*reconciler.Reconciler)(nil)
