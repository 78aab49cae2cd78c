// Package orders implements the order lifecycle: creation with a
// collision-free adjusted amount, and the periodic expiry sweep that
// retires stale PENDING orders.
package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/qiupay/gateway/internal/config"
	"github.com/qiupay/gateway/internal/credstore"
	"github.com/qiupay/gateway/internal/keyedlock"
	"github.com/qiupay/gateway/internal/money"
	"github.com/qiupay/gateway/internal/observability"
	"github.com/qiupay/gateway/internal/storage"
)

// WalletFactory is the narrow view of walletclient.Factory the order engine
// depends on, so tests can substitute a fake without standing up RSA keys
// and an HTTP server.
type WalletFactory interface {
	ForCredential(cred credstore.ResolvedCredential) (BalanceQuerier, error)
}

// BalanceQuerier is the narrow view of walletclient.Client the order engine
// depends on.
type BalanceQuerier interface {
	QueryBalance(ctx context.Context) (money.Money, error)
}

// Rebaser is the reconciler's hook for re-snapshotting base_balance after an
// expiry sweep changes which order is the earliest PENDING sibling in a
// credential group. The order engine depends on this narrow interface, not
// the reconciler package itself, to keep the dependency one-way.
type Rebaser interface {
	RebaseAfterExpiry(ctx context.Context, credentialIDs []string)
}

// CreateParams are the validated inputs to CreateOrder. Signature
// verification and form parsing happen at the HTTP boundary; by the time
// CreateParams reaches the engine, MerchantID and Money are trusted values.
type CreateParams struct {
	MerchantID string
	OutTradeNo string
	Money      string // 2-decimal-place major-unit string, e.g. "20.00"
	Type       string // merchant-defined product type, echoed back in the notify payload
	Name       string // merchant-defined product name, echoed back in the notify payload
	NotifyURL  string
	ReturnURL  string
	Param      string
}

// CreateResult is what CreateOrder hands back to the HTTP layer.
type CreateResult struct {
	Order     storage.Order
	QRCodeURL string
}

// Engine owns order creation and expiry.
type Engine struct {
	store       storage.Store
	credentials *credstore.Resolver
	wallets     WalletFactory
	cfg         config.OrdersConfig
	locks       *keyedlock.Registry
	hooks       *observability.Registry
}

// NewEngine constructs an Engine.
func NewEngine(store storage.Store, credentials *credstore.Resolver, wallets WalletFactory, cfg config.OrdersConfig) *Engine {
	return &Engine{
		store:       store,
		credentials: credentials,
		wallets:     wallets,
		cfg:         cfg,
		locks:       keyedlock.New(),
	}
}

// SetHooks wires an observability registry that CreateOrder and ExpireSweep
// emit events to. A nil registry (the default) disables emission entirely.
func (e *Engine) SetHooks(hooks *observability.Registry) {
	e.hooks = hooks
}

// CreateOrder validates the merchant and credential, computes a
// collision-free adjusted amount, snapshots the wallet's current available
// balance, and persists the new PENDING order.
func (e *Engine) CreateOrder(ctx context.Context, p CreateParams) (CreateResult, error) {
	merchant, err := e.store.GetMerchant(ctx, p.MerchantID)
	if err == storage.ErrNotFound {
		return CreateResult{}, ErrMerchantMissing
	}
	if err != nil {
		return CreateResult{}, fmt.Errorf("orders: load merchant: %w", err)
	}
	if !merchant.Active {
		return CreateResult{}, ErrMerchantInactive
	}

	cred, err := e.credentials.Resolve(ctx, p.MerchantID)
	if err == credstore.ErrNoActiveCredential {
		return CreateResult{}, ErrCredentialMissing
	}
	if err != nil {
		return CreateResult{}, fmt.Errorf("orders: resolve credential: %w", err)
	}

	original, err := money.FromMajor(money.CNY, p.Money)
	if err != nil || original.Atomic <= 0 {
		return CreateResult{}, ErrInvalidAmount
	}

	maxSteps := e.cfg.MaxAdjustSteps
	if maxSteps <= 0 {
		maxSteps = 100
	}

	unlock := e.locks.Lock(cred.ID)
	defer unlock()

	adjustedCents, err := e.adjustAmount(ctx, cred.ID, original.Atomic, maxSteps)
	if err != nil {
		return CreateResult{}, err
	}

	baseBalance := e.snapshotBaseBalance(ctx, cred)

	tradeNo, err := e.generateTradeNo(ctx)
	if err != nil {
		return CreateResult{}, err
	}

	now := time.Now()
	order := storage.Order{
		ID:            uuid.NewString(),
		TradeNo:       tradeNo,
		OutTradeNo:    p.OutTradeNo,
		MerchantID:    p.MerchantID,
		CredentialID:  cred.ID,
		Type:          p.Type,
		Name:          p.Name,
		OriginalMoney: original.Atomic,
		Money:         adjustedCents,
		AdjustAmount:  adjustedCents - original.Atomic,
		Status:        storage.OrderPending,
		BaseBalance:   baseBalance,
		NotifyURL:     p.NotifyURL,
		ReturnURL:     p.ReturnURL,
		Param:         p.Param,
		CreatedAt:     now,
	}

	if err := e.store.CreateOrder(ctx, order); err != nil {
		if err == storage.ErrAmountConflict {
			return CreateResult{}, ErrAmountConflict
		}
		return CreateResult{}, fmt.Errorf("orders: create order: %w", err)
	}

	if e.hooks != nil {
		e.hooks.EmitOrderCreated(ctx, observability.OrderCreatedEvent{
			Timestamp:    now,
			TradeNo:      order.TradeNo,
			OutTradeNo:   order.OutTradeNo,
			MerchantID:   order.MerchantID,
			CredentialID: order.CredentialID,
			Amount:       p.Money,
		})
	}

	return CreateResult{Order: order, QRCodeURL: cred.QRCodeURL}, nil
}

// snapshotBaseBalance queries the wallet for its current available balance
// to use as the order's baseline. A transient failure here is not fatal —
// it falls back to 0, which stays the baseline until an expiry sweep in the
// same credential group triggers RebaseAfterExpiry; the poller never rebases.
func (e *Engine) snapshotBaseBalance(ctx context.Context, cred credstore.ResolvedCredential) int64 {
	client, err := e.wallets.ForCredential(cred)
	if err != nil {
		log.Warn().Err(err).Str("credential_id", cred.ID).Msg("orders.wallet_client_build_failed")
		return 0
	}

	balance, err := client.QueryBalance(ctx)
	if err != nil {
		log.Warn().Err(err).Str("credential_id", cred.ID).Msg("orders.base_balance_query_failed")
		return 0
	}
	return balance.Atomic
}

// ExpireSweep flips every PENDING order older than ExpireAfter to EXPIRED
// and, if a rebaser is wired, triggers a base_balance rebase for every
// affected credential so its remaining siblings stay correctly anchored.
func (e *Engine) ExpireSweep(ctx context.Context, rebaser Rebaser) error {
	expireAfter := e.cfg.ExpireAfter.Duration
	if expireAfter <= 0 {
		expireAfter = 10 * time.Minute
	}
	cutoff := time.Now().Add(-expireAfter)

	tradeNos, err := e.store.ExpirePendingOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("orders: expire pending orders: %w", err)
	}
	if len(tradeNos) == 0 {
		return nil
	}

	log.Info().Int("count", len(tradeNos)).Msg("orders.expire_sweep")

	if e.hooks != nil {
		for _, tn := range tradeNos {
			e.hooks.EmitOrderExpired(ctx, observability.OrderExpiredEvent{
				Timestamp: time.Now(),
				TradeNo:   tn,
				Age:       expireAfter,
			})
		}
	}

	credentialIDs := make(map[string]struct{})
	for _, tn := range tradeNos {
		order, err := e.store.GetOrderByTradeNo(ctx, tn)
		if err != nil {
			continue
		}
		credentialIDs[order.CredentialID] = struct{}{}
	}

	if rebaser == nil || len(credentialIDs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(credentialIDs))
	for id := range credentialIDs {
		ids = append(ids, id)
	}
	rebaser.RebaseAfterExpiry(ctx, ids)
	return nil
}
