// Package reconciler implements the balance-delta matcher: given a wallet's
// current available balance, it attributes the observed delta to one or
// more outstanding orders on the same credential via subset-sum search.
package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/google/uuid"

	"github.com/qiupay/gateway/internal/config"
	"github.com/qiupay/gateway/internal/credstore"
	"github.com/qiupay/gateway/internal/keyedlock"
	"github.com/qiupay/gateway/internal/money"
	"github.com/qiupay/gateway/internal/observability"
	"github.com/qiupay/gateway/internal/storage"
)

// WalletFactory is the narrow view of walletclient.Factory the reconciler
// depends on.
type WalletFactory interface {
	ForCredential(cred credstore.ResolvedCredential) (BalanceQuerier, error)
}

// BalanceQuerier is the narrow view of walletclient.Client the reconciler
// depends on.
type BalanceQuerier interface {
	QueryBalance(ctx context.Context) (money.Money, error)
}

// CallbackDispatcher is the reconciler's one-way hook into the callback
// engine. The reconciler hands over matched trade_nos; it has no further
// visibility into delivery, retries, or failure — that is entirely the
// dispatcher's concern. Enqueue is best-effort: a failure to enqueue must
// never roll back a payment that has already been committed.
type CallbackDispatcher interface {
	Enqueue(tradeNo string)
}

// Reconciler owns CheckPayment and RebaseAfterExpiry.
type Reconciler struct {
	store       storage.Store
	credentials *credstore.Resolver
	wallets     WalletFactory
	dispatcher  CallbackDispatcher
	failures    *FailureTracker
	locks       keyedlock.Locker
	warnAfter   int
	hooks       *observability.Registry
}

// SetHooks wires an observability registry that CheckPayment emits
// reconciliation and wallet-query events to. A nil registry (the default)
// disables emission entirely.
func (r *Reconciler) SetHooks(hooks *observability.Registry) {
	r.hooks = hooks
}

// New constructs a Reconciler. When cfg.DistributedLockURL is set, the
// per-credential critical section is serialized across gateway instances
// via a Redis advisory lock instead of an in-process mutex registry; a URL
// that fails to parse falls back to the in-process registry, logged. No
// connection is made here: once the Redis lock is in use, a Lock call that
// cannot reach Redis returns without holding any lock, so reconciliation is
// never blocked by an unreachable Redis.
func New(store storage.Store, credentials *credstore.Resolver, wallets WalletFactory, dispatcher CallbackDispatcher, cfg config.ReconcilerConfig) *Reconciler {
	warnAfter := cfg.ConsecutiveFailureWarnThreshold
	if warnAfter <= 0 {
		warnAfter = 3
	}

	var locks keyedlock.Locker = keyedlock.New()
	if cfg.DistributedLockURL != "" {
		redisLocker, err := keyedlock.NewRedisLocker(cfg.DistributedLockURL, 30*time.Second)
		if err != nil {
			log.Warn().Err(err).Msg("reconciler.distributed_lock_unavailable_falling_back")
		} else {
			locks = redisLocker
		}
	}

	return &Reconciler{
		store:       store,
		credentials: credentials,
		wallets:     wallets,
		dispatcher:  dispatcher,
		failures:    NewFailureTracker(),
		locks:       locks,
		warnAfter:   warnAfter,
	}
}

// CheckPayment evaluates whether trade_no's order has been paid, querying
// the wallet and running subset-sum attribution against its credential
// group if needed. It never returns a transport/wallet error to the
// caller — those are logged and treated as "no match this round" per the
// gateway's failure model; only store errors (programmer faults) propagate.
func (r *Reconciler) CheckPayment(ctx context.Context, tradeNo string) (matched bool, outerErr error) {
	start := time.Now()
	var credentialID string
	var walletErr error
	defer func() {
		if r.hooks == nil {
			return
		}
		event := observability.ReconciliationCheckEvent{
			Timestamp:    start,
			CredentialID: credentialID,
			Matched:      matched,
			Duration:     time.Since(start),
		}
		if matched {
			event.TradeNo = tradeNo
		}
		if walletErr != nil {
			event.Error = walletErr.Error()
		}
		r.hooks.EmitReconciliationCheck(ctx, event)
	}()

	order, err := r.store.GetOrderByTradeNo(ctx, tradeNo)
	if err == storage.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reconciler: load order: %w", err)
	}
	if order.Status == storage.OrderPaid {
		return true, nil
	}
	if order.Status != storage.OrderPending {
		return false, nil
	}

	credentialID = order.CredentialID

	unlock := r.locks.Lock(credentialID)
	defer unlock()

	cred, err := r.credentials.ResolveByID(ctx, order.MerchantID, credentialID)
	if err != nil {
		r.recordFailure(credentialID, err)
		r.appendBalanceLog(ctx, credentialID, 0, fmt.Sprintf("credential resolve failure: %v", err), nil)
		return false, nil
	}

	client, err := r.wallets.ForCredential(cred)
	if err != nil {
		r.recordFailure(credentialID, err)
		r.appendBalanceLog(ctx, credentialID, 0, fmt.Sprintf("wallet client build failure: %v", err), nil)
		return false, nil
	}

	queryStart := time.Now()
	balance, err := client.QueryBalance(ctx)
	if r.hooks != nil {
		r.hooks.EmitWalletQuery(ctx, observability.WalletQueryEvent{
			Timestamp:    queryStart,
			CredentialID: credentialID,
			Duration:     time.Since(queryStart),
			Success:      err == nil,
			ErrorType:    classifyWalletErrorType(err),
		})
	}
	if err != nil {
		walletErr = err
		r.recordFailure(credentialID, err)
		r.appendBalanceLog(ctx, credentialID, 0, fmt.Sprintf("query failure: %v", err), nil)
		return false, nil
	}
	r.failures.RecordSuccess(credentialID)

	pending, err := r.store.ListPendingOrdersByCredential(ctx, credentialID)
	if err != nil {
		return false, fmt.Errorf("reconciler: list pending orders: %w", err)
	}
	if len(pending) == 0 {
		r.appendBalanceLog(ctx, credentialID, balance.Atomic, "no pending orders", nil)
		return false, nil
	}

	baseBalance := pending[0].BaseBalance
	delta := balance.Atomic - baseBalance
	if delta <= 0 {
		r.appendBalanceLog(ctx, credentialID, balance.Atomic, "no positive change", nil)
		return false, nil
	}

	candidates := make([]int64, len(pending))
	for i, o := range pending {
		candidates[i] = o.Money
	}

	matchedIdx := subsetSumDFS(candidates, delta)
	if matchedIdx == nil {
		r.appendBalanceLog(ctx, credentialID, balance.Atomic, "no match", nil)
		return false, nil
	}

	matchedTradeNos := make([]string, len(matchedIdx))
	for i, idx := range matchedIdx {
		matchedTradeNos[i] = pending[idx].TradeNo
	}

	if err := r.store.MarkOrdersPaid(ctx, matchedTradeNos, balance.Atomic, time.Now()); err != nil {
		return false, fmt.Errorf("reconciler: mark orders paid: %w", err)
	}

	r.appendBalanceLog(ctx, credentialID, balance.Atomic,
		fmt.Sprintf("matched: delta=%d trade_nos=%s", delta, strings.Join(matchedTradeNos, ",")), matchedTradeNos)

	for _, tn := range matchedTradeNos {
		r.dispatcher.Enqueue(tn)
	}

	for _, tn := range matchedTradeNos {
		if tn == tradeNo {
			return true, nil
		}
	}
	return false, nil
}

// RebaseAfterExpiry re-snapshots base_balance for every remaining PENDING
// order in each credential group named, since the expiry of older siblings
// can leave the stored baseline stale. A group whose query fails is skipped
// with a warning logged; it will be retried on the next sweep cycle.
func (r *Reconciler) RebaseAfterExpiry(ctx context.Context, credentialIDs []string) {
	for _, credentialID := range credentialIDs {
		unlock := r.locks.Lock(credentialID)
		err := r.rebaseOne(ctx, credentialID)
		unlock()
		if err != nil {
			log.Warn().Err(err).Str("credential_id", credentialID).Msg("reconciler.rebase_failed")
		}
	}
}

func (r *Reconciler) rebaseOne(ctx context.Context, credentialID string) error {
	credential, err := r.store.GetCredential(ctx, credentialID)
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}

	cred, err := r.credentials.ResolveByID(ctx, credential.MerchantID, credentialID)
	if err != nil {
		return fmt.Errorf("resolve credential: %w", err)
	}

	client, err := r.wallets.ForCredential(cred)
	if err != nil {
		return fmt.Errorf("build wallet client: %w", err)
	}

	balance, err := client.QueryBalance(ctx)
	if err != nil {
		return fmt.Errorf("query balance: %w", err)
	}

	if err := r.store.RebaseCredentialBalance(ctx, credentialID, balance.Atomic); err != nil {
		return fmt.Errorf("rebase credential balance: %w", err)
	}
	return nil
}

func (r *Reconciler) recordFailure(credentialID string, cause error) {
	count := r.failures.RecordFailure(credentialID)
	if count >= r.warnAfter {
		log.Warn().
			Str("credential_id", credentialID).
			Int("consecutive_failures", count).
			Err(cause).
			Msg("reconciler.consecutive_wallet_failures")
	}
}

func (r *Reconciler) appendBalanceLog(ctx context.Context, credentialID string, availableAmount int64, matchResult string, matchedTradeNos []string) {
	entry := storage.BalanceLog{
		ID:              newLogID(),
		CredentialID:    credentialID,
		AvailableAmount: availableAmount,
		MatchResult:     matchResult,
		MatchedTradeNos: matchedTradeNos,
		CreatedAt:       time.Now(),
	}
	if err := r.store.AppendBalanceLog(ctx, entry); err != nil {
		log.Error().Err(err).Str("credential_id", credentialID).Msg("reconciler.balance_log_append_failed")
	}
}

func newLogID() string {
	return uuid.NewString()
}

func classifyWalletErrorType(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	switch {
	case strings.Contains(s, "timeout"):
		return "timeout"
	case strings.Contains(s, "breaker") || strings.Contains(s, "open state"):
		return "circuit_open"
	case strings.Contains(s, "connection"):
		return "connection"
	default:
		return "other"
	}
}
