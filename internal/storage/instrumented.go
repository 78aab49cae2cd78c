package storage

import (
	"context"
	"time"

	"github.com/qiupay/gateway/internal/observability"
)

// InstrumentedStore wraps a Store and emits a StorageQueryEvent for every
// call, reporting its operation name, backend label, duration, and outcome.
// It changes nothing about the wrapped Store's behavior or errors.
type InstrumentedStore struct {
	Store
	backend string
	hooks   *observability.Registry
}

// NewInstrumentedStore wraps store so every call emits a StorageQueryEvent
// to hooks. backend is the label reported on each event ("postgres",
// "mongodb", or "memory").
func NewInstrumentedStore(store Store, backend string, hooks *observability.Registry) *InstrumentedStore {
	return &InstrumentedStore{Store: store, backend: backend, hooks: hooks}
}

// connStatser is implemented by backends that expose a live connection pool
// size (currently PostgresStore only).
type connStatser interface {
	OpenConnections() int
}

func (s *InstrumentedStore) emit(ctx context.Context, operation string, start time.Time, err error) {
	if s.hooks == nil {
		return
	}
	event := observability.StorageQueryEvent{
		Timestamp: start,
		Operation: operation,
		Backend:   s.backend,
		Duration:  time.Since(start),
		Success:   err == nil,
	}
	if err != nil {
		event.Error = err.Error()
	}
	if cs, ok := s.Store.(connStatser); ok {
		event.OpenConnections = cs.OpenConnections()
	}
	s.hooks.EmitStorageQuery(ctx, event)
}

func (s *InstrumentedStore) CreateMerchant(ctx context.Context, m Merchant) error {
	start := time.Now()
	err := s.Store.CreateMerchant(ctx, m)
	s.emit(ctx, "create_merchant", start, err)
	return err
}

func (s *InstrumentedStore) GetMerchant(ctx context.Context, id string) (Merchant, error) {
	start := time.Now()
	v, err := s.Store.GetMerchant(ctx, id)
	s.emit(ctx, "get_merchant", start, err)
	return v, err
}

func (s *InstrumentedStore) GetMerchantByUsername(ctx context.Context, username string) (Merchant, error) {
	start := time.Now()
	v, err := s.Store.GetMerchantByUsername(ctx, username)
	s.emit(ctx, "get_merchant_by_username", start, err)
	return v, err
}

func (s *InstrumentedStore) SetMerchantActive(ctx context.Context, id string, active bool) error {
	start := time.Now()
	err := s.Store.SetMerchantActive(ctx, id, active)
	s.emit(ctx, "set_merchant_active", start, err)
	return err
}

func (s *InstrumentedStore) CreditMerchant(ctx context.Context, id string, amount int64) error {
	start := time.Now()
	err := s.Store.CreditMerchant(ctx, id, amount)
	s.emit(ctx, "credit_merchant", start, err)
	return err
}

func (s *InstrumentedStore) CreateCredential(ctx context.Context, c Credential) error {
	start := time.Now()
	err := s.Store.CreateCredential(ctx, c)
	s.emit(ctx, "create_credential", start, err)
	return err
}

func (s *InstrumentedStore) GetCredential(ctx context.Context, id string) (Credential, error) {
	start := time.Now()
	v, err := s.Store.GetCredential(ctx, id)
	s.emit(ctx, "get_credential", start, err)
	return v, err
}

func (s *InstrumentedStore) ListCredentialsByMerchant(ctx context.Context, merchantID string) ([]Credential, error) {
	start := time.Now()
	v, err := s.Store.ListCredentialsByMerchant(ctx, merchantID)
	s.emit(ctx, "list_credentials_by_merchant", start, err)
	return v, err
}

func (s *InstrumentedStore) SetCredentialActive(ctx context.Context, id string, active bool) error {
	start := time.Now()
	err := s.Store.SetCredentialActive(ctx, id, active)
	s.emit(ctx, "set_credential_active", start, err)
	return err
}

func (s *InstrumentedStore) CreateOrder(ctx context.Context, o Order) error {
	start := time.Now()
	err := s.Store.CreateOrder(ctx, o)
	s.emit(ctx, "create_order", start, err)
	return err
}

func (s *InstrumentedStore) GetOrderByTradeNo(ctx context.Context, tradeNo string) (Order, error) {
	start := time.Now()
	v, err := s.Store.GetOrderByTradeNo(ctx, tradeNo)
	s.emit(ctx, "get_order_by_trade_no", start, err)
	return v, err
}

func (s *InstrumentedStore) GetOrderByOutTradeNo(ctx context.Context, merchantID, outTradeNo string) (Order, error) {
	start := time.Now()
	v, err := s.Store.GetOrderByOutTradeNo(ctx, merchantID, outTradeNo)
	s.emit(ctx, "get_order_by_out_trade_no", start, err)
	return v, err
}

func (s *InstrumentedStore) CountOrdersByMerchant(ctx context.Context, merchantID string, since time.Time) (int, error) {
	start := time.Now()
	v, err := s.Store.CountOrdersByMerchant(ctx, merchantID, since)
	s.emit(ctx, "count_orders_by_merchant", start, err)
	return v, err
}

func (s *InstrumentedStore) ListPendingOrdersByCredential(ctx context.Context, credentialID string) ([]Order, error) {
	start := time.Now()
	v, err := s.Store.ListPendingOrdersByCredential(ctx, credentialID)
	s.emit(ctx, "list_pending_orders_by_credential", start, err)
	return v, err
}

func (s *InstrumentedStore) MarkOrdersPaid(ctx context.Context, tradeNos []string, confirmBalance int64, paidAt time.Time) error {
	start := time.Now()
	err := s.Store.MarkOrdersPaid(ctx, tradeNos, confirmBalance, paidAt)
	s.emit(ctx, "mark_orders_paid", start, err)
	return err
}

func (s *InstrumentedStore) ExpirePendingOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	start := time.Now()
	v, err := s.Store.ExpirePendingOlderThan(ctx, cutoff)
	s.emit(ctx, "expire_pending_older_than", start, err)
	return v, err
}

func (s *InstrumentedStore) RebaseCredentialBalance(ctx context.Context, credentialID string, newBaseBalance int64) error {
	start := time.Now()
	err := s.Store.RebaseCredentialBalance(ctx, credentialID, newBaseBalance)
	s.emit(ctx, "rebase_credential_balance", start, err)
	return err
}

func (s *InstrumentedStore) UpdateCallbackStatus(ctx context.Context, tradeNo string, status CallbackStatus, attempts int) error {
	start := time.Now()
	err := s.Store.UpdateCallbackStatus(ctx, tradeNo, status, attempts)
	s.emit(ctx, "update_callback_status", start, err)
	return err
}

func (s *InstrumentedStore) ListOrdersForCallbackRetry(ctx context.Context, maxAttempts int) ([]Order, error) {
	start := time.Now()
	v, err := s.Store.ListOrdersForCallbackRetry(ctx, maxAttempts)
	s.emit(ctx, "list_orders_for_callback_retry", start, err)
	return v, err
}

func (s *InstrumentedStore) AppendCallbackLog(ctx context.Context, log CallbackLog) error {
	start := time.Now()
	err := s.Store.AppendCallbackLog(ctx, log)
	s.emit(ctx, "append_callback_log", start, err)
	return err
}

func (s *InstrumentedStore) ListCallbackLogsByOrder(ctx context.Context, orderID string) ([]CallbackLog, error) {
	start := time.Now()
	v, err := s.Store.ListCallbackLogsByOrder(ctx, orderID)
	s.emit(ctx, "list_callback_logs_by_order", start, err)
	return v, err
}

func (s *InstrumentedStore) AppendBalanceLog(ctx context.Context, log BalanceLog) error {
	start := time.Now()
	err := s.Store.AppendBalanceLog(ctx, log)
	s.emit(ctx, "append_balance_log", start, err)
	return err
}
