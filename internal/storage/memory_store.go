package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation suitable for tests and
// single-instance local development. Not safe across process restarts and
// not suitable for multi-instance deployments — the amount-uniqueness
// invariant is only enforced within this one process's lock.
type MemoryStore struct {
	mu sync.RWMutex

	merchants          map[string]Merchant
	merchantsByUser    map[string]string // username -> id
	credentials        map[string]Credential
	credentialsByOwner map[string][]string // merchant_id -> []credential_id
	orders             map[string]Order // trade_no -> order
	callbackLogs       map[string][]CallbackLog
	balanceLogs        []BalanceLog
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		merchants:          make(map[string]Merchant),
		merchantsByUser:    make(map[string]string),
		credentials:        make(map[string]Credential),
		credentialsByOwner: make(map[string][]string),
		orders:             make(map[string]Order),
		callbackLogs:       make(map[string][]CallbackLog),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) CreateMerchant(_ context.Context, merchant Merchant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.merchantsByUser[merchant.Username]; exists {
		return fmt.Errorf("storage: username %q already exists", merchant.Username)
	}
	m.merchants[merchant.ID] = merchant
	m.merchantsByUser[merchant.Username] = merchant.ID
	return nil
}

func (m *MemoryStore) GetMerchant(_ context.Context, id string) (Merchant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	merchant, ok := m.merchants[id]
	if !ok {
		return Merchant{}, ErrNotFound
	}
	return merchant, nil
}

func (m *MemoryStore) GetMerchantByUsername(_ context.Context, username string) (Merchant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.merchantsByUser[username]
	if !ok {
		return Merchant{}, ErrNotFound
	}
	return m.merchants[id], nil
}

func (m *MemoryStore) SetMerchantActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	merchant, ok := m.merchants[id]
	if !ok {
		return ErrNotFound
	}
	merchant.Active = active
	m.merchants[id] = merchant
	return nil
}

func (m *MemoryStore) CreditMerchant(_ context.Context, id string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	merchant, ok := m.merchants[id]
	if !ok {
		return ErrNotFound
	}
	merchant.Money += amount
	m.merchants[id] = merchant
	return nil
}

func (m *MemoryStore) CreateCredential(_ context.Context, c Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentials[c.ID] = c
	m.credentialsByOwner[c.MerchantID] = append(m.credentialsByOwner[c.MerchantID], c.ID)
	return nil
}

func (m *MemoryStore) GetCredential(_ context.Context, id string) (Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.credentials[id]
	if !ok {
		return Credential{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) ListCredentialsByMerchant(_ context.Context, merchantID string) ([]Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.credentialsByOwner[merchantID]
	out := make([]Credential, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.credentials[id])
	}
	return out, nil
}

func (m *MemoryStore) SetCredentialActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credentials[id]
	if !ok {
		return ErrNotFound
	}
	c.Active = active
	m.credentials[id] = c
	return nil
}

func (m *MemoryStore) CreateOrder(_ context.Context, o Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[o.TradeNo]; exists {
		return fmt.Errorf("storage: trade_no %q already exists", o.TradeNo)
	}
	for _, existing := range m.orders {
		if existing.CredentialID == o.CredentialID && existing.Status == OrderPending && existing.Money == o.Money {
			return ErrAmountConflict
		}
	}
	m.orders[o.TradeNo] = o
	return nil
}

func (m *MemoryStore) GetOrderByTradeNo(_ context.Context, tradeNo string) (Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[tradeNo]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (m *MemoryStore) GetOrderByOutTradeNo(_ context.Context, merchantID, outTradeNo string) (Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.MerchantID == merchantID && o.OutTradeNo == outTradeNo {
			return o, nil
		}
	}
	return Order{}, ErrNotFound
}

func (m *MemoryStore) CountOrdersByMerchant(_ context.Context, merchantID string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, o := range m.orders {
		if o.MerchantID != merchantID {
			continue
		}
		if !since.IsZero() && o.CreatedAt.Before(since) {
			continue
		}
		count++
	}
	return count, nil
}

func (m *MemoryStore) ListPendingOrdersByCredential(_ context.Context, credentialID string) ([]Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Order, 0)
	for _, o := range m.orders {
		if o.CredentialID == credentialID && o.Status == OrderPending {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) MarkOrdersPaid(_ context.Context, tradeNos []string, confirmBalance int64, paidAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tn := range tradeNos {
		o, ok := m.orders[tn]
		if !ok {
			return fmt.Errorf("storage: order %q not found", tn)
		}
		if o.Status != OrderPending {
			return fmt.Errorf("storage: order %q is not pending", tn)
		}
	}

	for _, tn := range tradeNos {
		o := m.orders[tn]
		o.Status = OrderPaid
		o.ConfirmBalance = confirmBalance
		t := paidAt
		o.PaidAt = &t
		m.orders[tn] = o

		merchant, ok := m.merchants[o.MerchantID]
		if ok {
			merchant.Money += o.Money
			m.merchants[o.MerchantID] = merchant
		}
	}
	return nil
}

func (m *MemoryStore) ExpirePendingOlderThan(_ context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []string
	now := time.Now()
	for tn, o := range m.orders {
		if o.Status == OrderPending && o.CreatedAt.Before(cutoff) {
			o.Status = OrderExpired
			o.ExpiredAt = &now
			m.orders[tn] = o
			expired = append(expired, tn)
		}
	}
	return expired, nil
}

func (m *MemoryStore) RebaseCredentialBalance(_ context.Context, credentialID string, newBaseBalance int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tn, o := range m.orders {
		if o.CredentialID == credentialID && o.Status == OrderPending {
			o.BaseBalance = newBaseBalance
			m.orders[tn] = o
		}
	}
	return nil
}

func (m *MemoryStore) UpdateCallbackStatus(_ context.Context, tradeNo string, status CallbackStatus, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[tradeNo]
	if !ok {
		return ErrNotFound
	}
	o.CallbackStatus = status
	o.CallbackAttempts = attempts
	m.orders[tradeNo] = o
	return nil
}

func (m *MemoryStore) ListOrdersForCallbackRetry(_ context.Context, maxAttempts int) ([]Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Order, 0)
	for _, o := range m.orders {
		if o.Status != OrderPaid {
			continue
		}
		if o.CallbackStatus != CallbackFailed && o.CallbackStatus != CallbackInFlight {
			continue
		}
		if o.CallbackAttempts >= maxAttempts {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) AppendCallbackLog(_ context.Context, log CallbackLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbackLogs[log.OrderID] = append(m.callbackLogs[log.OrderID], log)
	return nil
}

func (m *MemoryStore) ListCallbackLogsByOrder(_ context.Context, orderID string) ([]CallbackLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	logs := m.callbackLogs[orderID]
	out := make([]CallbackLog, len(logs))
	copy(out, logs)
	return out, nil
}

func (m *MemoryStore) AppendBalanceLog(_ context.Context, log BalanceLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balanceLogs = append(m.balanceLogs, log)
	return nil
}
