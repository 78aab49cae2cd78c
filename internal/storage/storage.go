// Package storage persists the gateway's five entities (Merchant,
// Credential, Order, CallbackLog, BalanceLog) behind a single Store
// interface, with Memory, Postgres, and MongoDB backends selected at
// wiring time.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/qiupay/gateway/internal/config"
)

// ErrNotFound is returned when a requested entity is missing from the store.
var ErrNotFound = errors.New("storage: not found")

// ErrAmountConflict is returned by CreateOrder when the Postgres backend's
// partial unique index rejects a (credential_id, money) collision that
// slipped past the order engine's in-process locking (e.g. a second
// gateway instance racing the same credential).
var ErrAmountConflict = errors.New("storage: amount conflict")

// OrderStatus is the Order lifecycle state. Transitions are monotonic:
// 0->1 or 0->2; 1 and 2 are terminal.
type OrderStatus int

const (
	OrderPending OrderStatus = 0
	OrderPaid    OrderStatus = 1
	OrderExpired OrderStatus = 2
)

// CallbackStatus tracks webhook delivery for a paid order.
type CallbackStatus int

const (
	CallbackNone     CallbackStatus = 0
	CallbackOK       CallbackStatus = 1
	CallbackFailed   CallbackStatus = 2
	CallbackInFlight CallbackStatus = 3
)

// Merchant is destroyed never; deactivation is soft (Active=false).
type Merchant struct {
	ID        string
	Username  string
	Key       string // 32-hex secret used for Sign/Verify
	Active    bool
	Money     int64 // virtual balance, integer cents, authoritative settlement record
	CreatedAt time.Time
}

// Credential is the operator-side wallet identity (QR URL + RSA key pair +
// wallet app id) under which incoming money is observed. PublicKey/
// PrivateKey are stored enciphered (see internal/credstore); a merchant may
// own many but at most one active at a time in the resolver's
// newest-active-wins selection strategy.
type Credential struct {
	ID                  string
	MerchantID          string
	QRCodeURL           string
	AppID               string
	PublicKeyEncrypted  string
	PrivateKeyEncrypted string
	Active              bool
	CreatedAt           time.Time
}

// Order is a single payment request. OriginalMoney/Money/AdjustAmount/
// BaseBalance/ConfirmBalance are all integer cents.
type Order struct {
	ID               string
	TradeNo          string // unique platform id
	OutTradeNo       string // merchant-supplied id
	MerchantID       string
	CredentialID     string
	Type             string // merchant-supplied product type, echoed in the notify payload
	Name             string // merchant-supplied product name, echoed in the notify payload
	OriginalMoney    int64
	Money            int64 // OriginalMoney + AdjustAmount
	AdjustAmount     int64
	Status           OrderStatus
	BaseBalance      int64 // wallet available balance snapshot at creation
	ConfirmBalance   int64 // wallet available balance at time of match
	NotifyURL        string
	ReturnURL        string
	Param            string
	PaidAt           *time.Time
	ExpiredAt        *time.Time
	CreatedAt        time.Time
	CallbackStatus   CallbackStatus
	CallbackAttempts int
}

// CallbackLog is an append-only record of a single webhook delivery attempt.
type CallbackLog struct {
	ID           string
	OrderID      string
	Attempt      int
	URL          string
	HTTPStatus   int
	ResponseBody string
	CreatedAt    time.Time
}

// BalanceLog is an append-only audit trail of every reconciliation query:
// what balance was observed, and which orders (if any) were attributed to
// the observed delta.
type BalanceLog struct {
	ID              string
	CredentialID    string
	AvailableAmount int64
	MatchResult     string // free text: "matched: ...", "no match", "no pending orders", "no positive change", or a "... failure: ..." description
	MatchedTradeNos []string
	CreatedAt       time.Time
}

// Store is the persistence contract the order engine, reconciler, poller,
// callback engine, and credential resolver depend on.
type Store interface {
	// Merchant
	CreateMerchant(ctx context.Context, m Merchant) error
	GetMerchant(ctx context.Context, id string) (Merchant, error)
	GetMerchantByUsername(ctx context.Context, username string) (Merchant, error)
	SetMerchantActive(ctx context.Context, id string, active bool) error
	// CreditMerchant atomically adds amount (integer cents, may be negative
	// in principle but the gateway only ever credits) to the merchant's
	// virtual balance.
	CreditMerchant(ctx context.Context, id string, amount int64) error

	// Credential
	CreateCredential(ctx context.Context, c Credential) error
	GetCredential(ctx context.Context, id string) (Credential, error)
	ListCredentialsByMerchant(ctx context.Context, merchantID string) ([]Credential, error)
	SetCredentialActive(ctx context.Context, id string, active bool) error

	// Order
	CreateOrder(ctx context.Context, o Order) error
	GetOrderByTradeNo(ctx context.Context, tradeNo string) (Order, error)
	// GetOrderByOutTradeNo looks up an order by the merchant's own order id,
	// scoped to merchantID since out_trade_no is only unique per merchant.
	GetOrderByOutTradeNo(ctx context.Context, merchantID, outTradeNo string) (Order, error)
	// CountOrdersByMerchant counts merchantID's orders created at or after
	// since, or all of them if since is the zero Time.
	CountOrdersByMerchant(ctx context.Context, merchantID string, since time.Time) (int, error)
	// ListPendingOrdersByCredential returns PENDING orders for a credential
	// group ordered by ascending created_at, the order the amount ladder
	// and subset-sum matcher both depend on.
	ListPendingOrdersByCredential(ctx context.Context, credentialID string) ([]Order, error)
	// MarkOrdersPaid atomically flips every trade_no in tradeNos to PAID,
	// records confirmBalance and paidAt, and credits each order's merchant
	// by its Money. All-or-nothing.
	MarkOrdersPaid(ctx context.Context, tradeNos []string, confirmBalance int64, paidAt time.Time) error
	// ExpirePendingOlderThan flips every PENDING order created before
	// cutoff to EXPIRED and returns their trade_nos. Idempotent.
	ExpirePendingOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
	// RebaseCredentialBalance overwrites base_balance for every remaining
	// PENDING order in a credential group. Never touches credential_id.
	RebaseCredentialBalance(ctx context.Context, credentialID string, newBaseBalance int64) error
	UpdateCallbackStatus(ctx context.Context, tradeNo string, status CallbackStatus, attempts int) error
	// ListOrdersForCallbackRetry returns PAID orders whose callback is not
	// yet resolved (callback_status is FAILED or IN_FLIGHT) and whose
	// callback_attempts is below maxAttempts — the scan the callback
	// engine's retry loop polls on its fixed schedule.
	ListOrdersForCallbackRetry(ctx context.Context, maxAttempts int) ([]Order, error)

	// CallbackLog
	AppendCallbackLog(ctx context.Context, log CallbackLog) error
	ListCallbackLogsByOrder(ctx context.Context, orderID string) ([]CallbackLog, error)

	// BalanceLog
	AppendBalanceLog(ctx context.Context, log BalanceLog) error

	Close() error
}

// StoreConfig holds storage backend configuration.
type StoreConfig struct {
	Backend         string // "memory", "postgres", or "mongodb"
	PostgresURL     string
	MongoDBURL      string
	MongoDBDatabase string
	PostgresPool    config.PostgresPoolConfig
	SchemaMapping   config.SchemaMappingConfig
}

// NewStore creates a Store instance based on the provided configuration.
func NewStore(cfg StoreConfig) (Store, error) {
	return NewStoreWithDB(cfg, nil)
}

// NewStoreWithDB creates a Store instance with an optional shared Postgres
// pool. Pass nil to let the backend create its own connection.
func NewStoreWithDB(cfg StoreConfig, sharedDB *sql.DB) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("postgres backend requires postgres_url")
		}
		var store *PostgresStore
		var err error
		if sharedDB != nil {
			store, err = NewPostgresStoreWithDB(sharedDB, cfg.SchemaMapping)
		} else {
			store, err = NewPostgresStore(cfg.PostgresURL, cfg.PostgresPool, cfg.SchemaMapping)
		}
		return store, err
	case "mongodb":
		if cfg.MongoDBURL == "" {
			return nil, fmt.Errorf("mongodb backend requires mongodb_url")
		}
		if cfg.MongoDBDatabase == "" {
			return nil, fmt.Errorf("mongodb backend requires mongodb_database")
		}
		return NewMongoStore(cfg.MongoDBURL, cfg.MongoDBDatabase)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
