package observability

import (
	"context"
	"time"
)

// Hook is the base interface for all observability hooks. Implementations
// can forward events to Prometheus, OpenTelemetry, DataDog, or a log sink.
type Hook interface {
	// Name returns the hook's identifier for logging/debugging.
	Name() string
}

// OrderHook receives events from the order lifecycle.
type OrderHook interface {
	Hook

	// OnOrderCreated is called when a new order is accepted and a
	// collision-free adjusted amount has been assigned.
	OnOrderCreated(ctx context.Context, event OrderCreatedEvent)

	// OnOrderExpired is called when the sweep retires a stale PENDING order.
	OnOrderExpired(ctx context.Context, event OrderExpiredEvent)
}

// ReconciliationHook receives events from the balance-matching loop.
type ReconciliationHook interface {
	Hook

	// OnReconciliationCheck is called after every CheckPayment attempt,
	// whether or not it found a match.
	OnReconciliationCheck(ctx context.Context, event ReconciliationCheckEvent)
}

// WebhookHook receives events during notify callback delivery.
type WebhookHook interface {
	Hook

	// OnWebhookQueued is called when a notify attempt is handed to the client.
	OnWebhookQueued(ctx context.Context, event WebhookQueuedEvent)

	// OnWebhookDelivered is called when a merchant acknowledges with "success".
	OnWebhookDelivered(ctx context.Context, event WebhookDeliveredEvent)

	// OnWebhookFailed is called when a notify attempt fails.
	OnWebhookFailed(ctx context.Context, event WebhookFailedEvent)

	// OnWebhookRetried is called when a failed attempt is scheduled for retry.
	OnWebhookRetried(ctx context.Context, event WebhookRetriedEvent)
}

// WalletHook receives events from calls to a wallet provider's balance
// endpoint.
type WalletHook interface {
	Hook

	// OnWalletQuery is called after every balance.query call.
	OnWalletQuery(ctx context.Context, event WalletQueryEvent)
}

// StorageHook receives events from storage backend operations.
type StorageHook interface {
	Hook

	// OnStorageQuery is called for storage backend operations.
	OnStorageQuery(ctx context.Context, event StorageQueryEvent)
}

// OrderCreatedEvent is emitted when a new order is persisted.
type OrderCreatedEvent struct {
	Timestamp    time.Time
	TradeNo      string
	OutTradeNo   string
	MerchantID   string
	CredentialID string
	Amount       string // major-unit decimal string, e.g. "20.00"
}

// OrderExpiredEvent is emitted when the sweep retires a PENDING order.
type OrderExpiredEvent struct {
	Timestamp time.Time
	TradeNo   string
	Age       time.Duration
}

// ReconciliationCheckEvent is emitted after a balance-matching attempt.
type ReconciliationCheckEvent struct {
	Timestamp    time.Time
	CredentialID string
	Matched      bool
	TradeNo      string // set only if Matched
	Duration     time.Duration
	Error        string // set if the wallet query itself failed
}

// WebhookQueuedEvent is emitted when a notify attempt is handed to the client.
type WebhookQueuedEvent struct {
	Timestamp time.Time
	TradeNo   string
	URL       string
	Attempt   int
}

// WebhookDeliveredEvent is emitted when a notify attempt is acknowledged.
type WebhookDeliveredEvent struct {
	Timestamp time.Time
	TradeNo   string
	URL       string
	Attempt   int
	Duration  time.Duration
}

// WebhookFailedEvent is emitted when a notify attempt fails.
type WebhookFailedEvent struct {
	Timestamp    time.Time
	TradeNo      string
	URL          string
	Attempt      int
	Error        string
	FinalFailure bool // true once the retry schedule is exhausted
}

// WebhookRetriedEvent is emitted when a failed attempt is scheduled for retry.
type WebhookRetriedEvent struct {
	Timestamp      time.Time
	TradeNo        string
	CurrentAttempt int
	MaxAttempts    int
	NextRetryAt    time.Time
}

// WalletQueryEvent is emitted for every balance.query call.
type WalletQueryEvent struct {
	Timestamp    time.Time
	CredentialID string
	Duration     time.Duration
	Success      bool
	ErrorType    string // "timeout", "circuit_open", "connection", "other"
}

// StorageQueryEvent is emitted for storage backend operations.
type StorageQueryEvent struct {
	Timestamp time.Time
	Operation string // "get", "list", "save", "delete", etc.
	Backend   string // "postgres", "mongodb", "memory"
	Duration  time.Duration
	Success   bool
	Error     string
	// OpenConnections is the backend's current open connection pool size,
	// if it exposes one. Zero means "not reported", not "zero connections".
	OpenConnections int
}
