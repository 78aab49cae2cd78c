package callbacks

import (
	"context"
	"encoding/json"
	"time"
)

// FailedWebhook is a notify attempt that exhausted its retry schedule
// without the merchant ever returning "success". It is kept around for
// operator inspection and manual re-notify, keyed by trade_no rather than a
// synthetic event id since a gateway order has exactly one notify target.
type FailedWebhook struct {
	ID          string          `json:"id"`
	TradeNo     string          `json:"trade_no"`
	URL         string          `json:"url"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"last_error"`
	LastAttempt time.Time       `json:"last_attempt"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DLQStore persists notify attempts that ran out their retry schedule
// (callback_attempts reached the configured ceiling without success) so an
// operator can inspect and manually re-notify.
type DLQStore interface {
	SaveFailedWebhook(ctx context.Context, webhook FailedWebhook) error
	ListFailedWebhooks(ctx context.Context, limit int) ([]FailedWebhook, error)
	DeleteFailedWebhook(ctx context.Context, id string) error
}
