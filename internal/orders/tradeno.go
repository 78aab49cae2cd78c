package orders

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/qiupay/gateway/internal/storage"
)

// generateTradeNo produces a unique platform order id: a microsecond
// timestamp followed by a 6-digit random suffix, retrying on the
// vanishingly unlikely collision up to cfg.TradeNoRetries times.
func (e *Engine) generateTradeNo(ctx context.Context) (string, error) {
	for i := 0; i < e.cfg.TradeNoRetries; i++ {
		timestamp := stripDot(time.Now().Format("20060102150405.000000"))
		candidate := fmt.Sprintf("%s%06d", timestamp, rand.IntN(1_000_000))

		_, err := e.store.GetOrderByTradeNo(ctx, candidate)
		if err == storage.ErrNotFound {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("orders: check trade_no uniqueness: %w", err)
		}
	}
	return "", ErrTradeNoExhausted
}

// stripDot removes the decimal point Go's time formatting leaves in
// "20060102150405.000000", producing the spec's flat
// YYYYMMDDHHMMSSffffff layout.
func stripDot(s string) string {
	out := make([]byte, 0, len(s))
	for _, b := range []byte(s) {
		if b != '.' {
			out = append(out, b)
		}
	}
	return string(out)
}
