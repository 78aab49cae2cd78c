package orders

import (
	"context"
	"fmt"
)

// adjustAmount scans PENDING siblings of credentialID in
// [originalCents, originalCents+99] and returns the smallest k in
// [0, maxSteps) such that originalCents+k is unoccupied. Callers must hold
// the credential's keyed lock for the duration of this call through order
// insertion, or two concurrent callers can both pick the same k.
func (e *Engine) adjustAmount(ctx context.Context, credentialID string, originalCents int64, maxSteps int) (adjustedCents int64, err error) {
	pending, err := e.store.ListPendingOrdersByCredential(ctx, credentialID)
	if err != nil {
		return 0, fmt.Errorf("orders: list pending orders: %w", err)
	}

	occupied := make(map[int64]bool, len(pending))
	upperBound := originalCents + int64(maxSteps) - 1
	for _, o := range pending {
		if o.Money >= originalCents && o.Money <= upperBound {
			occupied[o.Money] = true
		}
	}

	for k := 0; k < maxSteps; k++ {
		candidate := originalCents + int64(k)
		if !occupied[candidate] {
			return candidate, nil
		}
	}
	return 0, ErrAmountConflict
}
