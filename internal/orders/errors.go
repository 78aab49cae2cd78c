package orders

import "github.com/qiupay/gateway/internal/apperrors"

// ErrAmountConflict is returned by CreateOrder when all 100 amount-ladder
// slots for a credential's original money value are occupied by other
// PENDING orders.
var ErrAmountConflict = apperrors.New(apperrors.CodeAmountConflict, "too many concurrent orders at this amount, please retry")

// ErrMerchantInactive is returned when the merchant exists but is deactivated.
var ErrMerchantInactive = apperrors.New(apperrors.CodeMerchantInactive, "merchant is inactive")

// ErrMerchantMissing is returned when pid does not resolve to a merchant.
var ErrMerchantMissing = apperrors.New(apperrors.CodeMerchantMissing, "merchant not found")

// ErrCredentialMissing is returned when the merchant has no active wallet
// credential configured.
var ErrCredentialMissing = apperrors.New(apperrors.CodeCredentialMissing, "no active payment credential configured")

// ErrInvalidAmount is returned when money fails to parse as a positive
// 2-decimal amount.
var ErrInvalidAmount = apperrors.New(apperrors.CodeInvalidAmount, "invalid amount")

// ErrTradeNoExhausted is returned when 10 consecutive trade_no generation
// attempts all collided, which in practice indicates a broken random source
// rather than genuine contention.
var ErrTradeNoExhausted = apperrors.New(apperrors.CodeTradeNoExhausted, "failed to generate a unique trade number")
