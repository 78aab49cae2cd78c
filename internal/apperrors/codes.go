// Package apperrors defines the gateway's domain error taxonomy: a closed
// set of machine-readable codes the HTTP surface maps onto the flat
// {code:-1,msg} envelope, and that background tasks use to decide whether
// to log-and-continue or log-and-alert.
package apperrors

import "fmt"

// Code is a machine-readable domain error identifier.
type Code string

// Order Engine errors (§4.2).
const (
	CodeAmountConflict   Code = "amount_conflict"
	CodeMerchantInactive Code = "merchant_inactive"
	CodeMerchantMissing  Code = "merchant_missing"
	CodeCredentialMissing Code = "credential_missing"
	CodeInvalidAmount    Code = "invalid_amount"
	CodeTradeNoExhausted Code = "trade_no_exhausted"
)

// Request validation errors (HTTP boundary).
const (
	CodeMissingField  Code = "missing_field"
	CodeInvalidField  Code = "invalid_field"
	CodeBadSignature  Code = "bad_signature"
	CodeOrderNotFound Code = "order_not_found"
)

// Wallet/external errors.
const (
	CodeWalletTransient Code = "wallet_transient"
	CodeWalletHard      Code = "wallet_hard"
)

// Internal/system errors.
const (
	CodeInternal Code = "internal_error"
)

// Error wraps a Code with a human-readable message. It implements the error
// interface so callers can use errors.As to recover the code at the HTTP
// boundary.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// New constructs a tagged domain error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf is New with fmt-style formatting.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
