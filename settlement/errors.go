package settlement

import "fmt"

// Error codes surfaced to callers and written onto failed transaction
// records.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeInsufficientFunds  = "INSUFFICIENT_FUNDS"
	CodeCurrencyMismatch   = "CURRENCY_MISMATCH"
	CodeInvalidSignature   = "INVALID_SIGNATURE"
	CodeCentralBank        = "CENTRAL_BANK_ERROR"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeCompensationFailed = "COMPENSATION_FAILED"
)

// Error is the settlement failure surfaced to callers as
// {code, message, transactionId?}. TransactionID is set once a record
// exists for the attempt.
type Error struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	TransactionID string `json:"transactionId,omitempty"`
}

func (e *Error) Error() string {
	if e.TransactionID != "" {
		return fmt.Sprintf("%s: %s (transaction %s)", e.Code, e.Message, e.TransactionID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newErr(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func newTxErr(code, message, txID string) *Error {
	return &Error{Code: code, Message: message, TransactionID: txID}
}
