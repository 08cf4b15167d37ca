package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vantagebank/settlement/settlement"
)

// errorEnvelope is the wire shape for failures: {error: {code, message,
// transactionId?}}.
type errorEnvelope struct {
	Error settlement.Error `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response failed", "error", err)
	}
}

// writeError maps a settlement error code to an HTTP status and renders the
// error envelope. Unknown errors become an opaque 500.
func writeError(w http.ResponseWriter, err error) {
	var se *settlement.Error
	if !errors.As(err, &se) {
		slog.Error("unhandled error", "error", err)
		se = &settlement.Error{Code: settlement.CodeInternal, Message: "internal error"}
	}
	writeJSON(w, statusFor(se.Code), errorEnvelope{Error: *se})
}

func statusFor(code string) int {
	switch code {
	case settlement.CodeValidation, settlement.CodeCurrencyMismatch:
		return http.StatusBadRequest
	case settlement.CodeNotFound:
		return http.StatusNotFound
	case settlement.CodeForbidden:
		return http.StatusForbidden
	case settlement.CodeInsufficientFunds:
		return http.StatusUnprocessableEntity
	case settlement.CodeInvalidSignature:
		return http.StatusUnauthorized
	case settlement.CodeRateLimited:
		return http.StatusTooManyRequests
	case settlement.CodeCentralBank:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
