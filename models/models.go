// Package models defines the settlement data model: accounts, transactions,
// the wire payload exchanged with the central relay, and the transaction
// status machine.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Currencies accepted by this bank.
const (
	CurrencyUSD = "USD"
	CurrencyEUR = "EUR"
	CurrencyGBP = "GBP"
)

// ValidCurrency reports whether c is one of the supported currencies.
func ValidCurrency(c string) bool {
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyGBP:
		return true
	}
	return false
}

// Account holds one customer balance in a single currency.
// The balance is never negative; only the ledger mutates it.
type Account struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewAccountID returns a fresh bank-prefixed account identifier.
// Identifier assignment is explicit: callers build the account with the id
// already set, there is no hook inside the storage layer.
func NewAccountID(bankCode string) string {
	return bankCode + "-" + uuid.NewString()
}

// NewTransactionID returns a fresh globally unique transaction identifier.
func NewTransactionID() string {
	return uuid.NewString()
}

// BankFromAccountID extracts the bank prefix embedded in an account
// identifier ("VTB-..." -> "VTB"). Returns "" if the id carries no prefix.
func BankFromAccountID(accountID string) string {
	prefix, _, found := strings.Cut(accountID, "-")
	if !found {
		return ""
	}
	return prefix
}

// Transaction is the persisted record of one transfer attempt.
// The id is the idempotency key; no two records share one.
type Transaction struct {
	ID           string          `json:"id"`
	FromBank     string          `json:"from_bank"`
	FromAccount  string          `json:"from_account"`
	ToBank       string          `json:"to_bank"`
	ToAccount    string          `json:"to_account"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Description  string          `json:"description"`
	Status       Status          `json:"status"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Signature    string          `json:"signature,omitempty"`
	External     bool            `json:"external"`
	UserID       string          `json:"user_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TransferRequest is what a client sends to initiate a transfer.
// UserID comes from the authenticated session, not the request body.
type TransferRequest struct {
	FromAccount string          `json:"from_account"`
	ToAccount   string          `json:"to_account"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	UserID      string          `json:"-"`
}

// TransferPayload is the canonical payload shape exchanged with the central
// relay, both outgoing and on the incoming callback. Timestamp travels as
// the RFC3339 UTC string it was signed with.
type TransferPayload struct {
	TransactionID string          `json:"transactionId"`
	FromBank      string          `json:"fromBank"`
	FromAccount   string          `json:"fromAccount"`
	ToBank        string          `json:"toBank"`
	ToAccount     string          `json:"toAccount"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description"`
	Timestamp     string          `json:"timestamp"`
	Signature     string          `json:"signature,omitempty"`
}

// PayloadFromTransaction builds the relay payload for an outgoing record.
func PayloadFromTransaction(t *Transaction) TransferPayload {
	return TransferPayload{
		TransactionID: t.ID,
		FromBank:      t.FromBank,
		FromAccount:   t.FromAccount,
		ToBank:        t.ToBank,
		ToAccount:     t.ToAccount,
		Amount:        t.Amount,
		Currency:      t.Currency,
		Description:   t.Description,
		Timestamp:     t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// RelayAck is the synchronous acknowledgment for a transfer, returned by the
// relay on dispatch and by this bank on the incoming callback.
type RelayAck struct {
	TransactionID string `json:"transactionId"`
	Status        Status `json:"status"`
}

// RelayError is the error envelope a non-success relay response carries.
type RelayError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (t *Transaction) String() string {
	return fmt.Sprintf("%s %s %s->%s %s", t.ID, t.Status, t.FromAccount, t.ToAccount, t.Amount)
}
