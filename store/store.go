// Package store persists accounts and transaction records.
//
// Two implementations share one contract: a Postgres store used in
// production and an in-memory store used in tests and for local runs
// without a database. Balance mutations go through AdjustBalance, which
// enforces the non-negative invariant atomically; multi-entity operations
// (internal transfer, incoming acceptance) commit as a single unit or not
// at all.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/vantagebank/settlement/models"
)

var (
	// ErrAccountNotFound indicates the account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTransactionNotFound indicates no record exists for the id.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrDuplicateTransaction indicates a record with the same id already
	// exists. The transaction id is the idempotency key.
	ErrDuplicateTransaction = errors.New("duplicate transaction id")

	// ErrInsufficientBalance indicates the adjustment would drive the
	// balance below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidTransition indicates a status write that would revisit a
	// terminal state or skip the lifecycle order.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store is the persistence contract for the settlement service.
type Store interface {
	CreateAccount(ctx context.Context, a *models.Account) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)

	// AdjustBalance applies delta (negative for a debit) to the account
	// balance. The write is atomic and guarded: a result below zero fails
	// with ErrInsufficientBalance and leaves the balance untouched.
	AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) error

	CreateTransaction(ctx context.Context, t *models.Transaction) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	ListTransactionsByAccount(ctx context.Context, accountID string, limit int) ([]*models.Transaction, error)

	// UpdateTransactionStatus transitions a record. Terminal records are
	// never rewritten; an illegal move fails with ErrInvalidTransition.
	UpdateTransactionStatus(ctx context.Context, id string, status models.Status, errCode, errMsg string) error

	// AttachSignature stores the signature computed for an outgoing record.
	AttachSignature(ctx context.Context, id, signature string) error

	// TransferInternal debits t.FromAccount, credits t.ToAccount and
	// persists t in one atomic unit. On any failure nothing is persisted.
	TransferInternal(ctx context.Context, t *models.Transaction) error

	// AcceptIncoming credits t.ToAccount and persists t (already terminal)
	// in one atomic unit. A duplicate id fails with
	// ErrDuplicateTransaction before any balance change.
	AcceptIncoming(ctx context.Context, t *models.Transaction) error
}
