// Package ledger enforces the balance invariants over the account store.
// It owns all balance mutation: debit and credit are the only ways money
// moves on a single account, and neither can drive a balance below zero.
// Currency compatibility is the caller's responsibility.
package ledger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/vantagebank/settlement/store"
)

var (
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientFunds indicates the debit exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAccountNotFound indicates the account does not exist.
	ErrAccountNotFound = errors.New("account not found")
)

// Ledger applies debits and credits through the store's atomic guarded
// writes.
type Ledger struct {
	store store.Store
	log   *slog.Logger
}

// New returns a Ledger over the given store.
func New(s store.Store, log *slog.Logger) *Ledger {
	return &Ledger{store: s, log: log.With("component", "ledger")}
}

// Debit atomically decrements the account balance. The store's guard
// serializes the check-then-mutate, so concurrent debits can never
// interleave past the non-negative invariant.
func (l *Ledger) Debit(ctx context.Context, accountID string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if err := l.store.AdjustBalance(ctx, accountID, amount.Neg()); err != nil {
		return mapStoreErr(err)
	}
	l.log.Debug("debit applied", "account", accountID, "amount", amount)
	return nil
}

// Credit atomically increments the account balance.
func (l *Ledger) Credit(ctx context.Context, accountID string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if err := l.store.AdjustBalance(ctx, accountID, amount); err != nil {
		return mapStoreErr(err)
	}
	l.log.Debug("credit applied", "account", accountID, "amount", amount)
	return nil
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrInsufficientBalance):
		return ErrInsufficientFunds
	case errors.Is(err, store.ErrAccountNotFound):
		return ErrAccountNotFound
	}
	return err
}
