package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vantagebank/settlement/models"
)

// Callers validate same-account transfers earlier; this guard only keeps
// the lock ordering sound.
var errSameAccount = errors.New("transfer within one account")

// Memory is an in-memory Store. Balance mutations are serialized with a
// per-account mutex; the transaction map has its own lock. Lock order is
// always account locks (sorted by id) before the transaction lock.
type Memory struct {
	accMu    sync.Mutex // guards accounts map and lock table
	accounts map[string]*models.Account
	locks    map[string]*sync.Mutex

	txMu sync.Mutex
	txs  map[string]*models.Transaction
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]*models.Account),
		locks:    make(map[string]*sync.Mutex),
		txs:      make(map[string]*models.Transaction),
	}
}

// lockFor returns the mutex serializing mutations of one account.
func (m *Memory) lockFor(id string) *sync.Mutex {
	m.accMu.Lock()
	defer m.accMu.Unlock()
	mu, ok := m.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[id] = mu
	}
	return mu
}

func (m *Memory) getAccount(id string) (*models.Account, bool) {
	m.accMu.Lock()
	defer m.accMu.Unlock()
	a, ok := m.accounts[id]
	return a, ok
}

// CreateAccount registers a new account. The id must already be assigned.
func (m *Memory) CreateAccount(_ context.Context, a *models.Account) error {
	m.accMu.Lock()
	defer m.accMu.Unlock()
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

// GetAccount returns a snapshot of the account state.
func (m *Memory) GetAccount(_ context.Context, id string) (*models.Account, error) {
	mu := m.lockFor(id)
	mu.Lock()
	defer mu.Unlock()
	a, ok := m.getAccount(id)
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

// AdjustBalance applies delta under the account lock, refusing any result
// below zero.
func (m *Memory) AdjustBalance(_ context.Context, id string, delta decimal.Decimal) error {
	mu := m.lockFor(id)
	mu.Lock()
	defer mu.Unlock()
	a, ok := m.getAccount(id)
	if !ok {
		return ErrAccountNotFound
	}
	next := a.Balance.Add(delta)
	if next.IsNegative() {
		return ErrInsufficientBalance
	}
	a.Balance = next
	return nil
}

// CreateTransaction inserts a record, first-writer-wins on the id.
func (m *Memory) CreateTransaction(_ context.Context, t *models.Transaction) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return m.insertLocked(t)
}

func (m *Memory) insertLocked(t *models.Transaction) error {
	if _, exists := m.txs[t.ID]; exists {
		return ErrDuplicateTransaction
	}
	cp := *t
	m.txs[t.ID] = &cp
	return nil
}

// GetTransaction returns a snapshot of the record.
func (m *Memory) GetTransaction(_ context.Context, id string) (*models.Transaction, error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	t, ok := m.txs[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *t
	return &cp, nil
}

// ListTransactionsByAccount returns records touching the account, newest
// first.
func (m *Memory) ListTransactionsByAccount(_ context.Context, accountID string, limit int) ([]*models.Transaction, error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	var out []*models.Transaction
	for _, t := range m.txs {
		if t.FromAccount == accountID || t.ToAccount == accountID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateTransactionStatus transitions a record, enforcing the monotonic
// lifecycle.
func (m *Memory) UpdateTransactionStatus(_ context.Context, id string, status models.Status, errCode, errMsg string) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	t, ok := m.txs[id]
	if !ok {
		return ErrTransactionNotFound
	}
	if !t.Status.CanTransitionTo(status) {
		return ErrInvalidTransition
	}
	t.Status = status
	t.ErrorCode = errCode
	t.ErrorMessage = errMsg
	return nil
}

// AttachSignature stores the signature on an existing record.
func (m *Memory) AttachSignature(_ context.Context, id, signature string) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	t, ok := m.txs[id]
	if !ok {
		return ErrTransactionNotFound
	}
	t.Signature = signature
	return nil
}

// TransferInternal moves funds between two local accounts and records the
// transaction, all under both account locks so either everything commits or
// nothing does.
func (m *Memory) TransferInternal(_ context.Context, t *models.Transaction) error {
	if t.FromAccount == t.ToAccount {
		return errSameAccount
	}
	first, second := t.FromAccount, t.ToAccount
	if second < first {
		first, second = second, first
	}
	muA, muB := m.lockFor(first), m.lockFor(second)
	muA.Lock()
	defer muA.Unlock()
	muB.Lock()
	defer muB.Unlock()

	from, ok := m.getAccount(t.FromAccount)
	if !ok {
		return ErrAccountNotFound
	}
	to, ok := m.getAccount(t.ToAccount)
	if !ok {
		return ErrAccountNotFound
	}
	next := from.Balance.Sub(t.Amount)
	if next.IsNegative() {
		return ErrInsufficientBalance
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()
	if err := m.insertLocked(t); err != nil {
		return err
	}
	from.Balance = next
	to.Balance = to.Balance.Add(t.Amount)
	return nil
}

// AcceptIncoming credits the destination and records the terminal
// transaction as one accepted unit.
func (m *Memory) AcceptIncoming(_ context.Context, t *models.Transaction) error {
	mu := m.lockFor(t.ToAccount)
	mu.Lock()
	defer mu.Unlock()

	to, ok := m.getAccount(t.ToAccount)
	if !ok {
		return ErrAccountNotFound
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()
	if err := m.insertLocked(t); err != nil {
		return err
	}
	to.Balance = to.Balance.Add(t.Amount)
	return nil
}
