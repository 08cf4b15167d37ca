package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagebank/settlement/models"
)

func newAccount(t *testing.T, m *Memory, id, userID string, balance int64) *models.Account {
	t.Helper()
	a := &models.Account{
		ID:        id,
		UserID:    userID,
		Currency:  models.CurrencyUSD,
		Balance:   decimal.NewFromInt(balance),
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, m.CreateAccount(context.Background(), a))
	return a
}

func newRecord(id, from, to string, amount int64) *models.Transaction {
	return &models.Transaction{
		ID:          id,
		FromBank:    "VTB",
		FromAccount: from,
		ToBank:      "VTB",
		ToAccount:   to,
		Amount:      decimal.NewFromInt(amount),
		Currency:    models.CurrencyUSD,
		Status:      models.StatusCompleted,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestAdjustBalanceGuard(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	newAccount(t, m, "VTB-a", "u1", 100)

	require.NoError(t, m.AdjustBalance(ctx, "VTB-a", decimal.NewFromInt(-60)))

	err := m.AdjustBalance(ctx, "VTB-a", decimal.NewFromInt(-41))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	a, err := m.GetAccount(ctx, "VTB-a")
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(decimal.NewFromInt(40)), "balance=%s", a.Balance)

	err = m.AdjustBalance(ctx, "VTB-missing", decimal.NewFromInt(1))
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestCreateTransactionDuplicate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	rec := newRecord("tx-1", "VTB-a", "VTB-b", 10)
	require.NoError(t, m.CreateTransaction(ctx, rec))
	require.ErrorIs(t, m.CreateTransaction(ctx, rec), ErrDuplicateTransaction)
}

func TestUpdateTransactionStatusLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	rec := newRecord("tx-1", "VTB-a", "NBX-b", 10)
	rec.Status = models.StatusPending
	require.NoError(t, m.CreateTransaction(ctx, rec))

	require.NoError(t, m.UpdateTransactionStatus(ctx, "tx-1", models.StatusInProgress, "", ""))
	require.NoError(t, m.UpdateTransactionStatus(ctx, "tx-1", models.StatusFailed, "CENTRAL_BANK_ERROR", "relay down"))

	// FAILED is terminal; nothing may rewrite it.
	err := m.UpdateTransactionStatus(ctx, "tx-1", models.StatusCompleted, "", "")
	require.ErrorIs(t, err, ErrInvalidTransition)

	got, err := m.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "CENTRAL_BANK_ERROR", got.ErrorCode)
}

func TestTransferInternalAtomic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	newAccount(t, m, "VTB-a", "u1", 100)
	newAccount(t, m, "VTB-b", "u2", 0)

	require.NoError(t, m.TransferInternal(ctx, newRecord("tx-ok", "VTB-a", "VTB-b", 50)))

	a, _ := m.GetAccount(ctx, "VTB-a")
	b, _ := m.GetAccount(ctx, "VTB-b")
	assert.True(t, a.Balance.Equal(decimal.NewFromInt(50)))
	assert.True(t, b.Balance.Equal(decimal.NewFromInt(50)))

	// Insufficient funds: nothing moves, nothing is recorded.
	err := m.TransferInternal(ctx, newRecord("tx-bad", "VTB-a", "VTB-b", 500))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	_, err = m.GetTransaction(ctx, "tx-bad")
	require.ErrorIs(t, err, ErrTransactionNotFound)

	a, _ = m.GetAccount(ctx, "VTB-a")
	assert.True(t, a.Balance.Equal(decimal.NewFromInt(50)))
}

func TestAcceptIncomingDuplicateCreditsOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	newAccount(t, m, "VTB-b", "u2", 0)

	rec := newRecord("tx-in", "NBX-x", "VTB-b", 25)
	require.NoError(t, m.AcceptIncoming(ctx, rec))
	require.ErrorIs(t, m.AcceptIncoming(ctx, rec), ErrDuplicateTransaction)

	b, _ := m.GetAccount(ctx, "VTB-b")
	assert.True(t, b.Balance.Equal(decimal.NewFromInt(25)), "destination credited exactly once, got %s", b.Balance)
}

func TestListTransactionsByAccount(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.CreateTransaction(ctx, newRecord("t1", "VTB-a", "VTB-b", 1)))
	require.NoError(t, m.CreateTransaction(ctx, newRecord("t2", "VTB-b", "VTB-c", 2)))
	require.NoError(t, m.CreateTransaction(ctx, newRecord("t3", "VTB-c", "VTB-a", 3)))

	txs, err := m.ListTransactionsByAccount(ctx, "VTB-a", 10)
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	txs, err = m.ListTransactionsByAccount(ctx, "VTB-b", 1)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}
