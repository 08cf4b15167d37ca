package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/shopspring/decimal"

	"github.com/vantagebank/settlement/models"
)

// pgUniqueViolation is the Postgres error code for a unique constraint hit.
const pgUniqueViolation = "23505"

// Postgres is the production Store backed by Postgres through the pgx
// stdlib driver. Per-account serialization relies on guarded writes: the
// non-negative invariant sits in the UPDATE's WHERE clause, so no
// process-local lock is needed and the guard holds across instances.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// InitSchema creates the accounts and transactions tables if absent.
func (p *Postgres) InitSchema(ctx context.Context) error {
	queryAccounts := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		balance NUMERIC(20, 4) NOT NULL CHECK (balance >= 0),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`

	if _, err := p.db.ExecContext(ctx, queryAccounts); err != nil {
		return fmt.Errorf("create accounts table: %w", err)
	}

	queryTransactions := `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		from_bank TEXT NOT NULL,
		from_account TEXT NOT NULL,
		to_bank TEXT NOT NULL,
		to_account TEXT NOT NULL,
		amount NUMERIC(20, 4) NOT NULL CHECK (amount > 0),
		currency TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		error_code TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		signature TEXT NOT NULL DEFAULT '',
		external BOOLEAN NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`

	if _, err := p.db.ExecContext(ctx, queryTransactions); err != nil {
		return fmt.Errorf("create transactions table: %w", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (p *Postgres) CreateAccount(ctx context.Context, a *models.Account) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, currency, balance, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.UserID, a.Currency, a.Balance, a.Active, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (p *Postgres) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return getAccountTx(ctx, p.db, id)
}

// querier covers both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getAccountTx(ctx context.Context, q querier, id string) (*models.Account, error) {
	var a models.Account
	err := q.QueryRowContext(ctx,
		`SELECT id, user_id, currency, balance, active, created_at FROM accounts WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.UserID, &a.Currency, &a.Balance, &a.Active, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &a, nil
}

// AdjustBalance applies delta in a single guarded statement. Zero rows
// affected means either the account is missing or the balance would go
// negative; a follow-up existence check tells the two apart.
func (p *Postgres) AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) error {
	return adjustBalanceTx(ctx, p.db, id, delta)
}

func adjustBalanceTx(ctx context.Context, q querier, id string, delta decimal.Decimal) error {
	res, err := q.ExecContext(ctx,
		`UPDATE accounts SET balance = balance + $1 WHERE id = $2 AND balance + $1 >= 0`,
		delta, id)
	if err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}
	if rows == 0 {
		if _, err := getAccountTx(ctx, q, id); err != nil {
			return err
		}
		return ErrInsufficientBalance
	}
	return nil
}

func (p *Postgres) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	return insertTransactionTx(ctx, p.db, t)
}

func insertTransactionTx(ctx context.Context, q querier, t *models.Transaction) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO transactions
		 (id, from_bank, from_account, to_bank, to_account, amount, currency,
		  description, status, error_code, error_message, signature, external, user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID, t.FromBank, t.FromAccount, t.ToBank, t.ToAccount, t.Amount, t.Currency,
		t.Description, t.Status, t.ErrorCode, t.ErrorMessage, t.Signature, t.External, t.UserID, t.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateTransaction
	}
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (p *Postgres) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var t models.Transaction
	err := p.db.QueryRowContext(ctx,
		`SELECT id, from_bank, from_account, to_bank, to_account, amount, currency,
		        description, status, error_code, error_message, signature, external, user_id, created_at
		 FROM transactions WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.FromBank, &t.FromAccount, &t.ToBank, &t.ToAccount, &t.Amount, &t.Currency,
		&t.Description, &t.Status, &t.ErrorCode, &t.ErrorMessage, &t.Signature, &t.External, &t.UserID, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return &t, nil
}

func (p *Postgres) ListTransactionsByAccount(ctx context.Context, accountID string, limit int) ([]*models.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, from_bank, from_account, to_bank, to_account, amount, currency,
		        description, status, error_code, error_message, signature, external, user_id, created_at
		 FROM transactions
		 WHERE from_account = $1 OR to_account = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.FromBank, &t.FromAccount, &t.ToBank, &t.ToAccount, &t.Amount, &t.Currency,
			&t.Description, &t.Status, &t.ErrorCode, &t.ErrorMessage, &t.Signature, &t.External, &t.UserID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// UpdateTransactionStatus transitions a record. The terminal guard lives in
// the WHERE clause so a replayed write can never rewrite COMPLETED or
// FAILED.
func (p *Postgres) UpdateTransactionStatus(ctx context.Context, id string, status models.Status, errCode, errMsg string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE transactions SET status = $1, error_code = $2, error_message = $3
		 WHERE id = $4 AND status NOT IN ($5, $6)`,
		status, errCode, errMsg, id, models.StatusCompleted, models.StatusFailed)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if rows == 0 {
		if _, err := p.GetTransaction(ctx, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

func (p *Postgres) AttachSignature(ctx context.Context, id, signature string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE transactions SET signature = $1 WHERE id = $2`, signature, id)
	if err != nil {
		return fmt.Errorf("attach signature: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach signature: %w", err)
	}
	if rows == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// TransferInternal runs debit, credit and the record insert in one database
// transaction. Rollback by non-commit: a failed step persists nothing.
func (p *Postgres) TransferInternal(ctx context.Context, t *models.Transaction) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback() // no-op once committed

	if err := insertTransactionTx(ctx, tx, t); err != nil {
		return err
	}
	if err := adjustBalanceTx(ctx, tx, t.FromAccount, t.Amount.Neg()); err != nil {
		return err
	}
	if err := adjustBalanceTx(ctx, tx, t.ToAccount, t.Amount); err != nil {
		return err
	}
	return tx.Commit()
}

// AcceptIncoming credits the destination and inserts the terminal record in
// one database transaction. The unique id makes concurrent replays of the
// same transfer collapse to a single credit.
func (p *Postgres) AcceptIncoming(ctx context.Context, t *models.Transaction) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin acceptance: %w", err)
	}
	defer tx.Rollback()

	if err := insertTransactionTx(ctx, tx, t); err != nil {
		return err
	}
	if err := adjustBalanceTx(ctx, tx, t.ToAccount, t.Amount); err != nil {
		return err
	}
	return tx.Commit()
}
