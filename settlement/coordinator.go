// Package settlement orchestrates transfer attempts over the ledger, the
// signature service and the transaction store, talking to the central relay
// for cross-bank movement.
//
// It owns all transaction-record mutation. Outgoing transfers follow a
// commit/compensate lifecycle: the sender is debited before dispatch and
// credited back if the relay rejects or cannot be reached. Incoming
// transfers are verified and validated before anything is persisted, then
// credited and recorded as one accepted unit, which keeps the path safe
// under at-least-once delivery.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vantagebank/settlement/ledger"
	"github.com/vantagebank/settlement/models"
	"github.com/vantagebank/settlement/ratelimit"
	"github.com/vantagebank/settlement/relay"
	"github.com/vantagebank/settlement/signature"
	"github.com/vantagebank/settlement/store"
)

// Dispatcher sends a signed payload to the relay's transfer endpoint.
type Dispatcher interface {
	Dispatch(ctx context.Context, p models.TransferPayload) (*models.RelayAck, error)
}

// Config carries the explicit settlement configuration; nothing here is
// read from the environment inside the coordinator.
type Config struct {
	BankCode  string
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
}

// Coordinator runs the settlement flows.
type Coordinator struct {
	cfg      Config
	store    store.Store
	ledger   *ledger.Ledger
	signer   *signature.Signer
	verifier *signature.Verifier
	relay    Dispatcher
	limiter  ratelimit.Limiter
	log      *slog.Logger
}

// NewCoordinator wires the settlement flows over their collaborators.
func NewCoordinator(cfg Config, s store.Store, l *ledger.Ledger, signer *signature.Signer,
	verifier *signature.Verifier, dispatcher Dispatcher, limiter ratelimit.Limiter, log *slog.Logger) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		store:    s,
		ledger:   l,
		signer:   signer,
		verifier: verifier,
		relay:    dispatcher,
		limiter:  limiter,
		log:      log.With("component", "settlement"),
	}
}

// Transfer runs one outgoing transfer attempt for the requesting user.
// Destination bank routing comes from the bank prefix embedded in the
// destination account id: same bank settles locally, anything else goes
// through the relay.
func (c *Coordinator) Transfer(ctx context.Context, req models.TransferRequest) (*models.Transaction, error) {
	if err := c.validateOutgoing(ctx, req); err != nil {
		return nil, err
	}

	toBank := models.BankFromAccountID(req.ToAccount)
	if toBank == c.cfg.BankCode {
		return c.transferInternal(ctx, req)
	}
	return c.transferExternal(ctx, req, toBank)
}

// validateOutgoing applies every check that must reject with no side
// effects: ownership, activity, currency, amount bounds and an advisory
// funds check. The authoritative funds guard stays inside the store.
func (c *Coordinator) validateOutgoing(ctx context.Context, req models.TransferRequest) error {
	if req.FromAccount == "" || req.ToAccount == "" {
		return newErr(CodeValidation, "from_account and to_account are required")
	}
	if req.FromAccount == req.ToAccount {
		return newErr(CodeValidation, "cannot transfer within one account")
	}
	if !models.ValidCurrency(req.Currency) {
		return newErr(CodeValidation, fmt.Sprintf("unsupported currency %q", req.Currency))
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return newErr(CodeValidation, "amount must be positive")
	}
	if req.Amount.LessThan(c.cfg.MinAmount) || req.Amount.GreaterThan(c.cfg.MaxAmount) {
		return newErr(CodeValidation,
			fmt.Sprintf("amount must be between %s and %s", c.cfg.MinAmount, c.cfg.MaxAmount))
	}

	sender, err := c.store.GetAccount(ctx, req.FromAccount)
	if errors.Is(err, store.ErrAccountNotFound) {
		return newErr(CodeNotFound, "sender account not found")
	}
	if err != nil {
		return err
	}
	if sender.UserID != req.UserID {
		return newErr(CodeForbidden, "account does not belong to requester")
	}
	if !sender.Active {
		return newErr(CodeValidation, "sender account is inactive")
	}
	if sender.Currency != req.Currency {
		return newErr(CodeCurrencyMismatch, "currency does not match sender account")
	}
	if sender.Balance.LessThan(req.Amount) {
		return newErr(CodeInsufficientFunds, "insufficient funds")
	}
	return nil
}

// transferInternal settles a same-bank transfer in one atomic store unit:
// debit, credit and the COMPLETED record commit together or not at all.
func (c *Coordinator) transferInternal(ctx context.Context, req models.TransferRequest) (*models.Transaction, error) {
	recipient, err := c.store.GetAccount(ctx, req.ToAccount)
	if errors.Is(err, store.ErrAccountNotFound) {
		return nil, newErr(CodeNotFound, "recipient account not found")
	}
	if err != nil {
		return nil, err
	}
	if !recipient.Active {
		return nil, newErr(CodeValidation, "recipient account is inactive")
	}
	if recipient.Currency != req.Currency {
		return nil, newErr(CodeCurrencyMismatch, "currency does not match recipient account")
	}

	rec := c.newRecord(req, c.cfg.BankCode, false)
	rec.Status = models.StatusCompleted

	if err := c.store.TransferInternal(ctx, rec); err != nil {
		switch {
		case errors.Is(err, store.ErrInsufficientBalance):
			return nil, newErr(CodeInsufficientFunds, "insufficient funds")
		case errors.Is(err, store.ErrAccountNotFound):
			return nil, newErr(CodeNotFound, "account not found")
		case errors.Is(err, store.ErrDuplicateTransaction):
			return nil, newTxErr(CodeInternal, "transaction id collision", rec.ID)
		}
		return nil, err
	}

	c.log.Info("internal transfer settled",
		"transaction_id", rec.ID, "from", rec.FromAccount, "to", rec.ToAccount, "amount", rec.Amount)
	return rec, nil
}

// transferExternal runs the cross-bank lifecycle: PENDING record, debit,
// sign, IN_PROGRESS, dispatch, then finalize or compensate. The debit
// commits before the relay call; no account lock is held across the
// network.
func (c *Coordinator) transferExternal(ctx context.Context, req models.TransferRequest, toBank string) (*models.Transaction, error) {
	if toBank == "" {
		return nil, newErr(CodeValidation, "destination account carries no bank prefix")
	}

	allowed, err := c.limiter.Allow(ctx, c.cfg.BankCode)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	if !allowed {
		return nil, newErr(CodeRateLimited, "outgoing transfer rate limit exceeded")
	}

	rec := c.newRecord(req, toBank, true)
	rec.Status = models.StatusPending
	if err := c.store.CreateTransaction(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist transaction: %w", err)
	}

	if err := c.ledger.Debit(ctx, rec.FromAccount, rec.Amount); err != nil {
		code := CodeInternal
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			code = CodeInsufficientFunds
		}
		c.failRecord(ctx, rec.ID, code, err.Error())
		return nil, newTxErr(code, err.Error(), rec.ID)
	}

	payload := models.PayloadFromTransaction(rec)
	sig, err := c.signer.Sign(payload)
	if err != nil {
		return nil, c.compensate(ctx, rec, CodeInternal, "payload signing failed")
	}
	payload.Signature = sig
	rec.Signature = sig
	if err := c.store.AttachSignature(ctx, rec.ID, sig); err != nil {
		return nil, c.compensate(ctx, rec, CodeInternal, "persisting signature failed")
	}
	if err := c.store.UpdateTransactionStatus(ctx, rec.ID, models.StatusInProgress, "", ""); err != nil {
		return nil, c.compensate(ctx, rec, CodeInternal, "status transition failed")
	}
	rec.Status = models.StatusInProgress

	// Past this point the transfer cannot be retracted; only the relay's
	// answer decides between completion and compensation.
	ack, err := c.relay.Dispatch(ctx, payload)
	if err != nil {
		code, msg := CodeCentralBank, "central relay unavailable"
		var rej *relay.Rejection
		if errors.As(err, &rej) {
			code, msg = rej.Code, rej.Message
		}
		return nil, c.compensate(ctx, rec, code, msg)
	}

	if err := c.store.UpdateTransactionStatus(ctx, rec.ID, models.StatusCompleted, "", ""); err != nil {
		// The money moved and the relay acknowledged; log the bookkeeping
		// failure rather than failing the settled transfer.
		c.log.Error("completed transfer status write failed", "transaction_id", rec.ID, "error", err)
	}
	rec.Status = models.StatusCompleted

	c.log.Info("external transfer settled",
		"transaction_id", rec.ID, "to_bank", rec.ToBank, "amount", rec.Amount, "relay_status", ack.Status)
	return rec, nil
}

// compensate credits the debited amount back and marks the record FAILED.
// Balance restoration takes priority over bookkeeping: the credit-back is
// issued first, and a failed status write is only logged. A failed
// credit-back is unrecoverable and needs operator intervention.
func (c *Coordinator) compensate(ctx context.Context, rec *models.Transaction, code, msg string) error {
	if err := c.ledger.Credit(ctx, rec.FromAccount, rec.Amount); err != nil {
		c.log.Error("compensation credit failed, ledger holds an un-reversed debit",
			"transaction_id", rec.ID, "account", rec.FromAccount, "amount", rec.Amount, "error", err)
		return newTxErr(CodeCompensationFailed,
			"transfer failed and the compensating credit could not be applied", rec.ID)
	}
	c.failRecord(ctx, rec.ID, code, msg)
	c.log.Warn("external transfer compensated",
		"transaction_id", rec.ID, "code", code, "message", msg)
	return newTxErr(code, msg, rec.ID)
}

func (c *Coordinator) failRecord(ctx context.Context, id, code, msg string) {
	if err := c.store.UpdateTransactionStatus(ctx, id, models.StatusFailed, code, msg); err != nil {
		c.log.Error("failed-status write failed", "transaction_id", id, "error", err)
	}
}

// Incoming absorbs a transfer delivered by the relay. Replays of an already
// known transaction id return the stored status unchanged and credit
// nothing; a rejected request leaves no record at all.
func (c *Coordinator) Incoming(ctx context.Context, p models.TransferPayload) (*models.RelayAck, error) {
	if p.ToBank != c.cfg.BankCode {
		return nil, newTxErr(CodeValidation, "destination bank is not this bank", p.TransactionID)
	}
	if p.TransactionID == "" {
		return nil, newErr(CodeValidation, "transactionId is required")
	}

	existing, err := c.store.GetTransaction(ctx, p.TransactionID)
	if err == nil {
		c.log.Info("incoming transfer replayed", "transaction_id", p.TransactionID, "status", existing.Status)
		return &models.RelayAck{TransactionID: existing.ID, Status: existing.Status}, nil
	}
	if !errors.Is(err, store.ErrTransactionNotFound) {
		return nil, err
	}

	if p.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, newTxErr(CodeValidation, "amount must be positive", p.TransactionID)
	}
	if !c.verifier.Verify(ctx, p, p.Signature, p.FromBank) {
		return nil, newTxErr(CodeInvalidSignature, "signature verification failed", p.TransactionID)
	}

	account, err := c.store.GetAccount(ctx, p.ToAccount)
	if errors.Is(err, store.ErrAccountNotFound) {
		return nil, newTxErr(CodeNotFound, "destination account not found", p.TransactionID)
	}
	if err != nil {
		return nil, err
	}
	if !account.Active {
		return nil, newTxErr(CodeValidation, "destination account is inactive", p.TransactionID)
	}
	if account.Currency != p.Currency {
		return nil, newTxErr(CodeCurrencyMismatch, "currency does not match destination account", p.TransactionID)
	}

	rec := &models.Transaction{
		ID:          p.TransactionID,
		FromBank:    p.FromBank,
		FromAccount: p.FromAccount,
		ToBank:      p.ToBank,
		ToAccount:   p.ToAccount,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Description: p.Description,
		Status:      models.StatusCompleted,
		Signature:   p.Signature,
		External:    true,
		CreatedAt:   parseTimestamp(p.Timestamp),
	}

	if err := c.store.AcceptIncoming(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicateTransaction) {
			// Lost the race against a concurrent replay; answer with what
			// the winner recorded.
			stored, gerr := c.store.GetTransaction(ctx, p.TransactionID)
			if gerr != nil {
				return nil, gerr
			}
			return &models.RelayAck{TransactionID: stored.ID, Status: stored.Status}, nil
		}
		return nil, err
	}

	c.log.Info("incoming transfer accepted",
		"transaction_id", rec.ID, "from_bank", rec.FromBank, "account", rec.ToAccount, "amount", rec.Amount)
	return &models.RelayAck{TransactionID: rec.ID, Status: models.StatusCompleted}, nil
}

func (c *Coordinator) newRecord(req models.TransferRequest, toBank string, external bool) *models.Transaction {
	return &models.Transaction{
		ID:          models.NewTransactionID(),
		FromBank:    c.cfg.BankCode,
		FromAccount: req.FromAccount,
		ToBank:      toBank,
		ToAccount:   req.ToAccount,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		External:    external,
		UserID:      req.UserID,
		CreatedAt:   time.Now().UTC(),
	}
}

func parseTimestamp(ts string) time.Time {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Now().UTC()
	}
	return t
}
