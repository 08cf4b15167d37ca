// Package api exposes the settlement service over HTTP: the transfer entry
// point, the relay callback, read-only record access and the public key
// set. Handlers never mutate balances or records themselves; all mutation
// goes through the coordinator.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vantagebank/settlement/models"
	"github.com/vantagebank/settlement/settlement"
	"github.com/vantagebank/settlement/store"
)

// userIDHeader carries the authenticated requester id; authentication
// itself happens upstream of this service.
const userIDHeader = "X-User-ID"

// TransferHandler initiates an outgoing transfer.
func TransferHandler(coord *settlement.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.TransferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, &settlement.Error{Code: settlement.CodeValidation, Message: "invalid request body"})
			return
		}
		req.UserID = r.Header.Get(userIDHeader)
		if req.UserID == "" {
			writeError(w, &settlement.Error{Code: settlement.CodeForbidden, Message: "missing requester identity"})
			return
		}

		rec, err := coord.Transfer(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

// IncomingHandler accepts a transfer callback from the relay and answers
// {transactionId, status} synchronously.
func IncomingHandler(coord *settlement.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload models.TransferPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, &settlement.Error{Code: settlement.CodeValidation, Message: "invalid payload"})
			return
		}

		ack, err := coord.Incoming(r.Context(), payload)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ack)
	}
}

// AccountHandler serves a read-only view of one account.
func AccountHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, err := s.GetAccount(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, &settlement.Error{Code: settlement.CodeNotFound, Message: "account not found"})
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

// AccountTransactionsHandler serves the account's recent transaction
// records, read-only.
func AccountTransactionsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		txs, err := s.ListTransactionsByAccount(r.Context(), chi.URLParam(r, "id"), 50)
		if err != nil {
			writeError(w, err)
			return
		}
		if txs == nil {
			txs = []*models.Transaction{}
		}
		writeJSON(w, http.StatusOK, txs)
	}
}

// TransactionHandler serves a single transaction record.
func TransactionHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tx, err := s.GetTransaction(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, &settlement.Error{Code: settlement.CodeNotFound, Message: "transaction not found"})
			return
		}
		writeJSON(w, http.StatusOK, tx)
	}
}

// JWKSHandler publishes this bank's current public key set. The document is
// rendered once at wiring time; key rotation restarts the service.
func JWKSHandler(jwks []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(jwks)
	}
}

// HealthHandler reports liveness plus the state of each backing service.
func HealthHandler(checks map[string]func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		status := http.StatusOK
		out := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(); err != nil {
				out[name] = err.Error()
				out["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			out[name] = "ok"
		}
		writeJSON(w, status, out)
	}
}
