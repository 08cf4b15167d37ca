package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/vantagebank/settlement/settlement"
	"github.com/vantagebank/settlement/store"
)

// RouterDeps carries everything the router wires together. The optional
// middlewares are nil when no Redis is configured.
type RouterDeps struct {
	Coordinator *settlement.Coordinator
	Store       store.Store
	JWKS        []byte
	Checks      map[string]func() error

	Idempotency   func(http.Handler) http.Handler
	RejectRevoked func(http.Handler) http.Handler
}

// NewRouter builds the HTTP surface.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", HealthHandler(d.Checks))
	r.Get("/.well-known/jwks.json", JWKSHandler(d.JWKS))

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if d.RejectRevoked != nil {
				r.Use(d.RejectRevoked)
			}
			r.Post("/transfers", TransferHandler(d.Coordinator))
		})

		r.Group(func(r chi.Router) {
			if d.Idempotency != nil {
				r.Use(d.Idempotency)
			}
			r.Post("/transfers/incoming", IncomingHandler(d.Coordinator))
		})

		r.Get("/transactions/{id}", TransactionHandler(d.Store))
		r.Get("/accounts/{id}", AccountHandler(d.Store))
		r.Get("/accounts/{id}/transactions", AccountTransactionsHandler(d.Store))
	})

	return r
}
