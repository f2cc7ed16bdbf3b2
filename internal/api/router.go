// Package api exposes the scheduler's JSON CRUD surface: accounts, send
// requests, and the matched-reply inbox, plus health and metrics endpoints.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/mail-scheduler/internal/blobstore"
	"github.com/sungwon/mail-scheduler/internal/storage"
)

// NewRouter creates a chi.Mux with all routes, middleware, and handlers
// configured.
func NewRouter(
	store storage.Store,
	db Pinger,
	blobs blobstore.Store,
	enqueuer Enqueuer,
	log zerolog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(RecoverMiddleware(log))

	// Health and metrics endpoints
	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(db))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Accounts
		r.Post("/accounts", CreateAccountHandler(store))
		r.Get("/accounts", ListAccountsHandler(store))
		r.Delete("/accounts/{id}", DeleteAccountHandler(store))

		// Send requests
		r.Post("/requests", CreateSendRequestHandler(store, blobs, enqueuer))
		r.Get("/requests", ListSendRequestsHandler(store))
		r.Get("/requests/{id}", GetSendRequestHandler(store))
		r.Delete("/requests/{id}", DeleteSendRequestHandler(store))

		// Inbox (matched replies)
		r.Get("/inbox", ListInboxHandler(store))
		r.Get("/inbox/{id}", GetInboxMessageHandler(store))
	})

	return r
}
