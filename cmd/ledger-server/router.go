package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"beanbet/internal/auth"
	"beanbet/internal/config"
	"beanbet/internal/ledger"
)

// pinger reports storage liveness; nil means no durable backend to
// probe (in-memory store).
type pinger interface {
	Ping(ctx context.Context) error
}

func newRouter(led *ledger.Ledger, authSvc *auth.Service, db pinger, cfg config.ServerConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(apiLogMiddleware()).Get("/healthz", healthHandler(db))

	r.Route("/api", func(r chi.Router) {
		r.Use(apiLogMiddleware())

		r.Post("/register", registerHandler(authSvc))
		r.Post("/login", loginHandler(authSvc))
		r.Post("/auto", autoHandler(authSvc))
		r.Get("/leaders", leadersHandler(led, cfg.LeaderboardLimit))

		r.Group(func(r chi.Router) {
			r.Use(accountAuthMiddleware(authSvc))
			r.Get("/balance", balanceHandler(led))
			r.Post("/bet", betHandler(led))
			r.Post("/bonus/claim", claimBonusHandler(led))
			r.Post("/transfer", transferHandler(led))
		})

		r.Group(func(r chi.Router) {
			r.Use(adminAuthMiddleware(cfg.AdminAPIKey))
			r.Get("/ledger", ledgerEntriesHandler(led))
		})
	})

	return r
}

func healthHandler(db pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "db": "down"})
				return
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "db": "up"})
	}
}
