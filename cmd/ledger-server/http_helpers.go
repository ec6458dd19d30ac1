package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v3"

	"beanbet/internal/auth"
	"beanbet/internal/ledger"
	"beanbet/internal/logging"
	"beanbet/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeHTTPError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": code})
}

// writeLedgerError maps the ledger/auth sentinel taxonomy onto HTTP
// statuses. Everything except storage failures and exhausted conflict
// retries is an expected outcome, not a server error.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidCategory),
		errors.Is(err, ledger.ErrSameAccount):
		writeHTTPError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeHTTPError(w, http.StatusBadRequest, "insufficient_funds")
	case errors.Is(err, ledger.ErrQuotaExceeded):
		writeHTTPError(w, http.StatusBadRequest, "limit_reached")
	case errors.Is(err, ledger.ErrRecipientNotFound):
		writeHTTPError(w, http.StatusNotFound, "recipient_not_found")
	case errors.Is(err, ledger.ErrNotFound):
		writeHTTPError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, auth.ErrUsernameTaken):
		writeHTTPError(w, http.StatusBadRequest, "username_taken")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeHTTPError(w, http.StatusBadRequest, "invalid_credentials")
	case errors.Is(err, ledger.ErrConflictRetryExhausted):
		writeHTTPError(w, http.StatusServiceUnavailable, "try_again")
	default:
		writeHTTPError(w, http.StatusInternalServerError, "internal_error")
	}
}

func apiLogMiddleware() func(http.Handler) http.Handler {
	return httplog.RequestLogger(
		slog.New(slog.NewJSONHandler(logging.Writer(), &slog.HandlerOptions{})),
		&httplog.Options{
			Level:  slog.LevelInfo,
			Schema: httplog.Schema{ResponseStatus: "status", ResponseDuration: "duration_ms"},
			LogExtraAttrs: func(req *http.Request, _ string, _ int) []slog.Attr {
				rc := chi.RouteContext(req.Context())
				route := req.URL.Path
				if rc != nil && rc.RoutePattern() != "" {
					route = rc.RoutePattern()
				}
				return []slog.Attr{
					slog.String("request_id", chimw.GetReqID(req.Context())),
					slog.String("method", req.Method),
					slog.String("route", route),
					slog.String("path", req.URL.Path),
				}
			},
		},
	)
}

type accountContextKey struct{}

// accountAuthMiddleware is the session-authenticator boundary: it turns
// a bearer token into a verified account and everything downstream
// trusts that identity.
func accountAuthMiddleware(authSvc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeHTTPError(w, http.StatusUnauthorized, "no_token")
				return
			}
			acct, err := authSvc.Verify(r.Context(), token)
			if err != nil {
				writeHTTPError(w, http.StatusUnauthorized, "invalid_token")
				return
			}
			ctx := context.WithValue(r.Context(), accountContextKey{}, acct)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestAccount(r *http.Request) *store.Account {
	acct, _ := r.Context().Value(accountContextKey{}).(*store.Account)
	return acct
}

func adminAuthMiddleware(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKey == "" || !checkAdminAuth(r, adminKey) {
				writeHTTPError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func checkAdminAuth(r *http.Request, adminKey string) bool {
	if v := r.Header.Get("X-Admin-Key"); v == adminKey {
		return true
	}
	return bearerToken(r) == adminKey
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	prefix := "Bearer "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func parsePagination(r *http.Request) (int, int) {
	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
