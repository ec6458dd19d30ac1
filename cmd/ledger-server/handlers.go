package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"beanbet/internal/auth"
	"beanbet/internal/ledger"
)

// The ledger core only ever sees validated, typed inputs; loose JSON
// stops here.
var validate = validator.New()

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Password string `json:"password" validate:"required,min=4,max=128"`
	Currency string `json:"currency" validate:"omitempty,max=8"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type betRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Color  string `json:"color" validate:"required,oneof=black red green"`
}

type transferRequest struct {
	To     string `json:"to" validate:"required"`
	Amount int64  `json:"amount" validate:"required,gt=0"`
}

func decodeValid(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

func registerHandler(authSvc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body registerRequest
		if err := decodeValid(r, &body); err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		acct, token, err := authSvc.Register(r.Context(), body.Username, body.Password, body.Currency)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":       true,
			"username": acct.Username,
			"token":    token,
		})
	}
}

func loginHandler(authSvc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body loginRequest
		if err := decodeValid(r, &body); err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		acct, token, err := authSvc.Login(r.Context(), body.Username, body.Password)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":       true,
			"username": acct.Username,
			"token":    token,
		})
	}
}

// autoHandler re-validates a stored token so clients can resume a
// session without credentials.
func autoHandler(authSvc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			var body struct {
				Token string `json:"token"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			token = body.Token
		}
		if token == "" {
			writeHTTPError(w, http.StatusBadRequest, "no_token")
			return
		}
		acct, err := authSvc.Verify(r.Context(), token)
		if err != nil {
			writeHTTPError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":       true,
			"username": acct.Username,
			"balance":  acct.Balance,
			"currency": acct.Currency,
			"token":    token,
		})
	}
}

func balanceHandler(led *ledger.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct, err := led.Balance(r.Context(), requestAccount(r).ID)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":       true,
			"username": acct.Username,
			"balance":  acct.Balance,
			"currency": acct.Currency,
		})
	}
}

func betHandler(led *ledger.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body betRequest
		if err := decodeValid(r, &body); err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		res, err := led.PlaceBet(r.Context(), requestAccount(r).ID, body.Amount, ledger.Category(body.Color))
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":           true,
			"win":          res.Win,
			"rolledColor":  string(res.Rolled),
			"rolledNumber": res.WheelNumber,
			"newBalance":   res.Balance,
		})
	}
}

func claimBonusHandler(led *ledger.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := led.ClaimBonus(r.Context(), requestAccount(r).ID)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":             true,
			"newBalance":     res.Balance,
			"remainingToday": res.RemainingToday,
		})
	}
}

func transferHandler(led *ledger.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body transferRequest
		if err := decodeValid(r, &body); err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		from := requestAccount(r)
		// Recipients are addressed by username on the wire; the ledger
		// works in account IDs. Only a missing row means a bad recipient;
		// a storage failure stays a server error.
		to, err := led.AccountByUsername(r.Context(), body.To)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				writeHTTPError(w, http.StatusNotFound, "recipient_not_found")
				return
			}
			writeLedgerError(w, err)
			return
		}
		res, err := led.Transfer(r.Context(), from.ID, to.ID, body.Amount)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":         true,
			"newBalance": res.FromBalance,
		})
	}
}

func leadersHandler(led *ledger.Ledger, limit int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := led.TopBalances(r.Context(), limit)
		if err != nil {
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		leaders := make([]map[string]any, 0, len(items))
		for _, a := range items {
			leaders = append(leaders, map[string]any{
				"username": a.Username,
				"balance":  a.Balance,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "leaders": leaders})
	}
}

func ledgerEntriesHandler(led *ledger.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := parsePagination(r)
		items, err := led.Entries(r.Context(), r.URL.Query().Get("account_id"), limit, offset)
		if err != nil {
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items":  items,
			"limit":  limit,
			"offset": offset,
		})
	}
}
