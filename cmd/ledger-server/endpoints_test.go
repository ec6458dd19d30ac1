package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"beanbet/internal/auth"
	"beanbet/internal/config"
	"beanbet/internal/ledger"
	"beanbet/internal/store"
)

const testStartingBalance = 1_000_000

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	st := store.NewMemory()
	led := ledger.New(st, ledger.Config{
		BonusAmount:     1_000_000,
		BonusDailyLimit: 3,
		QuotaLocation:   time.UTC,
	})
	authSvc := auth.NewService(led, st, "test-secret", time.Hour, testStartingBalance, "₽")
	cfg := config.ServerConfig{
		AdminAPIKey:      "admin-key",
		LeaderboardLimit: 50,
	}
	return newRouter(led, authSvc, nil, cfg)
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("%s %s: decode response %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, payload
}

func registerUser(t *testing.T, h http.Handler, username string) string {
	t.Helper()
	code, resp := doJSON(t, h, http.MethodPost, "/api/register", "", map[string]any{
		"username": username,
		"password": "hunter2",
	})
	if code != http.StatusOK {
		t.Fatalf("register %s: status %d, resp %v", username, code, resp)
	}
	token, _ := resp["token"].(string)
	if token == "" {
		t.Fatalf("register %s: no token in %v", username, resp)
	}
	return token
}

func TestHealthz(t *testing.T) {
	h := newTestRouter(t)
	code, resp := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	if code != http.StatusOK || resp["ok"] != true {
		t.Fatalf("healthz = %d, %v", code, resp)
	}
}

func TestRegisterLoginAuto(t *testing.T) {
	h := newTestRouter(t)
	token := registerUser(t, h, "alice")

	code, resp := doJSON(t, h, http.MethodPost, "/api/register", "", map[string]any{
		"username": "alice", "password": "other1",
	})
	if code != http.StatusBadRequest || resp["error"] != "username_taken" {
		t.Fatalf("duplicate register = %d, %v", code, resp)
	}

	code, resp = doJSON(t, h, http.MethodPost, "/api/login", "", map[string]any{
		"username": "alice", "password": "wrong",
	})
	if code != http.StatusBadRequest || resp["error"] != "invalid_credentials" {
		t.Fatalf("bad login = %d, %v", code, resp)
	}

	code, resp = doJSON(t, h, http.MethodPost, "/api/login", "", map[string]any{
		"username": "alice", "password": "hunter2",
	})
	if code != http.StatusOK || resp["username"] != "alice" {
		t.Fatalf("login = %d, %v", code, resp)
	}

	code, resp = doJSON(t, h, http.MethodPost, "/api/auto", token, nil)
	if code != http.StatusOK || resp["username"] != "alice" {
		t.Fatalf("auto = %d, %v", code, resp)
	}
	if resp["balance"] != float64(testStartingBalance) {
		t.Fatalf("auto balance = %v, want %d", resp["balance"], testStartingBalance)
	}

	code, resp = doJSON(t, h, http.MethodPost, "/api/auto", "garbage", nil)
	if code != http.StatusUnauthorized || resp["error"] != "invalid_token" {
		t.Fatalf("auto with garbage = %d, %v", code, resp)
	}
}

func TestRegisterValidation(t *testing.T) {
	h := newTestRouter(t)
	for name, body := range map[string]map[string]any{
		"short username": {"username": "ab", "password": "hunter2"},
		"short password": {"username": "alice", "password": "abc"},
		"empty":          {},
	} {
		code, resp := doJSON(t, h, http.MethodPost, "/api/register", "", body)
		if code != http.StatusBadRequest || resp["error"] != "invalid_request" {
			t.Errorf("%s: register = %d, %v, want 400 invalid_request", name, code, resp)
		}
	}
}

func TestBalanceRequiresAuth(t *testing.T) {
	h := newTestRouter(t)

	code, resp := doJSON(t, h, http.MethodGet, "/api/balance", "", nil)
	if code != http.StatusUnauthorized || resp["error"] != "no_token" {
		t.Fatalf("no token = %d, %v", code, resp)
	}
	code, resp = doJSON(t, h, http.MethodGet, "/api/balance", "garbage", nil)
	if code != http.StatusUnauthorized || resp["error"] != "invalid_token" {
		t.Fatalf("bad token = %d, %v", code, resp)
	}

	token := registerUser(t, h, "alice")
	code, resp = doJSON(t, h, http.MethodGet, "/api/balance", token, nil)
	if code != http.StatusOK || resp["balance"] != float64(testStartingBalance) {
		t.Fatalf("balance = %d, %v", code, resp)
	}
}

func TestBetEndpoint(t *testing.T) {
	h := newTestRouter(t)
	token := registerUser(t, h, "alice")

	code, resp := doJSON(t, h, http.MethodPost, "/api/bet", token, map[string]any{
		"amount": 100, "color": "black",
	})
	if code != http.StatusOK {
		t.Fatalf("bet = %d, %v", code, resp)
	}
	win, _ := resp["win"].(bool)
	balance, _ := resp["newBalance"].(float64)
	if win && balance != testStartingBalance+100 {
		t.Fatalf("win with balance %v, want %d", balance, testStartingBalance+100)
	}
	if !win && balance != testStartingBalance-100 {
		t.Fatalf("loss with balance %v, want %d", balance, testStartingBalance-100)
	}
	rolled, _ := resp["rolledColor"].(string)
	if rolled != "black" && rolled != "red" && rolled != "green" {
		t.Fatalf("rolledColor = %q", rolled)
	}

	code, resp = doJSON(t, h, http.MethodPost, "/api/bet", token, map[string]any{
		"amount": 100, "color": "blue",
	})
	if code != http.StatusBadRequest || resp["error"] != "invalid_request" {
		t.Fatalf("bad color = %d, %v", code, resp)
	}

	code, resp = doJSON(t, h, http.MethodPost, "/api/bet", token, map[string]any{
		"amount": 0, "color": "black",
	})
	if code != http.StatusBadRequest || resp["error"] != "invalid_request" {
		t.Fatalf("zero amount = %d, %v", code, resp)
	}

	code, resp = doJSON(t, h, http.MethodPost, "/api/bet", token, map[string]any{
		"amount": testStartingBalance * 10, "color": "black",
	})
	if code != http.StatusBadRequest || resp["error"] != "insufficient_funds" {
		t.Fatalf("overdraft bet = %d, %v", code, resp)
	}
}

func TestBonusEndpoint(t *testing.T) {
	h := newTestRouter(t)
	token := registerUser(t, h, "alice")

	for i := 0; i < 3; i++ {
		code, resp := doJSON(t, h, http.MethodPost, "/api/bonus/claim", token, nil)
		if code != http.StatusOK {
			t.Fatalf("claim #%d = %d, %v", i+1, code, resp)
		}
		if resp["remainingToday"] != float64(2-i) {
			t.Fatalf("claim #%d remaining = %v, want %d", i+1, resp["remainingToday"], 2-i)
		}
	}

	code, resp := doJSON(t, h, http.MethodPost, "/api/bonus/claim", token, nil)
	if code != http.StatusBadRequest || resp["error"] != "limit_reached" {
		t.Fatalf("claim #4 = %d, %v", code, resp)
	}
}

func TestTransferEndpoint(t *testing.T) {
	h := newTestRouter(t)
	aliceToken := registerUser(t, h, "alice")
	bobToken := registerUser(t, h, "bob")

	code, resp := doJSON(t, h, http.MethodPost, "/api/transfer", aliceToken, map[string]any{
		"to": "bob", "amount": 500,
	})
	if code != http.StatusOK {
		t.Fatalf("transfer = %d, %v", code, resp)
	}
	if resp["newBalance"] != float64(testStartingBalance-500) {
		t.Fatalf("sender balance = %v, want %d", resp["newBalance"], testStartingBalance-500)
	}

	code, resp = doJSON(t, h, http.MethodGet, "/api/balance", bobToken, nil)
	if code != http.StatusOK || resp["balance"] != float64(testStartingBalance+500) {
		t.Fatalf("recipient balance = %d, %v", code, resp)
	}

	code, resp = doJSON(t, h, http.MethodPost, "/api/transfer", aliceToken, map[string]any{
		"to": "nobody", "amount": 10,
	})
	if code != http.StatusNotFound || resp["error"] != "recipient_not_found" {
		t.Fatalf("missing recipient = %d, %v", code, resp)
	}

	code, resp = doJSON(t, h, http.MethodPost, "/api/transfer", aliceToken, map[string]any{
		"to": "alice", "amount": 10,
	})
	if code != http.StatusBadRequest || resp["error"] != "same_account" {
		t.Fatalf("self transfer = %d, %v", code, resp)
	}

	code, resp = doJSON(t, h, http.MethodPost, "/api/transfer", aliceToken, map[string]any{
		"to": "bob", "amount": testStartingBalance * 10,
	})
	if code != http.StatusBadRequest || resp["error"] != "insufficient_funds" {
		t.Fatalf("overdraft transfer = %d, %v", code, resp)
	}
}

// faultyStore simulates a storage outage on one username lookup.
type faultyStore struct {
	store.AccountStore
	failUsername string
}

func (f *faultyStore) GetByUsername(ctx context.Context, username string) (*store.Account, error) {
	if username == f.failUsername {
		return nil, errors.New("connection refused")
	}
	return f.AccountStore.GetByUsername(ctx, username)
}

func TestTransferStorageFailureIsServerError(t *testing.T) {
	st := &faultyStore{AccountStore: store.NewMemory(), failUsername: "downstream"}
	led := ledger.New(st, ledger.Config{
		BonusAmount:     1_000_000,
		BonusDailyLimit: 3,
		QuotaLocation:   time.UTC,
	})
	authSvc := auth.NewService(led, st, "test-secret", time.Hour, testStartingBalance, "₽")
	h := newRouter(led, authSvc, nil, config.ServerConfig{LeaderboardLimit: 50})
	token := registerUser(t, h, "alice")

	code, resp := doJSON(t, h, http.MethodPost, "/api/transfer", token, map[string]any{
		"to": "downstream", "amount": 10,
	})
	if code != http.StatusInternalServerError || resp["error"] != "internal_error" {
		t.Fatalf("storage failure = %d, %v, want 500 internal_error", code, resp)
	}

	code, resp = doJSON(t, h, http.MethodPost, "/api/transfer", token, map[string]any{
		"to": "nobody", "amount": 10,
	})
	if code != http.StatusNotFound || resp["error"] != "recipient_not_found" {
		t.Fatalf("missing recipient = %d, %v, want 404 recipient_not_found", code, resp)
	}
}

func TestLeadersEndpoint(t *testing.T) {
	h := newTestRouter(t)
	aliceToken := registerUser(t, h, "alice")
	registerUser(t, h, "bob")

	// Push alice ahead of bob.
	code, resp := doJSON(t, h, http.MethodPost, "/api/bonus/claim", aliceToken, nil)
	if code != http.StatusOK {
		t.Fatalf("claim = %d, %v", code, resp)
	}

	code, resp = doJSON(t, h, http.MethodGet, "/api/leaders", "", nil)
	if code != http.StatusOK {
		t.Fatalf("leaders = %d, %v", code, resp)
	}
	leaders, _ := resp["leaders"].([]any)
	if len(leaders) != 2 {
		t.Fatalf("len(leaders) = %d, want 2", len(leaders))
	}
	first, _ := leaders[0].(map[string]any)
	if first["username"] != "alice" {
		t.Fatalf("leaders[0] = %v, want alice", first)
	}
}

func TestAdminLedgerEndpoint(t *testing.T) {
	h := newTestRouter(t)
	registerUser(t, h, "alice")

	code, resp := doJSON(t, h, http.MethodGet, "/api/ledger", "", nil)
	if code != http.StatusUnauthorized || resp["error"] != "unauthorized" {
		t.Fatalf("unauthenticated admin = %d, %v", code, resp)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/ledger", nil)
	req.Header.Set("X-Admin-Key", "admin-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin ledger = %d, body %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Items  []store.Entry `json:"items"`
		Limit  int           `json:"limit"`
		Offset int           `json:"offset"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode admin response: %v", err)
	}
	if payload.Limit != 50 || payload.Offset != 0 {
		t.Fatalf("pagination = %d/%d, want 50/0", payload.Limit, payload.Offset)
	}
	if len(payload.Items) != 1 || payload.Items[0].Type != "opening_credit" {
		t.Fatalf("items = %+v, want one opening_credit", payload.Items)
	}
}

func TestAdminLedgerDisabledWithoutKey(t *testing.T) {
	st := store.NewMemory()
	led := ledger.New(st, ledger.Config{BonusAmount: 1, BonusDailyLimit: 1, QuotaLocation: time.UTC})
	authSvc := auth.NewService(led, st, "test-secret", time.Hour, 100, "₽")
	h := newRouter(led, authSvc, nil, config.ServerConfig{LeaderboardLimit: 10})

	req := httptest.NewRequest(http.MethodGet, "/api/ledger", nil)
	req.Header.Set("X-Admin-Key", "")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("admin with empty key = %d, want 401", rec.Code)
	}
}

func TestPaginationClamped(t *testing.T) {
	h := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/ledger?limit=9999&offset=-3", nil)
	req.Header.Set("X-Admin-Key", "admin-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin ledger = %d", rec.Code)
	}
	var payload struct {
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Limit != 500 || payload.Offset != 0 {
		t.Fatalf("pagination = %d/%d, want 500/0", payload.Limit, payload.Offset)
	}
}

func TestFullFlow(t *testing.T) {
	h := newTestRouter(t)
	users := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		users = append(users, registerUser(t, h, fmt.Sprintf("user%d", i)))
	}

	for _, token := range users {
		code, resp := doJSON(t, h, http.MethodPost, "/api/bet", token, map[string]any{
			"amount": 1000, "color": "red",
		})
		if code != http.StatusOK {
			t.Fatalf("bet = %d, %v", code, resp)
		}
	}

	code, resp := doJSON(t, h, http.MethodGet, "/api/leaders", "", nil)
	if code != http.StatusOK {
		t.Fatalf("leaders = %d, %v", code, resp)
	}
	leaders, _ := resp["leaders"].([]any)
	if len(leaders) != 3 {
		t.Fatalf("len(leaders) = %d, want 3", len(leaders))
	}

	var total float64
	for _, l := range leaders {
		entry, _ := l.(map[string]any)
		balance := entry["balance"].(float64)
		if balance < 0 {
			t.Fatalf("negative balance in leaders: %v", l)
		}
		total += balance
	}
	// Each bet settles at exactly one stake up or down.
	if total < 3*(testStartingBalance-1000) || total > 3*(testStartingBalance+1000) {
		t.Fatalf("total balance = %v out of expected range", total)
	}
}
