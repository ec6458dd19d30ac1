package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("not_found")
	ErrUsernameTaken     = errors.New("username_taken")
	ErrVersionConflict   = errors.New("version_conflict")
	ErrInsufficientFunds = errors.New("insufficient_funds")
)

// Account is the durable record for one player. Balance is in the
// smallest currency unit. Version increases on every committed mutation
// and is the optimistic-concurrency tag.
type Account struct {
	ID           string
	Username     string
	PasswordHash string
	Balance      int64
	Currency     string
	QuotaDay     string // YYYY-MM-DD in the reference timezone, "" until first grant
	BonusesUsed  int
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Entry is one committed balance movement. Amount is signed.
type Entry struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Type      string    `json:"type"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// MutateFn adjusts balance and quota fields of a copy of the current
// record. Returning an error aborts the mutation with no side effects.
type MutateFn func(a *Account) error

// PairMutateFn adjusts two accounts as one atomic unit. a and b arrive
// in the caller's argument order, not lock order.
type PairMutateFn func(a, b *Account) error

// AccountStore is the only component that touches persisted state.
// Implementations must serialize Mutate/MutatePair per account so that
// concurrent read-modify-write cycles never lose an update, must reject
// mutations that would drive a balance negative, and must strictly
// increment Version on every commit.
type AccountStore interface {
	Create(ctx context.Context, a *Account) error
	Get(ctx context.Context, id string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)

	// Mutate atomically applies fn to the account. expectedVersion 0
	// means no expectation; a positive stale value fails with
	// ErrVersionConflict before fn runs. entryType labels the audit
	// entry written for the balance delta, if any.
	Mutate(ctx context.Context, id string, expectedVersion int64, entryType string, fn MutateFn) (*Account, error)

	// MutatePair applies fn to both accounts as one atomic unit,
	// locking them in ascending ID order regardless of argument order.
	// aID and bID must differ.
	MutatePair(ctx context.Context, aID, bID string, entryType string, fn PairMutateFn) (*Account, *Account, error)

	// TopBalances returns at most limit accounts ordered by balance
	// descending, ties broken by ID ascending.
	TopBalances(ctx context.Context, limit int) ([]Account, error)

	ListEntries(ctx context.Context, accountID string, limit, offset int) ([]Entry, error)
}
