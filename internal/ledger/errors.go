package ledger

import (
	"errors"

	"beanbet/internal/store"
)

var (
	ErrInvalidAmount          = errors.New("invalid_amount")
	ErrInvalidCategory        = errors.New("invalid_category")
	ErrQuotaExceeded          = errors.New("limit_reached")
	ErrSameAccount            = errors.New("same_account")
	ErrRecipientNotFound      = errors.New("recipient_not_found")
	ErrConflictRetryExhausted = errors.New("conflict_retries_exhausted")

	// Re-exported store outcomes so callers only import this package.
	ErrNotFound          = store.ErrNotFound
	ErrInsufficientFunds = store.ErrInsufficientFunds
)
