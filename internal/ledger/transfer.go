package ledger

import (
	"context"
	"errors"

	"beanbet/internal/store"
)

// TransferResult reports both post-transfer balances.
type TransferResult struct {
	FromBalance int64
	ToBalance   int64
}

// TransferService moves funds between two accounts as one atomic unit.
// The store locks the pair in ascending ID order, so two transfers
// moving money in opposite directions between the same accounts cannot
// deadlock.
type TransferService struct {
	store store.AccountStore
}

func NewTransferService(st store.AccountStore) *TransferService {
	return &TransferService{store: st}
}

func (t *TransferService) Transfer(ctx context.Context, fromID, toID string, amount int64) (*TransferResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if fromID == toID {
		return nil, ErrSameAccount
	}
	if _, err := t.store.Get(ctx, toID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	from, to, err := t.store.MutatePair(ctx, fromID, toID, "transfer", func(a, b *store.Account) error {
		// Re-checked under the row locks, not just at the boundary.
		if a.Balance < amount {
			return ErrInsufficientFunds
		}
		a.Balance -= amount
		b.Balance += amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &TransferResult{FromBalance: from.Balance, ToBalance: to.Balance}, nil
}
