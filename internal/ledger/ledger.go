package ledger

import (
	"context"
	"errors"
	"time"

	"beanbet/internal/store"
)

// conflictRetries bounds transparent retries of optimistic version
// conflicts before the operation fails as transient.
const conflictRetries = 3

// Config carries the tunables of the ledger facade.
type Config struct {
	BonusAmount     int64
	BonusDailyLimit int
	QuotaLocation   *time.Location
}

// Ledger is the single entry point for every external request: balance
// reads, bets, bonus claims, transfers, and the leaderboard. Mutating
// calls serialize per affected account; reads never take account locks.
type Ledger struct {
	store     store.AccountStore
	wager     *WagerEngine
	bonus     *BonusQuota
	transfers *TransferService
	locks     *accountLocks
}

func New(st store.AccountStore, cfg Config) *Ledger {
	return &Ledger{
		store:     st,
		wager:     NewWagerEngine(st),
		bonus:     NewBonusQuota(st, cfg.BonusAmount, cfg.BonusDailyLimit, cfg.QuotaLocation),
		transfers: NewTransferService(st),
		locks:     newAccountLocks(),
	}
}

// CreateAccount registers a new durable account with the starting
// balance. Called once per registration by the auth layer.
func (l *Ledger) CreateAccount(ctx context.Context, username, passwordHash, currency string, startingBalance int64) (*store.Account, error) {
	a := &store.Account{
		ID:           store.NewID(),
		Username:     username,
		PasswordHash: passwordHash,
		Balance:      startingBalance,
		Currency:     currency,
	}
	if err := l.store.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// AccountByUsername resolves an account addressed by username, as
// transfers on the wire are.
func (l *Ledger) AccountByUsername(ctx context.Context, username string) (*store.Account, error) {
	return l.store.GetByUsername(ctx, username)
}

// Balance is a read-only snapshot of one account.
func (l *Ledger) Balance(ctx context.Context, accountID string) (*store.Account, error) {
	return l.store.Get(ctx, accountID)
}

// PlaceBet resolves a color wager and settles it against the balance.
func (l *Ledger) PlaceBet(ctx context.Context, accountID string, stake int64, chosen Category) (*WagerResult, error) {
	unlock := l.locks.acquire(accountID)
	defer unlock()
	var res *WagerResult
	err := l.withConflictRetry(func() error {
		var err error
		res, err = l.wager.Resolve(ctx, accountID, stake, chosen)
		return err
	})
	return res, err
}

// ClaimBonus grants the daily bonus if quota remains for today.
func (l *Ledger) ClaimBonus(ctx context.Context, accountID string) (*GrantResult, error) {
	unlock := l.locks.acquire(accountID)
	defer unlock()
	var res *GrantResult
	err := l.withConflictRetry(func() error {
		var err error
		res, err = l.bonus.Grant(ctx, accountID)
		return err
	})
	return res, err
}

// Transfer moves funds between two accounts atomically.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID string, amount int64) (*TransferResult, error) {
	if fromID == toID {
		// Checked before lock acquisition: the pair lock collapses
		// duplicates, but the operation is invalid regardless.
		return nil, ErrSameAccount
	}
	unlock := l.locks.acquire(fromID, toID)
	defer unlock()
	var res *TransferResult
	err := l.withConflictRetry(func() error {
		var err error
		res, err = l.transfers.Transfer(ctx, fromID, toID, amount)
		return err
	})
	return res, err
}

// TopBalances returns the leaderboard: at most limit accounts by
// balance descending, ties broken by account ID ascending.
func (l *Ledger) TopBalances(ctx context.Context, limit int) ([]store.Account, error) {
	return l.store.TopBalances(ctx, limit)
}

// Entries lists committed balance movements, newest first.
func (l *Ledger) Entries(ctx context.Context, accountID string, limit, offset int) ([]store.Entry, error) {
	return l.store.ListEntries(ctx, accountID, limit, offset)
}

func (l *Ledger) withConflictRetry(op func() error) error {
	var err error
	for attempt := 0; attempt <= conflictRetries; attempt++ {
		err = op()
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
	}
	return ErrConflictRetryExhausted
}
