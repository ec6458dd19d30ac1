package ledger

import (
	"context"
	"time"

	"beanbet/internal/store"
)

const quotaDayFormat = "2006-01-02"

// GrantResult reports a successful bonus grant.
type GrantResult struct {
	Balance        int64
	RemainingToday int
}

// BonusQuota enforces the per-account daily grant counter. The lazy
// day reset, the counter check, the increment, and the balance credit
// all run inside one atomic store mutation; splitting the read-check
// from the write is exactly the race that lets concurrent claims
// jointly exceed the limit.
type BonusQuota struct {
	store      store.AccountStore
	amount     int64
	dailyLimit int
	loc        *time.Location
	now        func() time.Time
}

func NewBonusQuota(st store.AccountStore, amount int64, dailyLimit int, loc *time.Location) *BonusQuota {
	if loc == nil {
		loc = time.UTC
	}
	return &BonusQuota{
		store:      st,
		amount:     amount,
		dailyLimit: dailyLimit,
		loc:        loc,
		now:        time.Now,
	}
}

// Grant credits the bonus once if the account has grants left for the
// current calendar day in the reference timezone.
func (b *BonusQuota) Grant(ctx context.Context, accountID string) (*GrantResult, error) {
	today := b.now().In(b.loc).Format(quotaDayFormat)
	acct, err := b.store.Mutate(ctx, accountID, 0, "bonus_grant", func(a *store.Account) error {
		if a.QuotaDay != today {
			a.QuotaDay = today
			a.BonusesUsed = 0
		}
		if a.BonusesUsed >= b.dailyLimit {
			return ErrQuotaExceeded
		}
		a.BonusesUsed++
		a.Balance += b.amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &GrantResult{
		Balance:        acct.Balance,
		RemainingToday: b.dailyLimit - acct.BonusesUsed,
	}, nil
}
