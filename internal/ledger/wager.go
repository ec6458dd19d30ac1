package ledger

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"beanbet/internal/store"
)

// Category is a wager outcome color.
type Category string

const (
	CategoryBlack Category = "black"
	CategoryRed   Category = "red"
	CategoryGreen Category = "green"
)

// Cumulative boundaries over one uniform draw in [0,1). The order is
// fixed and load-bearing: [0, 0.01) green, [0.01, 0.50) red,
// [0.50, 1.0) black, giving green 1%, red 49%, black 50%.
const (
	greenUpper = 0.01
	redUpper   = 0.50
)

// redNumbers are the red pockets of a European wheel; the remaining
// 1..36 are black and 0 is green. Only used for the displayed number.
var redNumbers = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true,
	14: true, 16: true, 18: true, 19: true, 21: true, 23: true,
	25: true, 27: true, 30: true, 32: true, 34: true, 36: true,
}

// WagerResult is the resolved outcome of one bet. Produced once per
// request and never replayed.
type WagerResult struct {
	Chosen      Category
	Rolled      Category
	WheelNumber int
	Win         bool
	Balance     int64
}

// WagerEngine resolves color bets and submits the resulting signed
// delta to the account store as one atomic mutation.
type WagerEngine struct {
	store store.AccountStore
	draw  func() float64 // uniform in [0,1)

	mu  sync.Mutex
	rng *rand.Rand
}

func NewWagerEngine(st store.AccountStore) *WagerEngine {
	e := &WagerEngine{
		store: st,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	e.draw = e.defaultDraw
	return e
}

func (e *WagerEngine) defaultDraw() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()
}

// categoryFor maps one uniform draw to a color by the fixed cumulative
// ranges above.
func categoryFor(u float64) Category {
	switch {
	case u < greenUpper:
		return CategoryGreen
	case u < redUpper:
		return CategoryRed
	default:
		return CategoryBlack
	}
}

// wheelNumberFor picks a display number consistent with the rolled
// color, so the payload never shows a red number for a black result.
func (e *WagerEngine) wheelNumberFor(c Category) int {
	if c == CategoryGreen {
		return 0
	}
	for {
		e.mu.Lock()
		n := e.rng.Intn(36) + 1
		e.mu.Unlock()
		if redNumbers[n] == (c == CategoryRed) {
			return n
		}
	}
}

// Resolve draws the outcome for one bet and commits the signed delta.
// The stake is re-checked against the balance inside the atomic
// mutation: an advisory check at the HTTP boundary may have seen an
// older balance, and that race must surface as insufficient_funds, not
// as a lost update.
func (e *WagerEngine) Resolve(ctx context.Context, accountID string, stake int64, chosen Category) (*WagerResult, error) {
	if stake <= 0 {
		return nil, ErrInvalidAmount
	}
	switch chosen {
	case CategoryBlack, CategoryRed, CategoryGreen:
	default:
		return nil, ErrInvalidCategory
	}

	rolled := categoryFor(e.draw())
	win := chosen == rolled
	delta := -stake
	entryType := "bet_loss"
	if win {
		delta = stake
		entryType = "bet_win"
	}

	acct, err := e.store.Mutate(ctx, accountID, 0, entryType, func(a *store.Account) error {
		if a.Balance < stake {
			return ErrInsufficientFunds
		}
		a.Balance += delta
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &WagerResult{
		Chosen:      chosen,
		Rolled:      rolled,
		WheelNumber: e.wheelNumberFor(rolled),
		Win:         win,
		Balance:     acct.Balance,
	}, nil
}
