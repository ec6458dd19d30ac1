package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"beanbet/internal/store"
)

func TestTransferMovesFunds(t *testing.T) {
	st := store.NewMemory()
	seedAccount(t, st, "a1", 500)
	seedAccount(t, st, "b1", 100)
	svc := NewTransferService(st)

	res, err := svc.Transfer(context.Background(), "a1", "b1", 200)
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if res.FromBalance != 300 || res.ToBalance != 300 {
		t.Fatalf("balances = %d, %d, want 300, 300", res.FromBalance, res.ToBalance)
	}
}

func TestTransferRejections(t *testing.T) {
	st := store.NewMemory()
	seedAccount(t, st, "a1", 100)
	seedAccount(t, st, "b1", 0)
	svc := NewTransferService(st)
	ctx := context.Background()

	if _, err := svc.Transfer(ctx, "a1", "b1", 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("amount 0 error = %v, want ErrInvalidAmount", err)
	}
	if _, err := svc.Transfer(ctx, "a1", "b1", -10); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("amount -10 error = %v, want ErrInvalidAmount", err)
	}
	if _, err := svc.Transfer(ctx, "a1", "a1", 10); !errors.Is(err, ErrSameAccount) {
		t.Fatalf("self transfer error = %v, want ErrSameAccount", err)
	}
	if _, err := svc.Transfer(ctx, "a1", "nobody", 10); !errors.Is(err, ErrRecipientNotFound) {
		t.Fatalf("missing recipient error = %v, want ErrRecipientNotFound", err)
	}
	if _, err := svc.Transfer(ctx, "a1", "b1", 101); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("overdraft error = %v, want ErrInsufficientFunds", err)
	}

	a, _ := st.Get(ctx, "a1")
	b, _ := st.Get(ctx, "b1")
	if a.Balance != 100 || b.Balance != 0 {
		t.Fatalf("rejected transfers moved funds: %d, %d", a.Balance, b.Balance)
	}
}

func TestTransferConservationUnderConcurrency(t *testing.T) {
	st := store.NewMemory()
	seedAccount(t, st, "a1", 10_000)
	seedAccount(t, st, "b1", 10_000)
	svc := NewTransferService(st)

	const rounds = 100
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, _ = svc.Transfer(context.Background(), "a1", "b1", 7)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, _ = svc.Transfer(context.Background(), "b1", "a1", 3)
		}
	}()
	wg.Wait()

	a, _ := st.Get(context.Background(), "a1")
	b, _ := st.Get(context.Background(), "b1")
	if a.Balance+b.Balance != 20_000 {
		t.Fatalf("conservation violated: %d + %d != 20000", a.Balance, b.Balance)
	}
}
