package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an AccountStore backed by process memory. It implements the
// same contract as the postgres store (per-account serialization,
// non-negative balances, strict version increments) and backs the unit
// and handler tests.
type Memory struct {
	mu         sync.RWMutex
	accounts   map[string]*Account
	byUsername map[string]string
	entries    []Entry
	locks      map[string]*sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{
		accounts:   make(map[string]*Account),
		byUsername: make(map[string]string),
		locks:      make(map[string]*sync.Mutex),
	}
}

func (m *Memory) Create(ctx context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUsername[a.Username]; ok {
		return ErrUsernameTaken
	}
	cp := *a
	if cp.Version == 0 {
		cp.Version = 1
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.accounts[cp.ID] = &cp
	m.byUsername[cp.Username] = cp.ID
	if cp.Balance != 0 {
		m.entries = append(m.entries, Entry{
			ID:        NewID(),
			AccountID: cp.ID,
			Type:      "opening_credit",
			Amount:    cp.Balance,
			CreatedAt: now,
		})
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) GetByUsername(ctx context.Context, username string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byUsername[username]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.accounts[id]
	return &cp, nil
}

// lockFor returns the serialization point for one account, creating it
// on first use. Accounts are never deleted, so locks are never evicted.
func (m *Memory) lockFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *Memory) Mutate(ctx context.Context, id string, expectedVersion int64, entryType string, fn MutateFn) (*Account, error) {
	l := m.lockFor(id)
	l.Lock()
	defer l.Unlock()

	m.mu.RLock()
	cur, ok := m.accounts[id]
	if !ok {
		m.mu.RUnlock()
		return nil, ErrNotFound
	}
	work := *cur
	m.mu.RUnlock()

	if expectedVersion > 0 && work.Version != expectedVersion {
		return nil, ErrVersionConflict
	}
	prevBalance := work.Balance
	if err := fn(&work); err != nil {
		return nil, err
	}
	if work.Balance < 0 {
		return nil, ErrInsufficientFunds
	}
	work.Version++
	now := time.Now().UTC()
	work.UpdatedAt = now

	m.mu.Lock()
	m.accounts[id] = &work
	if delta := work.Balance - prevBalance; delta != 0 {
		m.entries = append(m.entries, Entry{
			ID:        NewID(),
			AccountID: id,
			Type:      entryType,
			Amount:    delta,
			CreatedAt: now,
		})
	}
	m.mu.Unlock()

	cp := work
	return &cp, nil
}

func (m *Memory) MutatePair(ctx context.Context, aID, bID string, entryType string, fn PairMutateFn) (*Account, *Account, error) {
	if aID == bID {
		return nil, nil, ErrNotFound
	}
	firstID, secondID := aID, bID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}
	first := m.lockFor(firstID)
	second := m.lockFor(secondID)
	first.Lock()
	defer first.Unlock()
	second.Lock()
	defer second.Unlock()

	m.mu.RLock()
	curA, okA := m.accounts[aID]
	curB, okB := m.accounts[bID]
	if !okA || !okB {
		m.mu.RUnlock()
		return nil, nil, ErrNotFound
	}
	workA, workB := *curA, *curB
	m.mu.RUnlock()

	prevA, prevB := workA.Balance, workB.Balance
	if err := fn(&workA, &workB); err != nil {
		return nil, nil, err
	}
	if workA.Balance < 0 || workB.Balance < 0 {
		return nil, nil, ErrInsufficientFunds
	}
	now := time.Now().UTC()
	workA.Version++
	workB.Version++
	workA.UpdatedAt = now
	workB.UpdatedAt = now

	m.mu.Lock()
	m.accounts[aID] = &workA
	m.accounts[bID] = &workB
	if delta := workA.Balance - prevA; delta != 0 {
		m.entries = append(m.entries, Entry{ID: NewID(), AccountID: aID, Type: entryType, Amount: delta, CreatedAt: now})
	}
	if delta := workB.Balance - prevB; delta != 0 {
		m.entries = append(m.entries, Entry{ID: NewID(), AccountID: bID, Type: entryType, Amount: delta, CreatedAt: now})
	}
	m.mu.Unlock()

	cpA, cpB := workA, workB
	return &cpA, &cpB, nil
}

func (m *Memory) TopBalances(ctx context.Context, limit int) ([]Account, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	out := make([]Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, *a)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Balance != out[j].Balance {
			return out[i].Balance > out[j].Balance
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListEntries(ctx context.Context, accountID string, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	filtered := make([]Entry, 0, len(m.entries))
	for i := len(m.entries) - 1; i >= 0; i-- { // newest first
		e := m.entries[i]
		if accountID != "" && e.AccountID != accountID {
			continue
		}
		filtered = append(filtered, e)
	}
	if offset >= len(filtered) {
		return []Entry{}, nil
	}
	filtered = filtered[offset:]
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}
