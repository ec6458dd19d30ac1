package ledger

import (
	"sort"
	"sync"
)

// accountLocks hands out one mutex per account so mutating operations
// on the same account serialize in the facade before they ever reach
// the store. Locks for distinct ids are independent; operations on
// disjoint accounts never block each other here.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *accountLocks) lockFor(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// acquire locks the given accounts in ascending ID order (duplicates
// collapsed) and returns the matching unlock. The fixed total order is
// what keeps opposite-direction transfers between the same pair from
// deadlocking.
func (l *accountLocks) acquire(ids ...string) func() {
	uniq := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}
	sort.Strings(uniq)
	held := make([]*sync.Mutex, 0, len(uniq))
	for _, id := range uniq {
		m := l.lockFor(id)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
