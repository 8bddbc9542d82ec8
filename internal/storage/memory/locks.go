package memory

import (
	"sync"

	"github.com/JhonesBR/go-wallet/internal/wallet"
)

// lockTable hands out one mutex per balance key. Entries are dropped once no
// unit of work holds or waits on them.
type lockTable struct {
	mu    sync.Mutex
	locks map[wallet.BalanceKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[wallet.BalanceKey]*keyLock)}
}

// acquire locks keys in the given order; callers pass wallet.SortKeys output so
// two units over the same pair of accounts can never wait on each other.
func (t *lockTable) acquire(keys []wallet.BalanceKey) func() {
	held := make([]*keyLock, 0, len(keys))
	for _, k := range keys {
		t.mu.Lock()
		l, ok := t.locks[k]
		if !ok {
			l = &keyLock{}
			t.locks[k] = l
		}
		l.refs++
		t.mu.Unlock()

		l.mu.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
		}
		t.mu.Lock()
		for i, k := range keys {
			held[i].refs--
			if held[i].refs == 0 {
				delete(t.locks, k)
			}
		}
		t.mu.Unlock()
	}
}
