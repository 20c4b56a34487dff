package services

import (
	"context"
	"errors"
	"sync"
)

// ErrLockTimeout means the exclusive stock lock could not be acquired before
// the caller's context expired. Transient; the caller may retry with backoff.
var ErrLockTimeout = errors.New("timed out waiting for stock lock")

// lockTable hands out one exclusive lock per variant id. SQLite has no
// row-level SELECT FOR UPDATE, so the engine serializes writers here instead:
// the lock is taken before the transaction begins and released after commit
// or rollback, which preserves the hold-until-commit contract.
type lockTable struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{} // capacity 1; holding the token == holding the lock
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{slots: make(map[string]*lockSlot)}
}

func (t *lockTable) slot(id string) *lockSlot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[id]
	if !ok {
		s = &lockSlot{ch: make(chan struct{}, 1)}
		t.slots[id] = s
	}
	s.refs++
	return s
}

func (t *lockTable) put(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.slots[id]
	s.refs--
	if s.refs == 0 {
		delete(t.slots, id)
	}
}

// acquire takes the exclusive locks for ids, which must already be sorted
// and deduplicated. Every caller converging on the same global order is what
// makes opposite-order batches deadlock-free. On context expiry all locks
// taken so far are released and ErrLockTimeout is returned.
func (t *lockTable) acquire(ctx context.Context, ids []string) (release func(), err error) {
	taken := make([]*lockSlot, 0, len(ids))
	takenIDs := make([]string, 0, len(ids))
	release = func() {
		for i := len(taken) - 1; i >= 0; i-- {
			<-taken[i].ch
			t.put(takenIDs[i])
		}
	}
	for _, id := range ids {
		s := t.slot(id)
		select {
		case s.ch <- struct{}{}:
			taken = append(taken, s)
			takenIDs = append(takenIDs, id)
		case <-ctx.Done():
			t.put(id)
			release()
			return nil, ErrLockTimeout
		}
	}
	return release, nil
}
