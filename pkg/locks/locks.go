// Package locks provides an in-process, per-key lock table with bounded
// acquisition waits. The aggregation engine locks a member's ancestor chain
// root-to-leaf through it; the ledger locks transfer endpoints in
// lexicographic order. Consistent ordering by the caller is what prevents
// deadlock between overlapping chains.
package locks

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrNotAcquired is returned when a lock could not be obtained within the
// configured wait.
var ErrNotAcquired = errors.New("lock not acquired within wait")

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Table hands out one lock per key, created on demand and dropped once no
// goroutine holds or waits on it.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
	wait    time.Duration
}

// NewTable constructs a lock table whose per-key acquisition is bounded by
// wait. A non-positive wait means acquisitions only respect the caller's
// context.
func NewTable(wait time.Duration) *Table {
	return &Table{
		entries: make(map[string]*entry),
		wait:    wait,
	}
}

func (t *Table) checkout(key string) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		t.entries[key] = e
	}
	e.refs++
	return e
}

func (t *Table) checkin(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(t.entries, key)
	}
}

// Acquire locks every key in the order given. On success it returns a release
// function; on failure it releases any partial acquisitions and returns
// ErrNotAcquired (or the context error). Callers must pass keys in a globally
// consistent order.
func (t *Table) Acquire(ctx context.Context, keys ...string) (func(), error) {
	held := make([]string, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			key := held[i]
			t.mu.Lock()
			if e, ok := t.entries[key]; ok {
				e.sem.Release(1)
			}
			t.mu.Unlock()
			t.checkin(key)
		}
	}

	for _, key := range keys {
		e := t.checkout(key)

		acquireCtx := ctx
		var cancel context.CancelFunc
		if t.wait > 0 {
			acquireCtx, cancel = context.WithTimeout(ctx, t.wait)
		}
		err := e.sem.Acquire(acquireCtx, 1)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			t.checkin(key)
			release()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrNotAcquired
		}
		held = append(held, key)
	}

	return release, nil
}

// Len reports how many keys currently have live entries. Exposed for tests
// and metrics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
