package engine

import "sync"

// lockTable serializes operations per instance. Concurrent callers mutating
// the same instance (two steps completing at nearly the same time) take the
// same lock, preserving the progress invariant; operations on different
// instances proceed in parallel.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*refLock)}
}

// Lock acquires the lock for key and returns the matching unlock function.
// Lock entries are reference counted so the table does not grow with the
// total number of instances ever seen.
func (t *lockTable) Lock(key string) (unlock func()) {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &refLock{}
		t.locks[key] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, key)
		}
		t.mu.Unlock()
	}
}
