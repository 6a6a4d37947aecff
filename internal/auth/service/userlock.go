package service

import "sync"

// userLocks serialises refresh and logout per user within this process. The
// conditional UPDATE in the store is what actually guarantees single-use
// across instances; the lock just keeps concurrent local attempts from all
// burning a round-trip to lose the same race.
//
// Entries are reference-counted and removed once the last holder releases,
// so the map stays proportional to in-flight requests rather than to the
// user population.
type userLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{entries: make(map[string]*lockEntry)}
}

// Lock acquires the per-user mutex and returns the release func.
func (l *userLocks) Lock(userID string) func() {
	l.mu.Lock()
	e, ok := l.entries[userID]
	if !ok {
		e = &lockEntry{}
		l.entries[userID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, userID)
		}
		l.mu.Unlock()
	}
}

// active reports how many users currently have a lock entry. Test hook.
func (l *userLocks) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
