package usecase

import "sync"

// sourceLocks serializes work per source id inside one process.
// Entries are dropped once the last holder releases them.
type sourceLocks struct {
	mu    sync.Mutex
	locks map[string]*sourceLock
}

type sourceLock struct {
	mu   sync.Mutex
	refs int
}

func newSourceLocks() *sourceLocks {
	return &sourceLocks{locks: make(map[string]*sourceLock)}
}

func (l *sourceLocks) acquire(sourceID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[sourceID]
	if !ok {
		entry = &sourceLock{}
		l.locks[sourceID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, sourceID)
		}
		l.mu.Unlock()
	}
}

func (l *sourceLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
