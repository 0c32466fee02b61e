package simulator

import "sync"

// tokenLocks hands out one mutex per token. Entries are dropped once no
// goroutine holds or waits on them.
type tokenLocks struct {
	mu    sync.Mutex
	locks map[string]*tokenLock
}

type tokenLock struct {
	sync.Mutex
	refs int
}

func newTokenLocks() *tokenLocks {
	return &tokenLocks{locks: make(map[string]*tokenLock)}
}

// lock blocks until tokenID is free and returns the matching unlock
func (l *tokenLocks) lock(tokenID string) func() {
	l.mu.Lock()
	tl, ok := l.locks[tokenID]
	if !ok {
		tl = &tokenLock{}
		l.locks[tokenID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.Lock()
	return func() {
		tl.Unlock()

		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, tokenID)
		}
		l.mu.Unlock()
	}
}

func (l *tokenLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
