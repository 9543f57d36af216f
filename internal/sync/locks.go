package sync

import "sync"

// lockRegistry hands out one mutex per account so batch runs and
// single-task propagations for the same account serialize, while
// different accounts sync concurrently.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*sync.Mutex)}
}

func (r *lockRegistry) forAccount(account string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[account]
	if !ok {
		l = &sync.Mutex{}
		r.locks[account] = l
	}
	return l
}
