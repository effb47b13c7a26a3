package core

import "sync"

// KeyLocks hands out one mutex per key, so that writers of the same object run one at a time.
// A key's mutex is dropped once nobody holds or waits for it.
type KeyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int // holders and waiters, guarded by KeyLocks.mu
}

func NewKeyLocks() *KeyLocks {
	return &KeyLocks{locks: make(map[string]*keyLock)}
}

// Lock blocks until the key's mutex is held and returns its unlock func.
func (kl *KeyLocks) Lock(key string) (unlock func()) {
	kl.mu.Lock()
	l, ok := kl.locks[key]
	if !ok {
		l = new(keyLock)
		kl.locks[key] = l
	}
	l.refs++
	kl.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()

		kl.mu.Lock()
		defer kl.mu.Unlock()
		l.refs--
		if l.refs == 0 {
			delete(kl.locks, key)
		}
	}
}

// Len returns the number of keys currently locked or waited for.
func (kl *KeyLocks) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.locks)
}
