package analysis

import "sync"

// keyedLock allows one holder per key and never blocks.
type keyedLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func newKeyedLock() *keyedLock {
	return &keyedLock{held: map[string]bool{}}
}

func (k *keyedLock) tryLock(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.held[key] {
		return false
	}
	k.held[key] = true
	return true
}

func (k *keyedLock) unlock(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.held, key)
}
