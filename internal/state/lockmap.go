package state

import "sync"

// KeyedMutex hands out one mutex per key so contention stays per-workflow.
// No lock ever spans two keys; distinct workflow ids run fully in parallel.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Get returns the mutex for key, creating it on first use.
func (k *KeyedMutex) Get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	return l
}

// Drop forgets the mutex for key. Callers must hold no reference to it.
func (k *KeyedMutex) Drop(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.locks, key)
}
