package coordinator

import (
	"sync"

	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

// keyedMutex hands out one RWMutex per file. Entries are dropped once no
// caller holds or waits for them.
type keyedMutex struct {
	locks map[pathutil.PathKey]*keyedLock
	mu    sync.Mutex
}

type keyedLock struct {
	sync.RWMutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[pathutil.PathKey]*keyedLock)}
}

func (k *keyedMutex) acquire(key pathutil.PathKey) *keyedLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	return l
}

func (k *keyedMutex) release(key pathutil.PathKey, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Lock takes the exclusive lock for key and returns its release func.
func (k *keyedMutex) Lock(key pathutil.PathKey) func() {
	l := k.acquire(key)
	l.Lock()
	return func() {
		l.Unlock()
		k.release(key, l)
	}
}

// RLock takes the shared lock for key and returns its release func.
func (k *keyedMutex) RLock(key pathutil.PathKey) func() {
	l := k.acquire(key)
	l.RLock()
	return func() {
		l.RUnlock()
		k.release(key, l)
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
