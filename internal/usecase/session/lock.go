package session

import (
	"context"
	"fmt"
	"sync"
)

// KeyedLock provides operation-level mutual exclusion per conversation.
// Two concurrent messages for the same chat id are serialized end to end
// so their read-modify-write of the store never interleaves.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[string]*keyMutex
}

type keyMutex struct {
	mu       sync.Mutex
	refCount int
}

// NewKeyedLock creates a KeyedLock.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{locks: make(map[string]*keyMutex)}
}

// Lock acquires the lock for key. It blocks until the lock is acquired or
// the context is cancelled. The returned unlock function MUST be called
// when the operation completes.
func (kl *KeyedLock) Lock(ctx context.Context, key string) (unlock func(), err error) {
	kl.mu.Lock()
	km, ok := kl.locks[key]
	if !ok {
		km = &keyMutex{}
		kl.locks[key] = km
	}
	km.refCount++
	kl.mu.Unlock()

	release := func() {
		km.mu.Unlock()
		kl.mu.Lock()
		km.refCount--
		if km.refCount == 0 {
			delete(kl.locks, key)
		}
		kl.mu.Unlock()
	}

	acquired := make(chan struct{})
	go func() {
		km.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return release, nil
	case <-ctx.Done():
		// The acquiring goroutine may still obtain the mutex later; make
		// sure it is released so the key never deadlocks.
		go func() {
			<-acquired
			release()
		}()
		return nil, fmt.Errorf("conversation lock: %w", ctx.Err())
	}
}

// ActiveCount returns the number of keys with active or pending locks.
func (kl *KeyedLock) ActiveCount() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.locks)
}
