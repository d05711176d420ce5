// Package lock serializes work per key, e.g. per professional schedule.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrNotAcquired is returned when the lock could not be taken before the
// context expired.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker runs fn while holding the lock for key. fn receives a context that
// is cancelled when the lock can no longer be trusted.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// ProfessionalKey is the key guarding one professional's schedule.
func ProfessionalKey(id uuid.UUID) string {
	return fmt.Sprintf("professional:%s", id)
}

// KeyedMutex is an in-process Locker. Waiters honour context cancellation.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

func (k *KeyedMutex) acquire(key string) *slot {
	k.mu.Lock()
	defer k.mu.Unlock()

	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	return s
}

func (k *KeyedMutex) release(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

func (k *KeyedMutex) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	s := k.acquire(key)
	defer k.release(key, s)

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
	}
	defer func() { <-s.ch }()

	return fn(ctx)
}
