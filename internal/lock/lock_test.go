package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	var inside, maxInside int32

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			return m.WithLock(ctx, "professional:1", func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					cur := atomic.LoadInt32(&maxInside)
					if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, m.slots)
}

func TestKeyedMutexDifferentKeysRunConcurrently(t *testing.T) {
	m := NewKeyedMutex()
	holding := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = m.WithLock(context.Background(), "a", func(context.Context) error {
			close(holding)
			<-done
			return nil
		})
	}()
	<-holding

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := m.WithLock(ctx, "b", func(context.Context) error { return nil })
	close(done)
	assert.NoError(t, err)
}

func TestKeyedMutexHonoursDeadline(t *testing.T) {
	m := NewKeyedMutex()
	holding := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		_ = m.WithLock(context.Background(), "k", func(context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	err := m.WithLock(ctx, "k", func(context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.False(t, called)

	close(release)
	wg.Wait()
}

func TestProfessionalKey(t *testing.T) {
	id := uuid.MustParse("6f1c7c1e-9a53-4a53-9f0e-2d7f3b9a1c11")
	assert.Equal(t, "professional:6f1c7c1e-9a53-4a53-9f0e-2d7f3b9a1c11", ProfessionalKey(id))
}
