package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_SerialisesSameKey(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(ctx, "appointments", func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside, "only one holder at a time")
	assert.Empty(t, l.slots, "entries are dropped once unused")
}

func TestLocal_DifferentKeysDoNotBlock(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	err := l.WithLock(ctx, "a", func(ctx context.Context) error {
		done := make(chan error, 1)
		go func() {
			done <- l.WithLock(ctx, "b", func(context.Context) error { return nil })
		}()
		select {
		case err := <-done:
			return err
		case <-time.After(time.Second):
			t.Fatal("lock on b blocked behind a")
			return nil
		}
	})
	require.NoError(t, err)
}

func TestLocal_ContextCancelWhileWaiting(t *testing.T) {
	l := NewLocal()
	held := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = l.WithLock(context.Background(), "k", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	err := l.WithLock(ctx, "k", func(context.Context) error {
		called = true
		return nil
	})
	close(release)

	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
}

type recordingLocker struct {
	mu    sync.Mutex
	order []string
}

func (r *recordingLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	r.mu.Lock()
	r.order = append(r.order, key)
	r.mu.Unlock()
	return fn(ctx)
}

func TestWithKeys_SortedAndDeduplicated(t *testing.T) {
	r := &recordingLocker{}
	ran := false

	err := WithKeys(context.Background(), r, []string{"slots", "appointments", "slots"}, func(context.Context) error {
		ran = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, []string{"appointments", "slots"}, r.order)
}

func TestWithKeys_PropagatesError(t *testing.T) {
	l := NewLocal()
	want := assert.AnError

	err := WithKeys(context.Background(), l, []string{"x", "y"}, func(context.Context) error {
		return want
	})

	assert.ErrorIs(t, err, want)
}
