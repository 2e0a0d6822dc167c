package redisclient

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/care-coordination/internal/lock"
)

func newTestLocker(t *testing.T, wait time.Duration) (lock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return NewRedisLocker(client, 5*time.Second, wait), mr
}

func TestRedisLocker_ReleasesAfterRun(t *testing.T) {
	l, mr := newTestLocker(t, 0)

	err := l.WithLock(context.Background(), "availableSlots", func(context.Context) error {
		assert.True(t, mr.Exists("lock:table:availableSlots"))
		return nil
	})

	require.NoError(t, err)
	assert.False(t, mr.Exists("lock:table:availableSlots"))
}

func TestRedisLocker_HeldKeyNotAcquiredWithoutWait(t *testing.T) {
	l, mr := newTestLocker(t, 0)
	require.NoError(t, mr.Set("lock:table:appointments", "someone-else"))

	err := l.WithLock(context.Background(), "appointments", func(context.Context) error {
		t.Fatal("fn must not run")
		return nil
	})

	assert.ErrorIs(t, err, lock.ErrNotAcquired)
	got, _ := mr.Get("lock:table:appointments")
	assert.Equal(t, "someone-else", got, "foreign token is never deleted")
}

func TestRedisLocker_WaitsForRelease(t *testing.T) {
	l, _ := newTestLocker(t, 2*time.Second)
	ctx := context.Background()

	var inside, overlap int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(ctx, "pharmacyInventory", func(context.Context) error {
				if atomic.AddInt32(&inside, 1) > 1 {
					atomic.StoreInt32(&overlap, 1)
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&overlap))
}
