package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerSerializesSameKey(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithAccount(ctx, locker, 1, 7, func(context.Context) error {
				n := inside.Add(1)
				for {
					cur := maxInside.Load()
					if n <= cur || maxInside.CompareAndSwap(cur, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Equal(t, 0, locker.held())
}

func TestLocalLockerIndependentKeys(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	a, err := locker.Acquire(ctx, AccountKey(1, 1))
	require.NoError(t, err)
	b, err := locker.Acquire(ctx, AccountKey(1, 2))
	require.NoError(t, err)

	require.NoError(t, a.Release(ctx))
	require.NoError(t, b.Release(ctx))
	// double release is a no-op
	require.NoError(t, b.Release(ctx))
	assert.Equal(t, 0, locker.held())
}

func TestBoundedTimesOut(t *testing.T) {
	local := NewLocalLocker()
	ctx := context.Background()

	held, err := local.Acquire(ctx, "k")
	require.NoError(t, err)
	defer held.Release(ctx)

	_, err = Bounded{Inner: local, Wait: 20 * time.Millisecond}.Acquire(ctx, "k")
	assert.ErrorIs(t, err, ErrLockTimeout)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = Bounded{Inner: local, Wait: time.Second}.Acquire(cancelled, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

type failingLocker struct{ err error }

func (f failingLocker) Acquire(context.Context, string) (Lease, error) { return nil, f.err }

func TestChainReleasesOnFailure(t *testing.T) {
	local := NewLocalLocker()
	boom := errors.New("redis down")

	_, err := Chain{local, failingLocker{err: boom}}.Acquire(context.Background(), "k")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, local.held())
}

func TestAccountKey(t *testing.T) {
	assert.Equal(t, "cari:account:3:9", AccountKey(snowflake.ID(3), snowflake.ID(9)))
}

func TestWithAccountPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	err := WithAccount(context.Background(), NewLocalLocker(), 1, 1, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}
