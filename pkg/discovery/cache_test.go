package discovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackdock/stackdock/pkg/types"
)

func snapshotOf(names ...string) []*types.Project {
	projects := make([]*types.Project, len(names))
	for i, name := range names {
		projects[i] = &types.Project{Name: name}
	}
	return projects
}

func TestCacheServesFreshSnapshotWithoutRefreshing(t *testing.T) {
	now := time.Now()
	cache := NewCache(WithClock(func() time.Time { return now }))

	var calls int32
	refresh := func(ctx context.Context) ([]*types.Project, error) {
		atomic.AddInt32(&calls, 1)
		return snapshotOf("app"), nil
	}

	first, err := cache.GetOrRefresh(context.Background(), refresh)
	require.NoError(t, err)

	// Reads within the TTL window return the identical snapshot object.
	for i := 0; i < 10; i++ {
		again, err := cache.GetOrRefresh(context.Background(), refresh)
		require.NoError(t, err)
		assert.Same(t, first[0], again[0])
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCacheRefreshesAfterTTL(t *testing.T) {
	now := time.Now()
	cache := NewCache(WithClock(func() time.Time { return now }))

	var calls int32
	refresh := func(ctx context.Context) ([]*types.Project, error) {
		atomic.AddInt32(&calls, 1)
		return snapshotOf("app"), nil
	}

	_, err := cache.GetOrRefresh(context.Background(), refresh)
	require.NoError(t, err)

	now = now.Add(DefaultTTL + time.Second)

	_, err = cache.GetOrRefresh(context.Background(), refresh)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCacheSingleFlight(t *testing.T) {
	cache := NewCache()

	var calls int32
	refresh := func(ctx context.Context) ([]*types.Project, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond) // hold the flight open
		return snapshotOf("app"), nil
	}

	const concurrent = 20
	results := make([][]*types.Project, concurrent)
	var wg sync.WaitGroup
	for i := 0; i < concurrent; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := cache.GetOrRefresh(context.Background(), refresh)
			if assert.NoError(t, err) {
				results[i] = snap
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "concurrent callers must share one refresh")
	for i := 1; i < concurrent; i++ {
		assert.Same(t, results[0][0], results[i][0], "all callers observe the same snapshot")
	}
}

func TestCacheInvalidateForcesRefresh(t *testing.T) {
	now := time.Now()
	cache := NewCache(WithClock(func() time.Time { return now }))

	var calls int32
	refresh := func(ctx context.Context) ([]*types.Project, error) {
		atomic.AddInt32(&calls, 1)
		return snapshotOf("app"), nil
	}

	_, err := cache.GetOrRefresh(context.Background(), refresh)
	require.NoError(t, err)

	// Invalidation is idempotent: double invalidate still costs one refresh.
	cache.Invalidate()
	cache.Invalidate()

	_, err = cache.GetOrRefresh(context.Background(), refresh)
	require.NoError(t, err)
	_, err = cache.GetOrRefresh(context.Background(), refresh)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCacheInvalidateDuringRefreshIsNotLost(t *testing.T) {
	now := time.Now()
	cache := NewCache(WithClock(func() time.Time { return now }))

	var calls int32
	refresh := func(ctx context.Context) ([]*types.Project, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			// An operation finishes while this refresh is mid-flight: its
			// invalidation must survive the refresh completing.
			cache.Invalidate()
			return snapshotOf("pre-operation-state"), nil
		}
		return snapshotOf("post-operation-state"), nil
	}

	_, err := cache.GetOrRefresh(context.Background(), refresh)
	require.NoError(t, err)

	snap, err := cache.GetOrRefresh(context.Background(), refresh)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "mid-flight invalidation must force the next read to refresh")
	assert.Equal(t, "post-operation-state", snap[0].Name)
}

func TestCacheServesStaleSnapshotOnRefreshFailure(t *testing.T) {
	now := time.Now()
	cache := NewCache(WithClock(func() time.Time { return now }))

	good := snapshotOf("app")
	_, err := cache.GetOrRefresh(context.Background(), func(ctx context.Context) ([]*types.Project, error) {
		return good, nil
	})
	require.NoError(t, err)

	cache.Invalidate()

	snap, err := cache.GetOrRefresh(context.Background(), func(ctx context.Context) ([]*types.Project, error) {
		return nil, errors.New("docker went away")
	})
	require.NoError(t, err, "stale snapshot wins over refresh error")
	assert.Same(t, good[0], snap[0])
}

func TestCacheErrorWithoutPriorSnapshot(t *testing.T) {
	cache := NewCache()

	boom := errors.New("daemon unreachable")
	_, err := cache.GetOrRefresh(context.Background(), func(ctx context.Context) ([]*types.Project, error) {
		return nil, boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
