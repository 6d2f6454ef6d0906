package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/stackdock/stackdock/pkg/log"
	"github.com/stackdock/stackdock/pkg/metrics"
	"github.com/stackdock/stackdock/pkg/types"
)

// DefaultTTL trades freshness for not hammering the Docker CLI on every
// UI poll.
const DefaultTTL = 10 * time.Second

// Clock abstracts time.Now so tests can control snapshot age.
type Clock func() time.Time

// RefreshFunc produces a fresh project snapshot.
type RefreshFunc func(ctx context.Context) ([]*types.Project, error)

// Cache holds the last known project snapshot under a single key ("all
// projects"). The snapshot is replaced wholesale on refresh, never patched,
// so concurrent readers can share it without locking.
type Cache struct {
	ttl    time.Duration
	now    Clock
	logger zerolog.Logger

	flight singleflight.Group

	mu          sync.RWMutex
	snapshot    []*types.Project
	fetchedAt   time.Time
	hasSnapshot bool
	invalidated bool
	gen         uint64
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL overrides the default snapshot TTL.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock injects a controllable clock. Used by tests.
func WithClock(now Clock) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache creates an empty cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: log.WithComponent("discovery"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrRefresh returns the cached snapshot when it is younger than the TTL
// and not invalidated; otherwise it refreshes. Concurrent callers hitting an
// expired cache share one in-flight refresh (single-flight) instead of each
// spawning a docker compose ls.
//
// On refresh failure the last good snapshot keeps being served; the error
// surfaces only when there is nothing to fall back on.
func (c *Cache) GetOrRefresh(ctx context.Context, refresh RefreshFunc) ([]*types.Project, error) {
	if snap, ok := c.fresh(); ok {
		metrics.CacheHitsTotal.Inc()
		return snap, nil
	}

	metrics.CacheMissesTotal.Inc()

	result, err, _ := c.flight.Do("projects", func() (interface{}, error) {
		// A caller queued behind a finished flight may find the cache
		// already fresh again.
		if snap, ok := c.fresh(); ok {
			return snap, nil
		}

		startGen := c.generation()

		// The refresh outlives any single caller: its result is shared by
		// everyone awaiting the flight.
		snap, err := refresh(context.WithoutCancel(ctx))
		if err != nil {
			if stale, ok := c.stale(); ok {
				metrics.CacheStaleServesTotal.Inc()
				c.logger.Warn().Err(err).Msg("refresh failed, serving stale snapshot")
				return stale, nil
			}
			return nil, err
		}

		c.store(snap, startGen)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]*types.Project), nil
}

// Invalidate forces the next read to refresh regardless of snapshot age.
// Idempotent and safe to call from any goroutine.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.invalidated = true
	c.gen++
	c.mu.Unlock()
}

// Snapshot returns the current snapshot without triggering a refresh.
func (c *Cache) Snapshot() ([]*types.Project, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot, c.hasSnapshot
}

func (c *Cache) fresh() ([]*types.Project, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasSnapshot || c.invalidated {
		return nil, false
	}
	if c.now().Sub(c.fetchedAt) >= c.ttl {
		return nil, false
	}
	return c.snapshot, true
}

func (c *Cache) stale() ([]*types.Project, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot, c.hasSnapshot
}

func (c *Cache) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// store installs the snapshot. The invalidated flag is cleared only when no
// Invalidate arrived after the refresh began; a mid-flight invalidation must
// still force the next read to refresh, because this snapshot was assembled
// before whatever state change prompted it.
func (c *Cache) store(snap []*types.Project, startGen uint64) {
	c.mu.Lock()
	c.snapshot = snap
	c.fetchedAt = c.now()
	c.hasSnapshot = true
	if c.gen == startGen {
		c.invalidated = false
	}
	c.mu.Unlock()
}
