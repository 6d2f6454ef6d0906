package operations

import (
	"context"
	"sync"
)

// lockTable serializes mutating operations per project name. The policy is
// queue, not fail-fast: a second verb for a busy project waits for the first
// to finish. Locks are context-aware so an aborted HTTP request stops
// waiting instead of holding a goroutine forever.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]chan struct{})}
}

func (lt *lockTable) get(project string) chan struct{} {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	ch, ok := lt.locks[project]
	if !ok {
		ch = make(chan struct{}, 1)
		lt.locks[project] = ch
	}
	return ch
}

// acquire blocks until the project lock is held or the context ends. The
// returned release function is safe to call exactly once from any goroutine.
func (lt *lockTable) acquire(ctx context.Context, project string) (release func(), err error) {
	ch := lt.get(project)
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-ch })
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// busy reports whether a mutating operation currently holds the project
// lock. Used by the event bridge to suppress refreshes mid-operation.
func (lt *lockTable) busy(project string) bool {
	return len(lt.get(project)) > 0
}
