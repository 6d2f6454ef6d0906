/*
Package discovery treats the Docker daemon as the single source of truth for
compose project state and serves it to readers through a short-TTL cache.

# Architecture

	┌────────────────── DISCOVERY ──────────────────────┐
	│                                                     │
	│  ListProjects / GetProject                          │
	│        │                                            │
	│        ▼                                            │
	│  Cache (TTL 10s, single-flight)                     │
	│        │ expired or invalidated                     │
	│        ▼                                            │
	│  refresh:                                           │
	│    docker compose ls --all --format json            │
	│        │                                            │
	│        ▼  per project, bounded concurrency          │
	│    docker compose -p <name> ps --format json        │
	│        │                                            │
	│        ▼                                            │
	│    state mapper → []*types.Project snapshot         │
	│    + stacks-dir scan for NotStarted projects        │
	│                                                     │
	└─────────────────────────────────────────────────────┘

Snapshots are immutable and replaced wholesale. All concurrent callers
observing one refresh see the same snapshot; a failed refresh keeps serving
the last good snapshot and only errors when there is none.

The permission filter is applied after assembly, never before, so the cache
stays permission-agnostic and shared across users.

The Poller is the fallback invalidation path: a fixed-interval full refresh
that catches anything the Docker event stream missed.
*/
package discovery
