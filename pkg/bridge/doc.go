/*
Package bridge connects the Docker daemon's container event stream to the
discovery cache, so the dashboard learns about state changes within tens of
milliseconds instead of waiting out the cache TTL.

# Pipeline

	daemon ──► Listener ──► Bridge.Handle
	                            │
	                            ├─ filter: container events, relevant
	                            │  actions, compose-managed only
	                            ├─ dedup: (container, action) within 1s
	                            ├─ suppress: project mid-operation,
	                            │  except die/destroy
	                            ▼
	                    per-project debouncer
	                            │ leading edge
	                            ▼
	               cache invalidation + project.changed event

The debouncer is a three-state machine (idle, executing, cooling): the
first event in a quiet period invalidates immediately, the rest of the
burst folds into one catch-up invalidation when the window closes, and a
trigger landing mid-execution rearms the window rather than getting lost.
A compose up starting five containers costs at most two refreshes.

The Listener reconnects with backoff when the stream breaks. Every gap is a
blind spot, so both the break and the reconnect force a full invalidation.
*/
package bridge
