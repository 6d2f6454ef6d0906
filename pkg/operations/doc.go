/*
Package operations executes the mutating compose verbs: up, down, restart,
stop, start, pull and build.

Two rules shape everything here. First, preconditions are checked before any
subprocess spawns: up/pull/build need a compose file on disk, the name-only
verbs need the project to be visible through discovery. Second, operations
on the same project are strictly serialized through a per-project lock: the
second caller queues behind the first rather than failing fast, so the UI
can issue verbs without coordinating. Operations on different projects run
in parallel.

Every verb returns an OperationResult that says exactly what happened; the
engine never retries, because compose verbs are not idempotent in general.
Successful operations invalidate the discovery cache so the next read
reflects the new state immediately.
*/
package operations
