// Package executor runs docker CLI commands as subprocesses.
//
// It exposes a single primitive, Runner.Run, which spawns one process per
// call with a mandatory timeout, captures stdout/stderr, and reports the
// exit code. The contract separates three outcomes:
//
//   - nil error, exit code 0: the command succeeded
//   - nil error, non-zero exit code: Docker rejected the command; the
//     captured stderr says why
//   - non-nil error: the command could not run at all (spawn failure,
//     timeout, caller cancellation)
//
// Timeouts kill the entire process group so that docker compose children
// are not orphaned. No retries happen at this layer.
package executor
