// Package health probes the engine's one hard dependency: the Docker
// daemon. The readiness endpoint reports the last probe result.
package health
