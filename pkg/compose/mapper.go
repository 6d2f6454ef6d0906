package compose

import (
	"strings"

	"github.com/stackdock/stackdock/pkg/types"
)

// MapComposeStatus translates the status column of `docker compose ls` into
// the engine's state enum. The column aggregates per-state container counts,
// e.g. "running(2)" or "running(1), exited(1)".
func MapComposeStatus(status string) types.State {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return types.StateUnknown
	}

	parts := strings.Split(status, ",")
	states := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if idx := strings.IndexByte(part, '('); idx > 0 {
			part = part[:idx]
		}
		if part != "" {
			states = append(states, part)
		}
	}

	if len(states) == 0 {
		return types.StateUnknown
	}

	if len(states) > 1 {
		for _, s := range states {
			if s == "running" {
				// Some containers running, some settled elsewhere.
				return types.StateDegraded
			}
		}
		return types.StateStopped
	}

	switch states[0] {
	case "running":
		return types.StateRunning
	case "exited", "stopped":
		return types.StateExited
	case "created":
		return types.StateCreated
	case "restarting":
		return types.StateRestarting
	case "paused":
		return types.StateStopped
	case "dead", "removing":
		return types.StateDown
	default:
		return types.StateUnknown
	}
}

// MapServiceState translates a container state plus its health report into
// the service-scoped state enum.
func MapServiceState(state, health string) types.State {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "running":
		if strings.EqualFold(health, "unhealthy") {
			return types.StateDegraded
		}
		return types.StateRunning
	case "exited":
		return types.StateExited
	case "created":
		return types.StateCreated
	case "restarting":
		return types.StateRestarting
	case "paused":
		return types.StateStopped
	case "dead", "removing", "removed":
		return types.StateDown
	case "":
		return types.StateNotStarted
	default:
		return types.StateUnknown
	}
}

// ComputeAvailableActions derives the verb gating for one project snapshot.
// Verbs needing a compose file are never offered without one; name-only
// verbs depend solely on whether Docker currently reports the project.
func ComputeAvailableActions(state types.State, hasComposeFile bool) map[types.Action]bool {
	// Discovery assigns NotStarted only to projects absent from
	// `compose ls`; every other state means Docker reports the project.
	dockerKnows := state != types.StateNotStarted

	actions := make(map[types.Action]bool, len(types.ComposeFileActions)+len(types.NameOnlyActions))
	for _, a := range types.NameOnlyActions {
		actions[a] = dockerKnows
	}
	for _, a := range types.ComposeFileActions {
		actions[a] = hasComposeFile
	}

	// up on an already fully running project is a no-op the UI should not
	// offer; recreating is a distinct verb.
	if state == types.StateRunning {
		actions[types.ActionUp] = false
	}

	return actions
}
