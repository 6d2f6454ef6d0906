package types

import "errors"

// Error kinds used across the engine. Callers match with errors.Is to
// distinguish "Docker said no" from "we could not even ask Docker".
var (
	// ErrValidation marks failures attributable to caller input, e.g. asking
	// for `up` without a compose file. Never retried.
	ErrValidation = errors.New("validation failure")

	// ErrCommand marks a non-zero exit from a docker command. The command ran;
	// Docker rejected it.
	ErrCommand = errors.New("command failure")

	// ErrExecutor marks infrastructure-level failures: spawn errors, timeouts,
	// killed subprocesses, malformed CLI output.
	ErrExecutor = errors.New("executor failure")

	// ErrTimeout is an ErrExecutor cause for commands killed at the deadline.
	ErrTimeout = errors.New("command timed out")

	// ErrDockerUnavailable marks an unreachable Docker daemon during
	// discovery. Read paths degrade to the last snapshot when one exists.
	ErrDockerUnavailable = errors.New("docker daemon unavailable")

	// ErrProjectNotFound marks a verb aimed at a project Docker does not
	// currently report.
	ErrProjectNotFound = errors.New("project not found")
)
