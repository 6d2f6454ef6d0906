package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/stackdock/stackdock/pkg/log"
	"github.com/stackdock/stackdock/pkg/metrics"
	"github.com/stackdock/stackdock/pkg/types"
)

// Result captures everything a caller needs to judge a finished command.
// A non-zero ExitCode with a nil error is a command-level failure, not an
// executor failure; callers inspect ExitCode.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner is the single subprocess primitive the engine builds on. Arguments
// are passed as an argv vector, never through a shell, so project names and
// paths cannot be used for injection.
type Runner interface {
	Run(ctx context.Context, workingDir string, args []string, timeout time.Duration) (Result, error)
}

// Executor runs the docker binary as a subprocess. It has no knowledge of
// caching or projects; callers decide about retries.
type Executor struct {
	binary string
	logger zerolog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithBinary overrides the docker binary path. Used by tests.
func WithBinary(path string) Option {
	return func(e *Executor) { e.binary = path }
}

// New creates an Executor that invokes the docker CLI.
func New(opts ...Option) *Executor {
	e := &Executor{
		binary: "docker",
		logger: log.WithComponent("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run spawns exactly one subprocess, waits for it to exit, and captures its
// output. The timeout is mandatory; on expiry the whole process group is
// killed so docker compose children do not outlive the parent.
func (e *Executor) Run(ctx context.Context, workingDir string, args []string, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		return Result{ExitCode: -1}, fmt.Errorf("%w: timeout is required", types.ErrExecutor)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.binary, args...)
	cmd.Dir = workingDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Detach into a dedicated process group so cancellation can take the
	// entire subprocess tree down, not just the direct child.
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = 5 * time.Second

	verb := verbLabel(args)
	timer := metrics.NewTimer()

	err := cmd.Run()
	duration := timer.Duration()
	metrics.CommandDuration.WithLabelValues(verb).Observe(duration.Seconds())

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	switch {
	case runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		res.ExitCode = -1
		metrics.CommandsTotal.WithLabelValues(verb, "timeout").Inc()
		e.logger.Warn().Strs("args", args).Dur("timeout", timeout).Msg("command timed out, process group killed")
		return res, fmt.Errorf("%w: %w after %s", types.ErrExecutor, types.ErrTimeout, timeout)

	case ctx.Err() != nil:
		res.ExitCode = -1
		metrics.CommandsTotal.WithLabelValues(verb, "canceled").Inc()
		return res, fmt.Errorf("%w: %w", types.ErrExecutor, ctx.Err())

	case err == nil:
		res.ExitCode = 0
		metrics.CommandsTotal.WithLabelValues(verb, "ok").Inc()
		e.logger.Debug().Strs("args", args).Dur("duration", duration).Msg("command succeeded")
		return res, nil

	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The command ran and Docker said no. Not an executor error.
			res.ExitCode = exitErr.ExitCode()
			metrics.CommandsTotal.WithLabelValues(verb, "nonzero").Inc()
			e.logger.Debug().Strs("args", args).Int("exit_code", res.ExitCode).Msg("command exited non-zero")
			return res, nil
		}
		res.ExitCode = -1
		metrics.CommandsTotal.WithLabelValues(verb, "spawn_error").Inc()
		return res, fmt.Errorf("%w: spawning %s: %w", types.ErrExecutor, e.binary, err)
	}
}

// verbLabel keeps metric cardinality bounded: "compose up", "compose ls",
// "version", never project names or paths.
func verbLabel(args []string) string {
	if len(args) == 0 {
		return "unknown"
	}
	if args[0] == "compose" {
		skipNext := false
		for _, a := range args[1:] {
			if skipNext {
				skipNext = false
				continue
			}
			switch a {
			case "-p", "--project-name", "-f", "--file":
				skipNext = true
				continue
			}
			if looksLikeSubcommand(a) {
				return "compose " + a
			}
		}
		return "compose"
	}
	return args[0]
}

func looksLikeSubcommand(s string) bool {
	switch s {
	case "ls", "ps", "up", "down", "start", "stop", "restart", "pull", "build", "logs", "config", "version":
		return true
	}
	return false
}
