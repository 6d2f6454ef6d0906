package health

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/stackdock/stackdock/pkg/executor"
)

// Result represents the outcome of a daemon health check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker probes a dependency the engine cannot function without.
type Checker interface {
	Check(ctx context.Context) Result
	Name() string
}

// DaemonChecker verifies the Docker daemon answers. A reachable docker
// binary with an unreachable daemon is the common failure mode on a host,
// so the probe goes through the daemon (docker version), not just the CLI.
type DaemonChecker struct {
	runner  executor.Runner
	timeout time.Duration

	mu   sync.RWMutex
	last Result
}

// NewDaemonChecker creates a checker backed by the shared executor.
func NewDaemonChecker(runner executor.Runner) *DaemonChecker {
	return &DaemonChecker{
		runner:  runner,
		timeout: 5 * time.Second,
	}
}

// Name identifies the checker in readiness output.
func (c *DaemonChecker) Name() string {
	return "docker-daemon"
}

// Check runs docker version against the daemon and records the result.
func (c *DaemonChecker) Check(ctx context.Context) Result {
	start := time.Now()
	res, err := c.runner.Run(ctx, "", []string{"version", "--format", "{{.Server.Version}}"}, c.timeout)

	result := Result{
		CheckedAt: start,
		Duration:  time.Since(start),
	}
	switch {
	case err != nil:
		result.Message = err.Error()
	case res.ExitCode != 0:
		result.Message = strings.TrimSpace(res.Stderr)
	default:
		result.Healthy = true
		result.Message = "daemon " + strings.TrimSpace(res.Stdout)
	}

	c.mu.Lock()
	c.last = result
	c.mu.Unlock()
	return result
}

// Last returns the most recent result without probing again.
func (c *DaemonChecker) Last() Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}
