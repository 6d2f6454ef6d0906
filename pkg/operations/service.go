package operations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stackdock/stackdock/pkg/discovery"
	"github.com/stackdock/stackdock/pkg/events"
	"github.com/stackdock/stackdock/pkg/executor"
	"github.com/stackdock/stackdock/pkg/log"
	"github.com/stackdock/stackdock/pkg/metrics"
	"github.com/stackdock/stackdock/pkg/types"
)

// Sink receives terminal operation records for auditing. The engine never
// depends on the sink's success; a failed write is logged and dropped.
type Sink interface {
	SaveOperation(record *types.OperationRecord) error
}

// Service executes mutating compose verbs against named projects,
// serializing per project so two commands never race on the same one.
type Service struct {
	runner    executor.Runner
	discovery *discovery.Service
	broker    *events.Broker
	sink      Sink
	locks     *lockTable
	logger    zerolog.Logger

	timeout    time.Duration
	fileExists func(path string) bool
}

// Option configures an operations Service.
type Option func(*Service)

// WithTimeout sets the per-operation subprocess timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithSink attaches the audit sink.
func WithSink(sink Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithFileExists injects the filesystem probe. Used by tests.
func WithFileExists(fn func(string) bool) Option {
	return func(s *Service) { s.fileExists = fn }
}

// NewService creates an operations Service.
func NewService(runner executor.Runner, disc *discovery.Service, broker *events.Broker, opts ...Option) *Service {
	s := &Service{
		runner:    runner,
		discovery: disc,
		broker:    broker,
		locks:     newLockTable(),
		logger:    log.WithComponent("operations"),
		timeout:   5 * time.Minute,
		fileExists: func(path string) bool {
			info, err := os.Stat(path)
			return err == nil && !info.IsDir()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Busy reports whether a mutating operation is in flight for the project.
func (s *Service) Busy(projectName string) bool {
	return s.locks.busy(projectName)
}

// Up brings a project up detached. It is the one verb that needs the compose
// file itself: the file's directory becomes the working directory, so a
// missing file is a validation failure, not a Docker error.
func (s *Service) Up(ctx context.Context, projectName, composeFilePath string, build bool) types.OperationResult {
	if result, ok := s.requireComposeFile(types.ActionUp, projectName, composeFilePath); !ok {
		return result
	}

	args := []string{"compose", "-f", composeFilePath, "-p", projectName, "up", "-d"}
	if build {
		args = append(args, "--build")
	}
	return s.run(ctx, types.ActionUp, projectName, filepath.Dir(composeFilePath), args)
}

// Down stops and removes a project's containers.
func (s *Service) Down(ctx context.Context, projectName string, removeVolumes bool) types.OperationResult {
	if result, ok := s.requireKnownProject(ctx, types.ActionDown, projectName); !ok {
		return result
	}

	args := []string{"compose", "-p", projectName, "down"}
	if removeVolumes {
		args = append(args, "--volumes")
	}
	return s.run(ctx, types.ActionDown, projectName, "", args)
}

// Restart restarts a project's containers.
func (s *Service) Restart(ctx context.Context, projectName string) types.OperationResult {
	if result, ok := s.requireKnownProject(ctx, types.ActionRestart, projectName); !ok {
		return result
	}
	return s.run(ctx, types.ActionRestart, projectName, "", []string{"compose", "-p", projectName, "restart"})
}

// Stop stops a project's containers without removing them.
func (s *Service) Stop(ctx context.Context, projectName string) types.OperationResult {
	if result, ok := s.requireKnownProject(ctx, types.ActionStop, projectName); !ok {
		return result
	}
	return s.run(ctx, types.ActionStop, projectName, "", []string{"compose", "-p", projectName, "stop"})
}

// Start starts a project's stopped containers.
func (s *Service) Start(ctx context.Context, projectName string) types.OperationResult {
	if result, ok := s.requireKnownProject(ctx, types.ActionStart, projectName); !ok {
		return result
	}
	return s.run(ctx, types.ActionStart, projectName, "", []string{"compose", "-p", projectName, "start"})
}

// Pull pulls the images of a project's services.
func (s *Service) Pull(ctx context.Context, projectName, composeFilePath string) types.OperationResult {
	if result, ok := s.requireComposeFile(types.ActionPull, projectName, composeFilePath); !ok {
		return result
	}
	args := []string{"compose", "-f", composeFilePath, "-p", projectName, "pull"}
	return s.run(ctx, types.ActionPull, projectName, filepath.Dir(composeFilePath), args)
}

// Build builds the images of a project's services.
func (s *Service) Build(ctx context.Context, projectName, composeFilePath string) types.OperationResult {
	if result, ok := s.requireComposeFile(types.ActionBuild, projectName, composeFilePath); !ok {
		return result
	}
	args := []string{"compose", "-f", composeFilePath, "-p", projectName, "build"}
	return s.run(ctx, types.ActionBuild, projectName, filepath.Dir(composeFilePath), args)
}

// Logs fetches recent log output for a project. Read-only: no lock, no
// cache invalidation.
func (s *Service) Logs(ctx context.Context, projectName string, tail int) (string, error) {
	if tail <= 0 {
		tail = 200
	}
	args := []string{"compose", "-p", projectName, "logs", "--no-color", "--tail", strconv.Itoa(tail)}
	res, err := s.runner.Run(ctx, "", args, s.timeout)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%w: compose logs exited %d: %s", types.ErrCommand, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}

// requireComposeFile gates the verbs that cannot run on a project name
// alone. Fails before any subprocess is spawned.
func (s *Service) requireComposeFile(verb types.Action, projectName, composeFilePath string) (types.OperationResult, bool) {
	if composeFilePath == "" || !s.fileExists(composeFilePath) {
		metrics.OperationsTotal.WithLabelValues(string(verb), "validation_failure").Inc()
		return types.OperationResult{
			Success: false,
			Message: fmt.Sprintf("%s requires a compose file for project %q", verb, projectName),
			Error:   types.ErrValidation.Error(),
		}, false
	}
	return types.OperationResult{}, true
}

// requireKnownProject gates the name-only verbs: a project Docker does not
// report cannot be stopped, started or restarted.
func (s *Service) requireKnownProject(ctx context.Context, verb types.Action, projectName string) (types.OperationResult, bool) {
	project, found, err := s.discovery.GetProject(ctx, projectName, nil)
	if err != nil {
		return types.OperationResult{
			Success: false,
			Message: fmt.Sprintf("cannot verify project %q before %s", projectName, verb),
			Error:   err.Error(),
		}, false
	}
	if !found || project.State == types.StateNotStarted {
		metrics.OperationsTotal.WithLabelValues(string(verb), "validation_failure").Inc()
		return types.OperationResult{
			Success: false,
			Message: fmt.Sprintf("project %q is not known to Docker, cannot %s", projectName, verb),
			Error:   types.ErrProjectNotFound.Error(),
		}, false
	}
	return types.OperationResult{}, true
}

// run executes one mutating verb under the project lock and reports exactly
// what happened. No retries; retrying a compose command is a caller
// decision because the verbs are not idempotent in general.
func (s *Service) run(ctx context.Context, verb types.Action, projectName, workingDir string, args []string) types.OperationResult {
	record := &types.OperationRecord{
		ID:          uuid.NewString(),
		Type:        verb,
		ProjectName: projectName,
		Status:      types.OperationPending,
		StartedAt:   time.Now(),
	}
	s.persist(record)

	release, err := s.locks.acquire(ctx, projectName)
	if err != nil {
		record.Status = types.OperationFailed
		record.Error = err.Error()
		record.FinishedAt = time.Now()
		s.persist(record)
		return types.OperationResult{
			OperationID: record.ID,
			Success:     false,
			Message:     fmt.Sprintf("%s of project %q canceled while waiting for a prior operation", verb, projectName),
			Error:       err.Error(),
		}
	}
	defer release()

	metrics.OperationsInFlight.Inc()
	defer metrics.OperationsInFlight.Dec()

	record.Status = types.OperationRunning
	s.persist(record)
	s.broker.Publish(&events.Event{
		Type:    events.EventOperationStarted,
		Message: fmt.Sprintf("%s started for project %q", verb, projectName),
		Metadata: map[string]string{
			"operation_id": record.ID,
			"project":      projectName,
			"verb":         string(verb),
		},
	})

	logger := s.logger.With().Str("operation_id", record.ID).Str("project", projectName).Str("verb", string(verb)).Logger()
	logger.Info().Msg("operation started")

	timer := metrics.NewTimer()
	res, runErr := s.runner.Run(ctx, workingDir, args, s.timeout)
	timer.ObserveDurationVec(metrics.OperationDuration, string(verb))

	result := types.OperationResult{
		OperationID: record.ID,
		Output:      res.Stdout,
	}

	switch {
	case runErr != nil:
		result.Success = false
		result.Message = fmt.Sprintf("%s of project %q could not run", verb, projectName)
		result.Error = runErr.Error()
		metrics.OperationsTotal.WithLabelValues(string(verb), "executor_failure").Inc()
		logger.Error().Err(runErr).Msg("operation failed before Docker could answer")

	case res.ExitCode != 0:
		result.Success = false
		result.Message = fmt.Sprintf("%s of project %q failed", verb, projectName)
		result.Error = strings.TrimSpace(res.Stderr)
		metrics.OperationsTotal.WithLabelValues(string(verb), "command_failure").Inc()
		logger.Warn().Int("exit_code", res.ExitCode).Msg("docker compose rejected the operation")

	default:
		result.Success = true
		result.Message = fmt.Sprintf("%s of project %q completed", verb, projectName)
		metrics.OperationsTotal.WithLabelValues(string(verb), "ok").Inc()
		logger.Info().Dur("duration", res.Duration).Msg("operation completed")
	}

	record.FinishedAt = time.Now()
	record.Output = res.Stdout
	if result.Success {
		record.Status = types.OperationCompleted
	} else {
		record.Status = types.OperationFailed
		record.Error = result.Error
	}
	s.persist(record)

	eventType := events.EventOperationCompleted
	if !result.Success {
		eventType = events.EventOperationFailed
	}
	s.broker.Publish(&events.Event{
		Type:    eventType,
		Message: result.Message,
		Metadata: map[string]string{
			"operation_id": record.ID,
			"project":      projectName,
			"verb":         string(verb),
		},
	})

	if result.Success {
		// The next read must see the new state without waiting out the TTL.
		s.discovery.Invalidate()
	}

	return result
}

func (s *Service) persist(record *types.OperationRecord) {
	if s.sink == nil {
		return
	}
	if err := s.sink.SaveOperation(record); err != nil {
		s.logger.Warn().Err(err).Str("operation_id", record.ID).Msg("audit sink write failed")
	}
}
