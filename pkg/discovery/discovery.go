package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stackdock/stackdock/pkg/compose"
	"github.com/stackdock/stackdock/pkg/events"
	"github.com/stackdock/stackdock/pkg/executor"
	"github.com/stackdock/stackdock/pkg/log"
	"github.com/stackdock/stackdock/pkg/metrics"
	"github.com/stackdock/stackdock/pkg/types"
)

// composeFileNames are the file names probed when scanning a stacks
// directory for projects Docker does not know about yet.
var composeFileNames = []string{
	"compose.yaml",
	"compose.yml",
	"docker-compose.yaml",
	"docker-compose.yml",
}

// Service answers "list all projects" and "get project X" from the Docker
// daemon, through the cache. Permission filtering happens after assembly so
// the cached snapshot stays shared across users.
type Service struct {
	runner executor.Runner
	cache  *Cache
	broker *events.Broker
	logger zerolog.Logger

	commandTimeout time.Duration
	concurrency    int
	stacksDirs     []string

	// fileExists is swapped out by tests.
	fileExists func(path string) bool
}

// ServiceOption configures a discovery Service.
type ServiceOption func(*Service)

// WithCommandTimeout sets the per-CLI-call timeout.
func WithCommandTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.commandTimeout = d }
}

// WithConcurrency bounds the parallel compose ps fan-out.
func WithConcurrency(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithStacksDirs sets directories scanned for compose files of projects not
// currently known to Docker.
func WithStacksDirs(dirs []string) ServiceOption {
	return func(s *Service) { s.stacksDirs = dirs }
}

// WithFileExists injects the filesystem probe. Used by tests.
func WithFileExists(fn func(string) bool) ServiceOption {
	return func(s *Service) { s.fileExists = fn }
}

// NewService creates a discovery Service.
func NewService(runner executor.Runner, cache *Cache, broker *events.Broker, opts ...ServiceOption) *Service {
	s := &Service{
		runner:         runner,
		cache:          cache,
		broker:         broker,
		logger:         log.WithComponent("discovery"),
		commandTimeout: 30 * time.Second,
		concurrency:    4,
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

// ListProjects returns the current snapshot, refreshing through the cache
// when needed, with the caller's permission filter applied last.
func (s *Service) ListProjects(ctx context.Context, filter types.PermissionFilter) ([]*types.Project, error) {
	snapshot, err := s.cache.GetOrRefresh(ctx, s.refresh)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		return snapshot, nil
	}
	return filter(snapshot), nil
}

// GetProject returns one project by name, or found=false when neither
// Docker nor the stacks directories know it.
func (s *Service) GetProject(ctx context.Context, name string, filter types.PermissionFilter) (*types.Project, bool, error) {
	projects, err := s.ListProjects(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	for _, p := range projects {
		if p.Name == name {
			return p, true, nil
		}
	}
	return nil, false, nil
}

// Invalidate marks the cached snapshot dirty so the next read refreshes.
func (s *Service) Invalidate() {
	s.cache.Invalidate()
}

// Refresh invalidates and immediately rebuilds the snapshot. Used by the
// event bridge and the poller; REST reads go through ListProjects instead.
func (s *Service) Refresh(ctx context.Context) error {
	s.cache.Invalidate()
	_, err := s.cache.GetOrRefresh(ctx, s.refresh)
	return err
}

// refresh assembles a complete snapshot: compose ls for the project list,
// then a bounded-concurrency compose ps per project, then the stacks-dir
// scan for projects that exist only as files.
func (s *Service) refresh(ctx context.Context) ([]*types.Project, error) {
	timer := metrics.NewTimer()
	defer func() { timer.ObserveDuration(metrics.RefreshDuration) }()

	raws, err := s.listComposeProjects(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	projects := make([]*types.Project, len(raws))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, raw := range raws {
		i, raw := i, raw
		g.Go(func() error {
			projects[i] = s.assembleProject(gctx, raw, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	projects = append(projects, s.scanStacksDirs(projects, now)...)

	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })

	metrics.ProjectsDiscovered.Set(float64(len(projects)))
	s.logger.Debug().Int("projects", len(projects)).Msg("snapshot refreshed")
	s.broker.Publish(&events.Event{
		Type:     events.EventDiscoveryRefreshed,
		Message:  fmt.Sprintf("discovered %d projects", len(projects)),
		Metadata: map[string]string{"projects": fmt.Sprintf("%d", len(projects))},
	})

	return projects, nil
}

func (s *Service) listComposeProjects(ctx context.Context) ([]compose.RawProject, error) {
	res, err := s.runner.Run(ctx, "", []string{"compose", "ls", "--all", "--format", "json"}, s.commandTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrDockerUnavailable, err)
	}
	if res.ExitCode != 0 {
		if daemonUnreachable(res.Stderr) {
			return nil, fmt.Errorf("%w: %s", types.ErrDockerUnavailable, strings.TrimSpace(res.Stderr))
		}
		return nil, fmt.Errorf("%w: compose ls exited %d: %s", types.ErrCommand, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return compose.ParseProjectList([]byte(res.Stdout))
}

func (s *Service) assembleProject(ctx context.Context, raw compose.RawProject, now time.Time) *types.Project {
	state := compose.MapComposeStatus(raw.Status)

	composeFilePath := ""
	for _, path := range raw.ConfigFilePaths() {
		if s.fileExists(path) {
			composeFilePath = path
			break
		}
	}
	hasComposeFile := composeFilePath != ""

	project := &types.Project{
		Name:             raw.Name,
		State:            state,
		Status:           raw.Status,
		ComposeFilePath:  composeFilePath,
		HasComposeFile:   hasComposeFile,
		AvailableActions: compose.ComputeAvailableActions(state, hasComposeFile),
		LastUpdated:      now,
	}

	services, err := s.listServices(ctx, raw.Name)
	if err != nil {
		// The project-level state from compose ls is still valid; a failed
		// ps only costs us the per-service detail.
		s.logger.Warn().Err(err).Str("project", raw.Name).Msg("compose ps failed during refresh")
		return project
	}
	project.Services = services
	return project
}

func (s *Service) listServices(ctx context.Context, projectName string) ([]*types.Service, error) {
	args := []string{"compose", "-p", projectName, "ps", "--all", "--format", "json"}
	res, err := s.runner.Run(ctx, "", args, s.commandTimeout)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("%w: compose ps exited %d: %s", types.ErrCommand, res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	raws, err := compose.ParseServiceList([]byte(res.Stdout))
	if err != nil {
		return nil, err
	}

	services := make([]*types.Service, len(raws))
	for i, raw := range raws {
		id := raw.ID
		if id == "" {
			id = raw.Service
		}
		services[i] = &types.Service{
			ID:     id,
			Name:   raw.Service,
			Image:  raw.Image,
			State:  compose.MapServiceState(raw.State, raw.Health),
			Status: raw.Status,
			Ports:  formatPublishers(raw.Publishers),
			Health: raw.Health,
		}
	}
	return services, nil
}

// scanStacksDirs finds compose files on disk for projects Docker does not
// currently report and synthesizes NotStarted snapshots for them.
func (s *Service) scanStacksDirs(known []*types.Project, now time.Time) []*types.Project {
	if len(s.stacksDirs) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(known))
	for _, p := range known {
		seen[p.Name] = true
	}

	var extra []*types.Project
	for _, dir := range s.stacksDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			s.logger.Warn().Err(err).Str("dir", dir).Msg("cannot read stacks directory")
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() || seen[entry.Name()] {
				continue
			}
			for _, name := range composeFileNames {
				path := filepath.Join(dir, entry.Name(), name)
				if !s.fileExists(path) {
					continue
				}
				extra = append(extra, &types.Project{
					Name:             entry.Name(),
					State:            types.StateNotStarted,
					ComposeFilePath:  path,
					HasComposeFile:   true,
					AvailableActions: compose.ComputeAvailableActions(types.StateNotStarted, true),
					LastUpdated:      now,
				})
				seen[entry.Name()] = true
				break
			}
		}
	}
	return extra
}

func daemonUnreachable(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "cannot connect to the docker daemon") ||
		strings.Contains(lower, "is the docker daemon running") ||
		strings.Contains(lower, "error during connect")
}

func formatPublishers(pubs []compose.RawPublisher) string {
	if len(pubs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pubs))
	for _, p := range pubs {
		if p.PublishedPort > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d->%d/%s", p.URL, p.PublishedPort, p.TargetPort, p.Protocol))
		} else {
			parts = append(parts, fmt.Sprintf("%d/%s", p.TargetPort, p.Protocol))
		}
	}
	return strings.Join(parts, ", ")
}
