package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/stackdock/stackdock/pkg/health"
	"github.com/stackdock/stackdock/pkg/log"
	"github.com/stackdock/stackdock/pkg/metrics"
	"github.com/stackdock/stackdock/pkg/types"
)

// Discovery is the read side the API serves.
type Discovery interface {
	ListProjects(ctx context.Context, filter types.PermissionFilter) ([]*types.Project, error)
	GetProject(ctx context.Context, name string, filter types.PermissionFilter) (*types.Project, bool, error)
	Refresh(ctx context.Context) error
}

// Operations is the write side the API drives.
type Operations interface {
	Up(ctx context.Context, projectName, composeFilePath string, build bool) types.OperationResult
	Down(ctx context.Context, projectName string, removeVolumes bool) types.OperationResult
	Start(ctx context.Context, projectName string) types.OperationResult
	Stop(ctx context.Context, projectName string) types.OperationResult
	Restart(ctx context.Context, projectName string) types.OperationResult
	Pull(ctx context.Context, projectName, composeFilePath string) types.OperationResult
	Build(ctx context.Context, projectName, composeFilePath string) types.OperationResult
	Logs(ctx context.Context, projectName string, tail int) (string, error)
}

// OperationLog is the audit read side.
type OperationLog interface {
	GetOperation(id string) (*types.OperationRecord, error)
	ListOperations(projectName string, limit int) ([]*types.OperationRecord, error)
}

// Server exposes the engine over HTTP.
type Server struct {
	discovery  Discovery
	operations Operations
	oplog      OperationLog
	checker    health.Checker
	relay      *EventRelay
	logger     zerolog.Logger
	router     chi.Router
	version    string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithOperationLog attaches the audit read side.
func WithOperationLog(oplog OperationLog) ServerOption {
	return func(s *Server) { s.oplog = oplog }
}

// WithHealthChecker attaches the daemon probe behind /ready.
func WithHealthChecker(checker health.Checker) ServerOption {
	return func(s *Server) { s.checker = checker }
}

// WithEventRelay attaches the websocket event feed behind /api/events.
func WithEventRelay(relay *EventRelay) ServerOption {
	return func(s *Server) { s.relay = relay }
}

// WithVersion sets the version string reported by /health.
func WithVersion(version string) ServerOption {
	return func(s *Server) { s.version = version }
}

// NewServer wires the routes.
func NewServer(discovery Discovery, operations Operations, opts ...ServerOption) *Server {
	s := &Server{
		discovery:  discovery,
		operations: operations,
		logger:     log.WithComponent("api"),
		version:    "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.handleListProjects)
			r.Post("/refresh", s.handleRefresh)
			r.Get("/{name}", s.handleGetProject)
			r.Get("/{name}/logs", s.handleLogs)
			r.Post("/{name}/{action}", s.handleAction)
		})
		r.Route("/operations", func(r chi.Router) {
			r.Get("/", s.handleListOperations)
			r.Get("/{id}", s.handleGetOperation)
		})
		if s.relay != nil {
			r.Get("/events", s.relay.Handle)
		}
	})

	s.router = r
	return s
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks serving the API until the context ends, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // websocket and log endpoints hold connections open
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"version":   s.version,
		"timestamp": time.Now(),
	})
}

// handleReady reports readiness: the process is up AND the Docker daemon
// answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
		return
	}

	result := s.checker.Check(r.Context())
	status := http.StatusOK
	state := "ready"
	if !result.Healthy {
		status = http.StatusServiceUnavailable
		state = "not ready"
	}
	s.writeJSON(w, status, map[string]any{
		"status": state,
		"checks": map[string]string{s.checker.Name(): result.Message},
	})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.discovery.ListProjects(r.Context(), nil)
	if err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	if projects == nil {
		projects = []*types.Project{}
	}
	s.writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	project, found, err := s.discovery.GetProject(r.Context(), name, nil)
	if err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, types.ErrProjectNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.discovery.Refresh(r.Context()); err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

// actionRequest is the optional POST body for project actions.
type actionRequest struct {
	Build         bool `json:"build,omitempty"`
	RemoveVolumes bool `json:"removeVolumes,omitempty"`
}

// handleAction dispatches one mutating verb. The compose file path is never
// taken from the request; it comes from the discovered snapshot, so a
// caller cannot point the engine at an arbitrary file.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	action := types.Action(chi.URLParam(r, "action"))

	var req actionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	composeFile := ""
	if project, found, err := s.discovery.GetProject(r.Context(), name, nil); err == nil && found {
		composeFile = project.ComposeFilePath
	}

	var result types.OperationResult
	switch action {
	case types.ActionUp:
		result = s.operations.Up(r.Context(), name, composeFile, req.Build)
	case types.ActionRecreate:
		result = s.operations.Up(r.Context(), name, composeFile, true)
	case types.ActionDown:
		result = s.operations.Down(r.Context(), name, req.RemoveVolumes)
	case types.ActionStart:
		result = s.operations.Start(r.Context(), name)
	case types.ActionStop:
		result = s.operations.Stop(r.Context(), name)
	case types.ActionRestart:
		result = s.operations.Restart(r.Context(), name)
	case types.ActionPull:
		result = s.operations.Pull(r.Context(), name, composeFile)
	case types.ActionBuild:
		result = s.operations.Build(r.Context(), name, composeFile)
	default:
		s.writeError(w, http.StatusBadRequest, errors.New("unknown action: "+string(action)))
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusConflict
	}
	s.writeJSON(w, status, result)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tail := 0
	if raw := r.URL.Query().Get("tail"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, errors.New("tail must be an integer"))
			return
		}
		tail = parsed
	}

	output, err := s.operations.Logs(r.Context(), name, tail)
	if err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(output))
}

func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	if s.oplog == nil {
		s.writeError(w, http.StatusNotFound, errors.New("operation log not configured"))
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	records, err := s.oplog.ListOperations(r.URL.Query().Get("project"), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if records == nil {
		records = []*types.OperationRecord{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	if s.oplog == nil {
		s.writeError(w, http.StatusNotFound, errors.New("operation log not configured"))
		return
	}

	record, err := s.oplog.GetOperation(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

// statusForError maps engine sentinels to HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, types.ErrProjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrDockerUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
