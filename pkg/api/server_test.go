package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackdock/stackdock/pkg/types"
)

type stubDiscovery struct {
	projects   []*types.Project
	err        error
	refreshErr error
	refreshed  int
}

func (s *stubDiscovery) ListProjects(context.Context, types.PermissionFilter) ([]*types.Project, error) {
	return s.projects, s.err
}

func (s *stubDiscovery) GetProject(_ context.Context, name string, _ types.PermissionFilter) (*types.Project, bool, error) {
	if s.err != nil {
		return nil, false, s.err
	}
	for _, p := range s.projects {
		if p.Name == name {
			return p, true, nil
		}
	}
	return nil, false, nil
}

func (s *stubDiscovery) Refresh(context.Context) error {
	s.refreshed++
	return s.refreshErr
}

type stubOperations struct {
	lastVerb  types.Action
	lastFile  string
	lastBuild bool
	result    types.OperationResult
	logs      string
	logsErr   error
}

func (s *stubOperations) record(verb types.Action) types.OperationResult {
	s.lastVerb = verb
	return s.result
}

func (s *stubOperations) Up(_ context.Context, _ string, file string, build bool) types.OperationResult {
	s.lastFile, s.lastBuild = file, build
	return s.record(types.ActionUp)
}

func (s *stubOperations) Down(_ context.Context, _ string, _ bool) types.OperationResult {
	return s.record(types.ActionDown)
}

func (s *stubOperations) Start(context.Context, string) types.OperationResult {
	return s.record(types.ActionStart)
}

func (s *stubOperations) Stop(context.Context, string) types.OperationResult {
	return s.record(types.ActionStop)
}

func (s *stubOperations) Restart(context.Context, string) types.OperationResult {
	return s.record(types.ActionRestart)
}

func (s *stubOperations) Pull(_ context.Context, _ string, file string) types.OperationResult {
	s.lastFile = file
	return s.record(types.ActionPull)
}

func (s *stubOperations) Build(_ context.Context, _ string, file string) types.OperationResult {
	s.lastFile = file
	return s.record(types.ActionBuild)
}

func (s *stubOperations) Logs(context.Context, string, int) (string, error) {
	return s.logs, s.logsErr
}

func runningProject(name string) *types.Project {
	return &types.Project{
		Name:            name,
		State:           types.StateRunning,
		Status:          "running(2)",
		ComposeFilePath: "/data/" + name + "/docker-compose.yml",
		HasComposeFile:  true,
		LastUpdated:     time.Now(),
	}
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestListProjects(t *testing.T) {
	disc := &stubDiscovery{projects: []*types.Project{runningProject("app"), runningProject("db")}}
	server := NewServer(disc, &stubOperations{})

	rec := doRequest(t, server.Handler(), http.MethodGet, "/api/projects", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var projects []*types.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &projects))
	assert.Len(t, projects, 2)
}

func TestListProjectsEmptyIsArrayNotNull(t *testing.T) {
	server := NewServer(&stubDiscovery{}, &stubOperations{})

	rec := doRequest(t, server.Handler(), http.MethodGet, "/api/projects", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestListProjectsDaemonDown(t *testing.T) {
	disc := &stubDiscovery{err: types.ErrDockerUnavailable}
	server := NewServer(disc, &stubOperations{})

	rec := doRequest(t, server.Handler(), http.MethodGet, "/api/projects", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetProject(t *testing.T) {
	disc := &stubDiscovery{projects: []*types.Project{runningProject("app")}}
	server := NewServer(disc, &stubOperations{})

	rec := doRequest(t, server.Handler(), http.MethodGet, "/api/projects/app", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, server.Handler(), http.MethodGet, "/api/projects/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActionUpUsesDiscoveredComposeFile(t *testing.T) {
	disc := &stubDiscovery{projects: []*types.Project{runningProject("app")}}
	ops := &stubOperations{result: types.OperationResult{Success: true}}
	server := NewServer(disc, ops)

	rec := doRequest(t, server.Handler(), http.MethodPost, "/api/projects/app/up", `{"build":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.ActionUp, ops.lastVerb)
	assert.Equal(t, "/data/app/docker-compose.yml", ops.lastFile)
	assert.True(t, ops.lastBuild)
}

func TestActionFailureReturnsConflict(t *testing.T) {
	ops := &stubOperations{result: types.OperationResult{
		Success: false,
		Message: `up requires a compose file for project "ghost"`,
	}}
	server := NewServer(&stubDiscovery{}, ops)

	rec := doRequest(t, server.Handler(), http.MethodPost, "/api/projects/ghost/up", "")

	require.Equal(t, http.StatusConflict, rec.Code)
	var result types.OperationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Contains(t, result.Message, "requires a compose file")
}

func TestActionUnknownVerb(t *testing.T) {
	server := NewServer(&stubDiscovery{}, &stubOperations{})

	rec := doRequest(t, server.Handler(), http.MethodPost, "/api/projects/app/explode", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActionRecreateForcesBuild(t *testing.T) {
	disc := &stubDiscovery{projects: []*types.Project{runningProject("app")}}
	ops := &stubOperations{result: types.OperationResult{Success: true}}
	server := NewServer(disc, ops)

	rec := doRequest(t, server.Handler(), http.MethodPost, "/api/projects/app/recreate", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.ActionUp, ops.lastVerb)
	assert.True(t, ops.lastBuild)
}

func TestRefreshEndpoint(t *testing.T) {
	disc := &stubDiscovery{}
	server := NewServer(disc, &stubOperations{})

	rec := doRequest(t, server.Handler(), http.MethodPost, "/api/projects/refresh", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, disc.refreshed)
}

func TestLogsEndpoint(t *testing.T) {
	ops := &stubOperations{logs: "web | listening\n"}
	server := NewServer(&stubDiscovery{}, ops)

	rec := doRequest(t, server.Handler(), http.MethodGet, "/api/projects/app/logs?tail=50", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "web | listening\n", rec.Body.String())

	rec = doRequest(t, server.Handler(), http.MethodGet, "/api/projects/app/logs?tail=many", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubOplog struct {
	records []*types.OperationRecord
}

func (s *stubOplog) GetOperation(id string) (*types.OperationRecord, error) {
	for _, r := range s.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, types.ErrProjectNotFound
}

func (s *stubOplog) ListOperations(string, int) ([]*types.OperationRecord, error) {
	return s.records, nil
}

func TestOperationsEndpoints(t *testing.T) {
	oplog := &stubOplog{records: []*types.OperationRecord{{
		ID:          "op-1",
		Type:        types.ActionUp,
		ProjectName: "app",
		Status:      types.OperationCompleted,
	}}}
	server := NewServer(&stubDiscovery{}, &stubOperations{}, WithOperationLog(oplog))

	rec := doRequest(t, server.Handler(), http.MethodGet, "/api/operations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var records []*types.OperationRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Len(t, records, 1)

	rec = doRequest(t, server.Handler(), http.MethodGet, "/api/operations/op-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, server.Handler(), http.MethodGet, "/api/operations/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	server := NewServer(&stubDiscovery{}, &stubOperations{}, WithVersion("1.2.3"))

	rec := doRequest(t, server.Handler(), http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "1.2.3")
}
