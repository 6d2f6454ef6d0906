package operations

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackdock/stackdock/pkg/discovery"
	"github.com/stackdock/stackdock/pkg/events"
	"github.com/stackdock/stackdock/pkg/executor"
	"github.com/stackdock/stackdock/pkg/types"
)

// fakeRunner returns canned results keyed by the joined argv and records
// call intervals so tests can assert on overlap.
type fakeRunner struct {
	mu        sync.Mutex
	responses map[string]executor.Result
	errors    map[string]error
	delay     time.Duration
	calls     []recordedCall
}

type recordedCall struct {
	args       string
	workingDir string
	start      time.Time
	end        time.Time
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		responses: make(map[string]executor.Result),
		errors:    make(map[string]error),
	}
}

func (f *fakeRunner) on(args string, res executor.Result) {
	f.responses[args] = res
}

func (f *fakeRunner) failWith(args string, err error) {
	f.errors[args] = err
}

func (f *fakeRunner) Run(ctx context.Context, workingDir string, args []string, timeout time.Duration) (executor.Result, error) {
	key := strings.Join(args, " ")
	start := time.Now()
	if f.delay > 0 && !strings.HasPrefix(key, "compose ls") && !strings.Contains(key, " ps ") {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{args: key, workingDir: workingDir, start: start, end: time.Now()})

	if err, ok := f.errors[key]; ok {
		return executor.Result{ExitCode: -1}, err
	}
	if res, ok := f.responses[key]; ok {
		return res, nil
	}
	return executor.Result{ExitCode: 0}, nil
}

func (f *fakeRunner) callsMatching(substr string) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []recordedCall
	for _, c := range f.calls {
		if strings.Contains(c.args, substr) {
			out = append(out, c)
		}
	}
	return out
}

func overlap(a, b recordedCall) bool {
	return a.start.Before(b.end) && b.start.Before(a.end)
}

func newTestStack(t *testing.T, runner executor.Runner, lsOutput string, opts ...Option) (*Service, *discovery.Service, *fakeRunner) {
	t.Helper()

	fr, _ := runner.(*fakeRunner)
	if fr != nil && lsOutput != "" {
		fr.on("compose ls --all --format json", executor.Result{Stdout: lsOutput})
	}

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	disc := discovery.NewService(runner, discovery.NewCache(), broker)
	svc := NewService(runner, disc, broker, opts...)
	return svc, disc, fr
}

func TestUpRequiresComposeFile(t *testing.T) {
	runner := newFakeRunner()
	svc, _, _ := newTestStack(t, runner, "")

	result := svc.Up(context.Background(), "app", "", false)

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "requires a compose file")
	assert.Empty(t, runner.callsMatching("up"), "validation failures must not spawn a process")
}

func TestUpRequiresComposeFileOnDisk(t *testing.T) {
	runner := newFakeRunner()
	svc, _, _ := newTestStack(t, runner, "", WithFileExists(func(string) bool { return false }))

	result := svc.Up(context.Background(), "app", "/data/app/docker-compose.yml", false)

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "requires a compose file")
	assert.Empty(t, runner.callsMatching("up"))
}

func TestUpSuccess(t *testing.T) {
	runner := newFakeRunner()
	svc, _, _ := newTestStack(t, runner, "", WithFileExists(func(string) bool { return true }))

	result := svc.Up(context.Background(), "app", "/data/app/docker-compose.yml", false)

	require.True(t, result.Success)
	assert.NotEmpty(t, result.OperationID)

	calls := runner.callsMatching("up -d")
	require.Len(t, calls, 1)
	assert.Equal(t, "compose -f /data/app/docker-compose.yml -p app up -d", calls[0].args)
	assert.Equal(t, "/data/app", calls[0].workingDir, "up runs from the compose file's directory")
}

func TestUpWithBuild(t *testing.T) {
	runner := newFakeRunner()
	svc, _, _ := newTestStack(t, runner, "", WithFileExists(func(string) bool { return true }))

	result := svc.Up(context.Background(), "app", "/data/app/docker-compose.yml", true)

	require.True(t, result.Success)
	calls := runner.callsMatching("--build")
	require.Len(t, calls, 1)
}

func TestDownUnknownProject(t *testing.T) {
	runner := newFakeRunner()
	svc, _, _ := newTestStack(t, runner, `[]`)

	result := svc.Down(context.Background(), "ghost", false)

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "not known to Docker")
	assert.Empty(t, runner.callsMatching("down"))
}

func TestDownKnownProject(t *testing.T) {
	runner := newFakeRunner()
	runner.on("compose -p app ps --all --format json", executor.Result{Stdout: `[]`})
	svc, _, _ := newTestStack(t, runner, `[{"Name":"app","Status":"running(1)","ConfigFiles":""}]`)

	result := svc.Down(context.Background(), "app", true)

	require.True(t, result.Success)
	calls := runner.callsMatching("down")
	require.Len(t, calls, 1)
	assert.Equal(t, "compose -p app down --volumes", calls[0].args)
}

func TestStopSurfacesCommandFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.on("compose -p app ps --all --format json", executor.Result{Stdout: `[]`})
	runner.on("compose -p app stop", executor.Result{ExitCode: 1, Stderr: "no such service: web\n"})
	svc, _, _ := newTestStack(t, runner, `[{"Name":"app","Status":"running(1)","ConfigFiles":""}]`)

	result := svc.Stop(context.Background(), "app")

	assert.False(t, result.Success)
	assert.Equal(t, "no such service: web", result.Error)
	assert.Contains(t, result.Message, "failed")
}

func TestExecutorFailureIsDistinctFromCommandFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.on("compose -p app ps --all --format json", executor.Result{Stdout: `[]`})
	runner.failWith("compose -p app restart", errors.New("executor failure: command timed out after 5m0s"))
	svc, _, _ := newTestStack(t, runner, `[{"Name":"app","Status":"running(1)","ConfigFiles":""}]`)

	result := svc.Restart(context.Background(), "app")

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "could not run")
	assert.Contains(t, result.Error, "timed out")
}

func TestSameProjectOperationsSerialize(t *testing.T) {
	runner := newFakeRunner()
	runner.delay = 80 * time.Millisecond
	svc, _, _ := newTestStack(t, runner, "", WithFileExists(func(string) bool { return true }))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Up(context.Background(), "app", "/data/app/docker-compose.yml", false)
		}()
	}
	wg.Wait()

	calls := runner.callsMatching("-p app up")
	require.Len(t, calls, 2)
	assert.False(t, overlap(calls[0], calls[1]), "same-project operations must never run concurrently")
}

func TestDifferentProjectsRunInParallel(t *testing.T) {
	runner := newFakeRunner()
	runner.delay = 80 * time.Millisecond
	svc, _, _ := newTestStack(t, runner, "", WithFileExists(func(string) bool { return true }))

	var wg sync.WaitGroup
	for _, project := range []string{"alpha", "beta"} {
		project := project
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Up(context.Background(), project, "/data/"+project+"/docker-compose.yml", false)
		}()
	}
	wg.Wait()

	alpha := runner.callsMatching("-p alpha up")
	beta := runner.callsMatching("-p beta up")
	require.Len(t, alpha, 1)
	require.Len(t, beta, 1)
	assert.True(t, overlap(alpha[0], beta[0]), "operations on different projects may overlap")
}

func TestSuccessfulOperationInvalidatesDiscoveryCache(t *testing.T) {
	runner := newFakeRunner()
	runner.on("compose -p app ps --all --format json", executor.Result{Stdout: `[]`})
	svc, disc, _ := newTestStack(t, runner, `[{"Name":"app","Status":"exited(1)","ConfigFiles":""}]`)

	_, err := disc.ListProjects(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, runner.callsMatching("compose ls"), 1)

	result := svc.Start(context.Background(), "app")
	require.True(t, result.Success)

	_, err = disc.ListProjects(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, runner.callsMatching("compose ls"), 2, "a successful operation must force the next read to refresh")
}

func TestBusyReflectsLockState(t *testing.T) {
	runner := newFakeRunner()
	runner.delay = 150 * time.Millisecond
	svc, _, _ := newTestStack(t, runner, "", WithFileExists(func(string) bool { return true }))

	done := make(chan struct{})
	go func() {
		svc.Up(context.Background(), "app", "/data/app/docker-compose.yml", false)
		close(done)
	}()

	require.Eventually(t, func() bool { return svc.Busy("app") }, time.Second, 5*time.Millisecond)
	assert.False(t, svc.Busy("other"))

	<-done
	assert.False(t, svc.Busy("app"))
}

type memorySink struct {
	mu      sync.Mutex
	records []types.OperationRecord
}

func (m *memorySink) SaveOperation(record *types.OperationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *record)
	return nil
}

func TestOperationLifecycleIsPersisted(t *testing.T) {
	runner := newFakeRunner()
	sink := &memorySink{}
	svc, _, _ := newTestStack(t, runner, "", WithFileExists(func(string) bool { return true }), WithSink(sink))

	result := svc.Up(context.Background(), "app", "/data/app/docker-compose.yml", false)
	require.True(t, result.Success)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.records, 3)
	assert.Equal(t, types.OperationPending, sink.records[0].Status)
	assert.Equal(t, types.OperationRunning, sink.records[1].Status)
	assert.Equal(t, types.OperationCompleted, sink.records[2].Status)
	assert.Equal(t, result.OperationID, sink.records[2].ID)
	assert.False(t, sink.records[2].FinishedAt.IsZero())
}

func TestLogsIsReadOnly(t *testing.T) {
	runner := newFakeRunner()
	runner.on("compose -p app logs --no-color --tail 50", executor.Result{Stdout: "web | ready\n"})
	svc, _, _ := newTestStack(t, runner, "")

	out, err := svc.Logs(context.Background(), "app", 50)
	require.NoError(t, err)
	assert.Equal(t, "web | ready\n", out)
	assert.False(t, svc.Busy("app"))
}
