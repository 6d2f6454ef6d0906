package bridge

import (
	"sync"
	"time"

	dockerevents "github.com/docker/docker/api/types/events"
	"github.com/rs/zerolog"

	"github.com/stackdock/stackdock/pkg/events"
	"github.com/stackdock/stackdock/pkg/log"
	"github.com/stackdock/stackdock/pkg/metrics"
)

// composeProjectLabel is the label Docker Compose stamps on every container
// it manages. Containers without it are not ours to watch.
const composeProjectLabel = "com.docker.compose.project"

// relevantActions are the container lifecycle transitions that can change a
// project's mapped state. Everything else (exec_create, attach, top, health
// status spam from tight-interval checks) is noise for a dashboard.
var relevantActions = map[string]struct{}{
	"start":   {},
	"die":     {},
	"create":  {},
	"destroy": {},
	"pause":   {},
	"unpause": {},
	"restart": {},
}

// terminalActions bypass the in-operation suppression: a container dying
// mid-operation is exactly the signal the dashboard must not miss.
var terminalActions = map[string]struct{}{
	"die":     {},
	"destroy": {},
}

// Refresher is the slice of the discovery service the bridge drives.
type Refresher interface {
	Invalidate()
}

// BusyFunc reports whether a mutating operation currently holds the named
// project's lock.
type BusyFunc func(projectName string) bool

// Bridge turns the Docker daemon's raw container event firehose into a
// small number of cache invalidations and dashboard notifications. It
// filters to compose-managed containers, drops duplicates, suppresses
// events for projects mid-operation, and debounces the rest.
type Bridge struct {
	refresher Refresher
	broker    *events.Broker
	busy      BusyFunc
	logger    zerolog.Logger

	dedupWindow    time.Duration
	debounceWindow time.Duration

	mu         sync.Mutex
	seen       map[dedupKey]time.Time
	debouncers map[string]*debouncer
	now        func() time.Time
}

type dedupKey struct {
	containerID string
	action      string
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithDedupWindow sets how long a (container, action) pair shadows repeats.
func WithDedupWindow(d time.Duration) BridgeOption {
	return func(b *Bridge) { b.dedupWindow = d }
}

// WithDebounceWindow sets the per-project coalescing window.
func WithDebounceWindow(d time.Duration) BridgeOption {
	return func(b *Bridge) { b.debounceWindow = d }
}

// WithClock injects the time source. Used by tests.
func WithClock(now func() time.Time) BridgeOption {
	return func(b *Bridge) { b.now = now }
}

// NewBridge creates a Bridge. busy may be nil, in which case no suppression
// happens.
func NewBridge(refresher Refresher, broker *events.Broker, busy BusyFunc, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		refresher:      refresher,
		broker:         broker,
		busy:           busy,
		logger:         log.WithComponent("bridge"),
		dedupWindow:    time.Second,
		debounceWindow: 50 * time.Millisecond,
		seen:           make(map[dedupKey]time.Time),
		debouncers:     make(map[string]*debouncer),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handle processes one daemon event. The first accepted event in a quiet
// period invalidates before Handle returns (leading edge); the rest of a
// burst is absorbed by the debounce window.
func (b *Bridge) Handle(msg dockerevents.Message) {
	if msg.Type != dockerevents.ContainerEventType {
		metrics.EventsReceivedTotal.WithLabelValues("filtered").Inc()
		return
	}

	action := string(msg.Action)
	if _, ok := relevantActions[action]; !ok {
		metrics.EventsReceivedTotal.WithLabelValues("filtered").Inc()
		return
	}

	project := msg.Actor.Attributes[composeProjectLabel]
	if project == "" {
		metrics.EventsReceivedTotal.WithLabelValues("non_compose").Inc()
		return
	}

	if b.isDuplicate(msg.Actor.ID, action) {
		metrics.EventsReceivedTotal.WithLabelValues("deduped").Inc()
		return
	}

	if _, terminal := terminalActions[action]; !terminal && b.busy != nil && b.busy(project) {
		// The operation that caused this event invalidates the cache
		// itself when it finishes.
		metrics.EventsReceivedTotal.WithLabelValues("suppressed").Inc()
		b.logger.Debug().Str("project", project).Str("action", action).Msg("event suppressed during operation")
		return
	}

	metrics.EventsReceivedTotal.WithLabelValues("accepted").Inc()
	b.logger.Debug().Str("project", project).Str("action", action).Str("container", msg.Actor.ID).Msg("container event accepted")
	b.projectDebouncer(project).trigger()
}

// isDuplicate records the pair and reports whether an identical pair was
// seen inside the dedup window. The map is pruned opportunistically so it
// cannot grow past the churn of one window.
func (b *Bridge) isDuplicate(containerID, action string) bool {
	key := dedupKey{containerID: containerID, action: action}
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if last, ok := b.seen[key]; ok && now.Sub(last) < b.dedupWindow {
		return true
	}
	for k, ts := range b.seen {
		if now.Sub(ts) >= b.dedupWindow {
			delete(b.seen, k)
		}
	}
	b.seen[key] = now
	return false
}

func (b *Bridge) projectDebouncer(project string) *debouncer {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, ok := b.debouncers[project]
	if !ok {
		d = newDebouncer(b.debounceWindow, func() { b.refresh(project) })
		b.debouncers[project] = d
	}
	return d
}

// refresh is what the debouncer runs: one invalidation plus one
// notification per execution.
func (b *Bridge) refresh(project string) {
	b.refresher.Invalidate()
	b.broker.Publish(&events.Event{
		Type:     events.EventProjectChanged,
		Message:  "project " + project + " changed",
		Metadata: map[string]string{"project": project},
	})
}

// Stop halts all pending debounce timers.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.debouncers {
		d.stop()
	}
}
