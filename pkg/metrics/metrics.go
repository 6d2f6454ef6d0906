package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Executor metrics
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stackdock_commands_total",
			Help: "Docker CLI invocations by verb and outcome",
		},
		[]string{"verb", "outcome"},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stackdock_command_duration_seconds",
			Help:    "Docker CLI invocation duration by verb",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"verb"},
	)

	// Discovery metrics
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stackdock_cache_hits_total",
			Help: "Discovery cache reads served from the current snapshot",
		},
	)

	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stackdock_cache_misses_total",
			Help: "Discovery cache reads that triggered a refresh",
		},
	)

	CacheStaleServesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stackdock_cache_stale_serves_total",
			Help: "Reads served from a stale snapshot after a refresh failure",
		},
	)

	RefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stackdock_discovery_refresh_duration_seconds",
			Help:    "Full discovery refresh duration",
			Buckets: prometheus.DefBuckets,
		},
	)

	ProjectsDiscovered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stackdock_projects_discovered",
			Help: "Projects in the most recent discovery snapshot",
		},
	)

	// Operation metrics
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stackdock_operations_total",
			Help: "Compose operations by verb and outcome",
		},
		[]string{"verb", "outcome"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stackdock_operation_duration_seconds",
			Help:    "Compose operation duration by verb",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"verb"},
	)

	OperationsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stackdock_operations_in_flight",
			Help: "Mutating compose operations currently holding a project lock",
		},
	)

	// Event bridge metrics
	EventsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stackdock_events_received_total",
			Help: "Docker lifecycle events by disposition (refresh, filtered, deduped, suppressed)",
		},
		[]string{"disposition"},
	)

	EventStreamReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stackdock_event_stream_reconnects_total",
			Help: "Docker event stream reconnections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		CommandsTotal,
		CommandDuration,
		CacheHitsTotal,
		CacheMissesTotal,
		CacheStaleServesTotal,
		RefreshDuration,
		ProjectsDiscovered,
		OperationsTotal,
		OperationDuration,
		OperationsInFlight,
		EventsReceivedTotal,
		EventStreamReconnectsTotal,
	)
}

// Handler returns the HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
