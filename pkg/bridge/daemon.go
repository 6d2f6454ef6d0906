package bridge

import (
	"context"
	"time"

	dockerevents "github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"

	"github.com/stackdock/stackdock/pkg/events"
	"github.com/stackdock/stackdock/pkg/metrics"
)

// EventSource is the one method of the Docker SDK client the listener
// needs. *client.Client satisfies it.
type EventSource interface {
	Events(ctx context.Context, options dockerevents.ListOptions) (<-chan dockerevents.Message, <-chan error)
}

// Listener owns the long-lived daemon event stream and feeds the Bridge.
// The stream breaks whenever the daemon restarts; the listener reconnects
// with backoff and treats every gap as a blind spot, forcing a full
// resync because events may have been missed.
type Listener struct {
	source    EventSource
	bridge    *Bridge
	refresher Refresher
	broker    *events.Broker

	reconnectDelay time.Duration
	maxDelay       time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithReconnectDelay sets the initial backoff after a stream break.
func WithReconnectDelay(d time.Duration) ListenerOption {
	return func(l *Listener) { l.reconnectDelay = d }
}

// NewListener creates a Listener. Call Start to begin consuming.
func NewListener(source EventSource, bridge *Bridge, refresher Refresher, broker *events.Broker, opts ...ListenerOption) *Listener {
	l := &Listener{
		source:         source,
		bridge:         bridge,
		refresher:      refresher,
		broker:         broker,
		reconnectDelay: time.Second,
		maxDelay:       30 * time.Second,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start launches the consume loop in a goroutine.
func (l *Listener) Start(ctx context.Context) {
	go l.run(ctx)
}

// Stop terminates the consume loop and waits for it to exit.
func (l *Listener) Stop() {
	close(l.stopCh)
	<-l.doneCh
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.doneCh)

	logger := l.bridge.logger
	delay := l.reconnectDelay
	first := true

	for {
		select {
		case <-l.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		streamCtx, cancel := context.WithCancel(ctx)
		opts := dockerevents.ListOptions{
			Filters: filters.NewArgs(filters.Arg("type", "container")),
		}
		msgCh, errCh := l.source.Events(streamCtx, opts)

		if !first {
			metrics.EventStreamReconnectsTotal.Inc()
			// Anything could have happened while the stream was down.
			l.refresher.Invalidate()
			l.broker.Publish(&events.Event{
				Type:    events.EventDaemonReconnected,
				Message: "daemon event stream reconnected",
			})
			logger.Info().Msg("daemon event stream reconnected")
		}
		first = false

		streamStart := time.Now()
		if err := l.consume(msgCh, errCh); err != nil {
			logger.Warn().Err(err).Msg("daemon event stream broke")
			l.refresher.Invalidate()
			l.broker.Publish(&events.Event{
				Type:    events.EventDaemonDisconnected,
				Message: "daemon event stream lost: " + err.Error(),
			})
		}
		cancel()

		// A stream that stayed up for a while earns a fresh backoff.
		if time.Since(streamStart) > l.maxDelay {
			delay = l.reconnectDelay
		}

		select {
		case <-l.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay *= 2; delay > l.maxDelay {
			delay = l.maxDelay
		}
	}
}

// consume drains one stream until it errors or the listener stops.
func (l *Listener) consume(msgCh <-chan dockerevents.Message, errCh <-chan error) error {
	for {
		select {
		case <-l.stopCh:
			return nil
		case msg := <-msgCh:
			l.bridge.Handle(msg)
		case err := <-errCh:
			return err
		}
	}
}
