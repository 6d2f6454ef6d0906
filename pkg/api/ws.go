package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stackdock/stackdock/pkg/events"
	"github.com/stackdock/stackdock/pkg/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// EventRelay streams broker events to websocket clients. Each connection
// gets its own broker subscription; a slow client loses events rather than
// backpressuring the engine.
type EventRelay struct {
	broker   *events.Broker
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewEventRelay creates a relay over the broker.
func NewEventRelay(broker *events.Broker) *EventRelay {
	return &EventRelay{
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Same-host admin dashboard; the reverse proxy owns origin policy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: log.WithComponent("events-relay"),
	}
}

// wireEvent is the JSON shape sent to clients.
type wireEvent struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Handle upgrades the request and streams events until the client goes away.
func (r *EventRelay) Handle(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := r.broker.Subscribe()
	defer r.broker.Unsubscribe(sub)

	// Reader goroutine: the client sends nothing we care about, but reads
	// are how close frames and pongs surface.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-req.Context().Done():
			return
		case event, ok := <-sub:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(wireEvent{
				ID:        event.ID,
				Type:      string(event.Type),
				Timestamp: event.Timestamp,
				Message:   event.Message,
				Metadata:  event.Metadata,
			}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
