package discovery

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/stackdock/stackdock/pkg/log"
)

// Poller periodically refreshes the snapshot as a safety net for changes the
// Docker event stream missed. The event bridge is the primary invalidation
// path; this loop only has to catch what slipped through.
type Poller struct {
	service  *Service
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
}

// NewPoller creates a poller around the discovery service.
func NewPoller(service *Service, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{
		service:  service,
		interval: interval,
		logger:   log.WithComponent("poller"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the polling loop.
func (p *Poller) Start() {
	go p.run()
}

// Stop stops the poller.
func (p *Poller) Stop() {
	close(p.stopCh)
}

func (p *Poller) run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.service.Refresh(context.Background()); err != nil {
				p.logger.Warn().Err(err).Msg("scheduled refresh failed")
			}
		case <-p.stopCh:
			return
		}
	}
}
