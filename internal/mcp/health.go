package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/waveline-ai/waveline/internal/logging"
)

// healthProbeTimeout bounds a single transport probe.
const healthProbeTimeout = 5 * time.Second

// healthMonitor periodically probes one client's transport and drives
// restarts when a probe fails. It lives from a successful Connect until
// Disconnect, or until the restart budget is exhausted and the client
// goes Failed.
type healthMonitor struct {
	client   *Client
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func newHealthMonitor(c *Client, interval time.Duration) *healthMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &healthMonitor{
		client:   c,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

func (m *healthMonitor) start() {
	go m.run()
}

// stop signals the monitor and waits for it to finish, including any
// restart in flight.
func (m *healthMonitor) stop() {
	m.cancel()
	<-m.done
}

func (m *healthMonitor) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
		}

		probeCtx, cancel := context.WithTimeout(m.ctx, healthProbeTimeout)
		err := m.client.healthCheck(probeCtx)
		cancel()
		if err == nil {
			continue
		}
		if errors.Is(err, ErrServerUnavailable) {
			// Failed is terminal for the monitor.
			return
		}

		logging.Warn().Err(err).
			Str("server", m.client.Name()).
			Msg("health check failed, restarting")

		rerr := m.client.restart(m.ctx)
		switch {
		case rerr == nil:
		case errors.Is(rerr, ErrServerUnavailable):
			return
		case m.ctx.Err() != nil:
			return
		}
	}
}
