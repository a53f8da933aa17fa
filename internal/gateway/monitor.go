package gateway

import (
	"context"
	"time"
)

// RunMonitor runs the liveness sweep every ping interval until ctx is
// cancelled. Blocks; run it in its own goroutine.
func (g *Gateway) RunMonitor(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.PingIntervalDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Sweep()
		}
	}
}

// Sweep runs one liveness cycle over a snapshot of open connections.
//
// A connection that showed no life since the previous sweep is evicted.
// Every other connection has its mark cleared and is pinged; the pong, or
// any other frame, marks it alive again before the next sweep. A peer that
// stays silent is therefore evicted on the second sweep.
//
// Returns the number of evicted connections.
func (g *Gateway) Sweep() int {
	evicted := 0
	deadline := time.Now().Add(g.cfg.WriteTimeoutDuration())

	for _, s := range g.openSessions() {
		if !s.checkAndReset() {
			g.logger.Info("evicting unresponsive connection",
				"device_id", s.DeviceID(),
				"remote_addr", s.remoteAddr,
			)
			g.closeSession(s, ReasonEvicted)
			evicted++
			continue
		}

		if err := s.ping(deadline); err != nil {
			g.logger.Debug("ping failed", "device_id", s.DeviceID(), "error", err)
		}
	}

	return evicted
}
