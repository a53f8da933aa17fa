package gateway

import "fmt"

// SendToOne delivers msg to the session registered for deviceID.
//
// Returns ErrDeviceNotFound if no session is registered. A session that is
// closing or whose send buffer is full skips the frame silently.
func (g *Gateway) SendToOne(deviceID string, msg Outbound) error {
	s, ok := g.registry.Lookup(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	data, err := msg.Encode(g.now())
	if err != nil {
		return err
	}

	if !s.trySend(data) {
		g.metrics.FrameDropped()
		g.logger.Warn("send skipped, session not ready", "device_id", deviceID, "type", msg.Type)
	}
	return nil
}

// Broadcast delivers msg to every registered session.
func (g *Gateway) Broadcast(msg Outbound) int {
	return g.BroadcastExcept(msg, "")
}

// BroadcastExcept delivers msg to every registered session except the one
// for excludeID, and returns how many accepted it.
//
// The registry is snapshotted first and the frame encoded once; each
// recipient gets a non-blocking enqueue, so a full or closing recipient is
// skipped without delaying the rest.
func (g *Gateway) BroadcastExcept(msg Outbound, excludeID string) int {
	data, err := msg.Encode(g.now())
	if err != nil {
		g.logger.Error("encoding broadcast", "type", msg.Type, "error", err)
		return 0
	}

	sent := 0
	for _, s := range g.registry.Sessions() {
		if excludeID != "" && s.DeviceID() == excludeID {
			continue
		}
		if s.trySend(data) {
			sent++
		} else {
			g.metrics.FrameDropped()
		}
	}

	g.metrics.Broadcast(msg.Type, sent)
	return sent
}

// BroadcastDeviceList sends the current device ID list to every session.
func (g *Gateway) BroadcastDeviceList() int {
	return g.Broadcast(DeviceListUpdate(g.registry.ListIDs()))
}

// ListSummaries returns the identity and status of every online device.
func (g *Gateway) ListSummaries() []Summary {
	return g.registry.ListSummaries()
}

// reply sends a frame directly on s, whether or not it is registered.
func (g *Gateway) reply(s *Session, msg Outbound) {
	data, err := msg.Encode(g.now())
	if err != nil {
		g.logger.Error("encoding reply", "type", msg.Type, "error", err)
		return
	}
	if !s.trySend(data) {
		g.metrics.FrameDropped()
		g.logger.Debug("reply dropped", "type", msg.Type, "remote_addr", s.remoteAddr)
	}
}
