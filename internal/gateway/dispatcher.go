package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/audit"
	"github.com/nerrad567/gray-logic-gateway/internal/device"
)

// lookupTimeout bounds the stored-ID lookup during identification.
const lookupTimeout = 2 * time.Second

// HandleFrame processes one raw inbound frame from s.
//
// Any frame, valid or not, counts as evidence of life. Malformed frames get
// one error reply and leave the session unchanged.
func (g *Gateway) HandleFrame(s *Session, data []byte) {
	s.markAlive()

	msg, err := ParseInbound(data)
	if err != nil {
		g.metrics.FrameReceived("malformed")
		g.logger.Warn("malformed frame", "remote_addr", s.remoteAddr, "error", err)

		text := msgInvalidJSON
		if errors.Is(err, errMissingType) {
			text = msgMissingType
		}
		g.reply(s, ErrorMessage(text))
		return
	}

	g.Dispatch(s, msg)
}

// Dispatch routes a decoded frame to its handler.
func (g *Gateway) Dispatch(s *Session, msg Inbound) {
	g.metrics.FrameReceived(msg.Type)

	if err := validateFrame(s, msg); err != nil {
		g.logger.Warn("frame rejected",
			"type", msg.Type,
			"remote_addr", s.remoteAddr,
			"error", err,
		)
		g.reply(s, ErrorMessage(replyText(err)))
		return
	}

	switch msg.Type {
	case TypeIdentification:
		g.handleIdentification(s, msg)
	case TypeHeartbeat:
		g.handleHeartbeat(s, msg)
	case TypeStatus:
		g.handleStatus(s, msg)
	case TypeSensorData:
		g.handleSensorData(s, msg)
	case TypeResponse:
		g.handleResponse(s, msg)
	case TypeLedUpdate:
		g.handleLedUpdate(s, msg)
	case TypePong:
		s.touch(g.now())
	default:
		g.logger.Debug("ignoring unknown message type", "type", msg.Type, "device_id", s.DeviceID())
	}
}

// validateFrame checks a decoded frame against the session's state.
// Only identification is accepted before a session is identified, and it
// must carry a mac.
func validateFrame(s *Session, msg Inbound) error {
	if msg.Type == TypeIdentification {
		if strings.TrimSpace(msg.MAC) == "" {
			return ErrMissingMAC
		}
		return nil
	}
	if s.State() != StateIdentified {
		return ErrNotIdentified
	}
	return nil
}

// replyText maps a protocol error to the text sent back to the device.
func replyText(err error) string {
	switch {
	case errors.Is(err, ErrMissingMAC):
		return msgMissingMAC
	case errors.Is(err, ErrNotIdentified):
		return msgNotIdentified
	case errors.Is(err, ErrIdentityConflict):
		return msgIdentityChanged
	default:
		return msgInvalidJSON
	}
}

func (g *Gateway) handleIdentification(s *Session, msg Inbound) {
	mac := NormalizeMAC(msg.MAC)

	ctx, cancel := context.WithTimeout(g.ctx, lookupTimeout)
	id := g.identities.Resolve(ctx, mac)
	cancel()

	now := g.now()
	first, err := s.identify(identity{
		deviceID:   id,
		mac:        mac,
		deviceType: msg.Device,
		firmware:   msg.Version,
		deviceIP:   msg.IP,
	}, now)
	switch {
	case errors.Is(err, ErrIdentityConflict):
		g.logger.Warn("identification with a different mac rejected",
			"device_id", s.DeviceID(),
			"mac", mac,
		)
		g.reply(s, ErrorMessage(replyText(err)))
		return
	case err != nil:
		return
	}

	if first && !g.register(s, id) {
		return
	}

	g.reply(s, IdentificationAck(id))

	fields := device.Fields{
		MAC:           mac,
		DeviceType:    msg.Device,
		Firmware:      msg.Version,
		DeviceIP:      msg.IP,
		RemoteAddr:    s.remoteAddr,
		LastHeartbeat: now,
	}
	if first {
		fields.ConnectedAt = now
	}
	g.persist(s, "upsert_device", func(ctx context.Context) error {
		return g.store.UpsertDevice(ctx, id, fields)
	})

	if !first {
		g.logger.Debug("device re-identified", "device_id", id)
		return
	}

	g.logger.Info("device identified",
		"device_id", id,
		"mac", mac,
		"device_type", msg.Device,
		"version", msg.Version,
		"remote_addr", s.remoteAddr,
	)
	g.BroadcastDeviceList()
	g.publish(s, "publish_online", func() error {
		return g.events.PublishOnline(id, true)
	})
	g.recordAudit(s, audit.ActionIdentified, id, map[string]any{
		"mac":        mac,
		"deviceType": msg.Device,
		"version":    msg.Version,
	})
}

// register binds id to s in the registry, closing any session it
// replaces. Returns false if s was closed before it could be registered.
func (g *Gateway) register(s *Session, id string) bool {
	if prev := g.registry.Register(id, s); prev != nil {
		g.logger.Info("replacing existing session",
			"device_id", id,
			"old_remote_addr", prev.remoteAddr,
			"new_remote_addr", s.remoteAddr,
		)
		g.closeSession(prev, ReasonReplaced)
	}

	// Closed between identify and Register: release already ran and could
	// not see the entry, and a replaced predecessor left without marking the
	// device offline. Its work queue is closed, so side effects run inline.
	if s.State() == StateClosed {
		if g.registry.UnregisterSession(id, s) {
			g.deviceLeft(s, id, s.CloseReason(), runInline)
		}
		return false
	}

	g.metrics.SetOnline(g.registry.Len())
	return true
}

func (g *Gateway) handleHeartbeat(s *Session, msg Inbound) {
	now := g.now()
	s.setHeartbeat(msg.Uptime, now)

	id := s.DeviceID()
	g.logger.Debug("heartbeat", "device_id", id)

	fields := device.Fields{Uptime: msg.Uptime, LastHeartbeat: now}
	g.persist(s, "heartbeat", func(ctx context.Context) error {
		return g.store.UpsertDevice(ctx, id, fields)
	})
}

func (g *Gateway) handleStatus(s *Session, msg Inbound) {
	now := g.now()
	status := msg.Payload()
	s.setStatus(status)
	s.touch(now)

	id := s.DeviceID()
	g.logger.Debug("status report", "device_id", id)

	g.persist(s, "status", func(ctx context.Context) error {
		return g.store.UpsertDevice(ctx, id, device.Fields{Status: status, LastHeartbeat: now})
	})
	g.publish(s, "publish_status", func() error {
		return g.events.PublishStatus(id, status)
	})

	g.BroadcastExcept(DeviceStatus(id, status), id)
}

// handleSensorData stores and fans out one reading. A reading without a
// sensor name cannot be keyed, so it is only broadcast.
func (g *Gateway) handleSensorData(s *Session, msg Inbound) {
	id := s.DeviceID()
	ts := ParseSensorTimestamp(msg.Timestamp, g.now())

	if msg.Sensor == "" {
		g.logger.Warn("sensor reading without sensor name, not stored", "device_id", id)
	} else {
		g.logger.Debug("sensor reading", "device_id", id, "sensor", msg.Sensor)

		g.persist(s, "sensor_reading", func(ctx context.Context) error {
			return g.store.AppendSensorReading(ctx, id, msg.Sensor, msg.Value, ts)
		})
		if v, ok := device.NumericValue(msg.Value); ok {
			g.telemetry.WriteSensorReading(id, msg.Sensor, v, ts)
		}
		g.publish(s, "publish_sensor", func() error {
			return g.events.PublishSensor(id, msg.Sensor, msg.Value, ts)
		})
	}

	g.BroadcastExcept(SensorEvent(id, msg.Sensor, msg.Value, msg.Timestamp), id)
}

func (g *Gateway) handleResponse(s *Session, msg Inbound) {
	id := s.DeviceID()
	data := msg.Payload()
	g.logger.Debug("command response", "device_id", id)

	g.publish(s, "publish_response", func() error {
		return g.events.PublishResponse(id, data)
	})
	g.BroadcastExcept(DeviceResponse(id, data), id)
}

// handleLedUpdate stores the configuration before replying, since the
// device waits for led_update_ack or error.
func (g *Gateway) handleLedUpdate(s *Session, msg Inbound) {
	id := s.DeviceID()

	params := msg.Parameters
	if params == nil {
		params = msg.Payload()
	}

	ctx, cancel := context.WithTimeout(g.ctx, persistTimeout)
	err := g.store.AppendLedConfig(ctx, id, params, g.now())
	cancel()

	if err != nil {
		g.metrics.PersistFailed("led_config")
		g.logger.Error("saving LED configuration", "device_id", id, "error", err)
		g.reply(s, ErrorMessage(msgLedSaveFailed))
		return
	}

	g.logger.Debug("LED configuration saved", "device_id", id)
	g.reply(s, LedUpdateAck())
}
