package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/audit"
	"github.com/nerrad567/gray-logic-gateway/internal/gateway"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/mqtt"
)

// auditTimeout bounds the audit write for one routed command.
const auditTimeout = 5 * time.Second

// MQTTClient is the subset of *mqtt.Client the bridge uses.
// This allows mocking in tests.
type MQTTClient interface {
	PublishJSON(topic string, v any, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	HasSubscription(topic string) bool
	Topics() mqtt.Topics
	QoS() byte
}

// Router delivers frames to connected devices. *gateway.Gateway satisfies it.
type Router interface {
	SendToOne(deviceID string, msg gateway.Outbound) error
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Bridge.
type Options struct {
	Client MQTTClient
	Router Router
	Audit  audit.Repository // optional
	Logger Logger           // optional

	// Now overrides the clock in tests.
	Now func() time.Time
}

// CommandMessage is the body of a message on a command topic.
type CommandMessage struct {
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// OnlineMessage is the retained body of a device online topic.
type OnlineMessage struct {
	Online    bool   `json:"online"`
	Timestamp string `json:"timestamp"`
}

// SensorMessage is the body of a device sensor topic.
type SensorMessage struct {
	DeviceID  string `json:"deviceId"`
	Sensor    string `json:"sensor"`
	Value     any    `json:"value"`
	Timestamp string `json:"timestamp"`
}

// Bridge publishes gateway events to MQTT and routes broker commands to
// devices.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	client MQTTClient
	router Router
	audit  audit.Repository
	logger Logger
	now    func() time.Time

	// routerMu guards router, which cmd/gateway may set after construction
	// because the gateway itself needs the bridge as its event sink.
	routerMu sync.RWMutex
}

// New creates a bridge. Router may be nil here and supplied later with
// SetRouter, but must be set before Start.
func New(opts Options) (*Bridge, error) {
	if opts.Client == nil {
		return nil, ErrMissingClient
	}

	b := &Bridge{
		client: opts.Client,
		router: opts.Router,
		audit:  opts.Audit,
		logger: opts.Logger,
		now:    opts.Now,
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	if b.now == nil {
		b.now = func() time.Time { return time.Now().UTC() }
	}
	return b, nil
}

// SetRouter sets the router commands are delivered through.
func (b *Bridge) SetRouter(r Router) {
	b.routerMu.Lock()
	b.router = r
	b.routerMu.Unlock()
}

func (b *Bridge) getRouter() Router {
	b.routerMu.RLock()
	defer b.routerMu.RUnlock()
	return b.router
}

// Start subscribes to the device command topics. Calling it again while
// subscribed is a no-op.
func (b *Bridge) Start(_ context.Context) error {
	if b.getRouter() == nil {
		return ErrMissingRouter
	}

	topic := b.client.Topics().AllDeviceCommands()
	if b.client.HasSubscription(topic) {
		return nil
	}
	if err := b.client.Subscribe(topic, b.client.QoS(), b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to device commands", "topic", topic)
	return nil
}

// Stop unsubscribes from the device command topics.
func (b *Bridge) Stop() error {
	topic := b.client.Topics().AllDeviceCommands()
	if !b.client.HasSubscription(topic) {
		return nil
	}
	if err := b.client.Unsubscribe(topic); err != nil {
		return fmt.Errorf("unsubscribe from commands: %w", err)
	}
	b.logger.Info("unsubscribed from device commands", "topic", topic)
	return nil
}

// PublishOnline publishes the retained online flag for a device.
func (b *Bridge) PublishOnline(deviceID string, online bool) error {
	if err := mqtt.ValidateTopicLevel(deviceID); err != nil {
		return err
	}
	return b.client.PublishJSON(b.client.Topics().DeviceOnline(deviceID), OnlineMessage{
		Online:    online,
		Timestamp: b.timestamp(b.now()),
	}, true)
}

// PublishStatus publishes the latest status report of a device.
func (b *Bridge) PublishStatus(deviceID string, status map[string]any) error {
	if err := mqtt.ValidateTopicLevel(deviceID); err != nil {
		return err
	}
	return b.client.PublishJSON(b.client.Topics().DeviceStatus(deviceID), map[string]any{
		"deviceId":  deviceID,
		"status":    status,
		"timestamp": b.timestamp(b.now()),
	}, false)
}

// PublishSensor publishes one sensor reading.
func (b *Bridge) PublishSensor(deviceID, sensor string, value any, ts time.Time) error {
	for _, level := range []string{deviceID, sensor} {
		if err := mqtt.ValidateTopicLevel(level); err != nil {
			return err
		}
	}
	return b.client.PublishJSON(b.client.Topics().DeviceSensor(deviceID, sensor), SensorMessage{
		DeviceID:  deviceID,
		Sensor:    sensor,
		Value:     value,
		Timestamp: b.timestamp(ts),
	}, false)
}

// PublishResponse publishes a device's reply to a command.
func (b *Bridge) PublishResponse(deviceID string, data map[string]any) error {
	if err := mqtt.ValidateTopicLevel(deviceID); err != nil {
		return err
	}
	return b.client.PublishJSON(b.client.Topics().DeviceResponse(deviceID), map[string]any{
		"deviceId":  deviceID,
		"data":      data,
		"timestamp": b.timestamp(b.now()),
	}, false)
}

// handleCommand routes one message from {prefix}/command/{id} to the device.
// Errors are logged by the MQTT client's handler wrapper.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	deviceID, ok := b.client.Topics().CommandDeviceID(topic)
	if !ok {
		return fmt.Errorf("%w: topic %s", ErrInvalidCommand, topic)
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	cmd.Command = strings.TrimSpace(cmd.Command)
	if cmd.Command == "" {
		return fmt.Errorf("%w: command is required", ErrInvalidCommand)
	}

	router := b.getRouter()
	if router == nil {
		return ErrMissingRouter
	}

	if err := router.SendToOne(deviceID, gateway.Command(cmd.Command, cmd.Parameters)); err != nil {
		return fmt.Errorf("routing %s to %s: %w", cmd.Command, deviceID, err)
	}

	b.logger.Debug("command routed from broker", "device_id", deviceID, "command", cmd.Command)
	b.recordAudit(deviceID, cmd)
	return nil
}

func (b *Bridge) recordAudit(deviceID string, cmd CommandMessage) {
	if b.audit == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()

	entry := &audit.AuditLog{
		Action:    audit.ActionCommand,
		DeviceID:  deviceID,
		Source:    audit.SourceMQTT,
		Details:   map[string]any{"command": cmd.Command},
		CreatedAt: b.now(),
	}
	if err := b.audit.Create(ctx, entry); err != nil {
		b.logger.Warn("recording command audit", "device_id", deviceID, "error", err)
	}
}

func (b *Bridge) timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// noopLogger discards all log output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}
func (noopLogger) Error(string, ...any) {}
