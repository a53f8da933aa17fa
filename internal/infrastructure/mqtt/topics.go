package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "gateway"

// Topics builds the gateway's MQTT topics under a configurable prefix.
// Using these helpers keeps topic naming consistent across publishers and
// subscribers.
//
//	topics := mqtt.NewTopics("gateway")
//	topics.DeviceSensor("dev-3f2a9c0d11b4e785", "temperature")
//	// Returns: "gateway/devices/dev-3f2a9c0d11b4e785/sensor/temperature"
type Topics struct {
	Prefix string
}

// NewTopics returns topic builders for prefix, trimming any trailing '/'.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

// ValidateTopicLevel checks that s can be used as a single level of a
// publish topic. Device IDs and sensor names come from devices, so a '/'
// would add levels and '+' or '#' are wildcards brokers refuse on publish.
func ValidateTopicLevel(s string) error {
	if s == "" || strings.ContainsAny(s, "/+#\x00") {
		return fmt.Errorf("%w: %q is not a valid topic level", ErrInvalidTopic, s)
	}
	return nil
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// =============================================================================
// Device Event Topics
// =============================================================================

// DeviceOnline returns the retained presence topic for a device.
//
// Example: gateway/devices/dev-3f2a9c0d11b4e785/online
func (t Topics) DeviceOnline(deviceID string) string {
	return fmt.Sprintf("%s/devices/%s/online", t.prefix(), deviceID)
}

// DeviceStatus returns the topic for a device's status reports.
//
// Example: gateway/devices/dev-3f2a9c0d11b4e785/status
func (t Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/devices/%s/status", t.prefix(), deviceID)
}

// DeviceSensor returns the topic for one sensor of a device.
//
// Example: gateway/devices/dev-3f2a9c0d11b4e785/sensor/temperature
func (t Topics) DeviceSensor(deviceID, sensor string) string {
	return fmt.Sprintf("%s/devices/%s/sensor/%s", t.prefix(), deviceID, sensor)
}

// DeviceResponse returns the topic for a device's command responses.
//
// Example: gateway/devices/dev-3f2a9c0d11b4e785/response
func (t Topics) DeviceResponse(deviceID string) string {
	return fmt.Sprintf("%s/devices/%s/response", t.prefix(), deviceID)
}

// =============================================================================
// Command Topics
// =============================================================================

// DeviceCommand returns the topic other services publish to in order to
// send a command to a device.
//
// Example: gateway/command/dev-3f2a9c0d11b4e785
func (t Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", t.prefix(), deviceID)
}

// CommandDeviceID extracts the device ID from a command topic.
// Returns false if topic is not a command topic under this prefix.
func (t Topics) CommandDeviceID(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/command/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the gateway's own retained status topic.
//
// Example: gateway/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllDeviceCommands returns a pattern matching every device command topic.
//
// Pattern: gateway/command/+
func (t Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/command/+", t.prefix())
}
