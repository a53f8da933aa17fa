package gateway

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Inbound message types.
const (
	TypeIdentification = "identification"
	TypeHeartbeat      = "heartbeat"
	TypeStatus         = "status"
	TypeSensorData     = "sensor_data"
	TypeResponse       = "response"
	TypeLedUpdate      = "led_update"
	TypePong           = "pong"
)

// Outbound message types. TypeSensorData is shared with inbound.
const (
	TypeCommand           = "command"
	TypePing              = "ping"
	TypeIdentificationAck = "identification_ack"
	TypeLedUpdateAck      = "led_update_ack"
	TypeError             = "error"
	TypeDeviceListUpdate  = "device_list_update"
	TypeDeviceStatus      = "device_status"
	TypeDeviceResponse    = "device_response"
)

// Error reply texts sent to devices.
const (
	msgInvalidJSON     = "invalid JSON format"
	msgMissingType     = "message type is required"
	msgNotIdentified   = "device not identified"
	msgMissingMAC      = "identification requires mac"
	msgIdentityChanged = "device identity cannot change"
	msgLedSaveFailed   = "failed to save LED configuration"
)

// errMissingType distinguishes a well-formed object with no type.
var errMissingType = fmt.Errorf("%w: missing type", ErrMalformedFrame)

// timestampLayout is RFC 3339 in UTC with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Inbound is a decoded device frame.
//
// Known fields are lifted out of Raw; Raw keeps the full record so handlers
// that forward the whole message (status, response) see every field.
type Inbound struct {
	Type       string
	MAC        string
	Device     string
	Version    string
	IP         string
	Uptime     *int64
	Sensor     string
	Value      any
	Timestamp  any
	Parameters map[string]any
	Raw        map[string]any
}

// ParseInbound decodes one transport frame.
//
// Returns ErrMalformedFrame when the frame is not a JSON object or has no
// string type field.
func ParseInbound(data []byte) (Inbound, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err) //nolint:errorlint // json error is context only
	}
	if raw == nil {
		return Inbound{}, fmt.Errorf("%w: not an object", ErrMalformedFrame)
	}

	msgType, _ := raw["type"].(string) //nolint:errcheck // checked below
	if msgType == "" {
		return Inbound{}, errMissingType
	}

	msg := Inbound{
		Type:      msgType,
		MAC:       stringField(raw, "mac"),
		Device:    stringField(raw, "device"),
		Version:   stringField(raw, "version"),
		IP:        stringField(raw, "ip"),
		Sensor:    stringField(raw, "sensor"),
		Value:     raw["value"],
		Timestamp: raw["timestamp"],
		Raw:       raw,
	}

	if n, ok := raw["uptime"].(float64); ok {
		u := int64(n)
		msg.Uptime = &u
	}
	if p, ok := raw["parameters"].(map[string]any); ok {
		msg.Parameters = p
	}

	return msg, nil
}

// Payload returns the frame's fields without its type.
func (m Inbound) Payload() map[string]any {
	out := make(map[string]any, len(m.Raw))
	for k, v := range m.Raw {
		if k == "type" {
			continue
		}
		out[k] = v
	}
	return out
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string) //nolint:errcheck // non-string means absent
	return s
}

// ParseSensorTimestamp interprets a device-supplied timestamp.
//
// Accepted forms are an RFC 3339 string, unix milliseconds (values above
// 1e12) and unix seconds (values above 1e9). Anything else, including
// device uptime counters, falls back to fallback.
func ParseSensorTimestamp(v any, fallback time.Time) time.Time {
	switch t := v.(type) {
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed.UTC()
		}
	case float64:
		switch {
		case t > 1e12:
			return time.UnixMilli(int64(t)).UTC()
		case t > 1e9:
			sec, frac := math.Modf(t)
			return time.Unix(int64(sec), int64(frac*1e9)).UTC()
		}
	}
	return fallback
}

// Outbound is a frame sent to a device or observer. The type and send-time
// timestamp are added by Encode.
type Outbound struct {
	Type   string
	Fields map[string]any
}

// Encode serialises the frame, stamping it with now.
func (m Outbound) Encode(now time.Time) ([]byte, error) {
	out := make(map[string]any, len(m.Fields)+2)
	for k, v := range m.Fields {
		out[k] = v
	}
	out["type"] = m.Type
	out["timestamp"] = now.UTC().Format(timestampLayout)

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encoding %s frame: %w", m.Type, err)
	}
	return data, nil
}

// Command builds a command frame. A nil params map is sent as {}.
func Command(command string, params map[string]any) Outbound {
	if params == nil {
		params = map[string]any{}
	}
	return Outbound{Type: TypeCommand, Fields: map[string]any{
		"command":    command,
		"parameters": params,
	}}
}

// Ping builds an application-level ping frame.
func Ping() Outbound {
	return Outbound{Type: TypePing}
}

// IdentificationAck confirms a successful identification.
func IdentificationAck(deviceID string) Outbound {
	return Outbound{Type: TypeIdentificationAck, Fields: map[string]any{
		"status":   "confirmed",
		"deviceId": deviceID,
	}}
}

// LedUpdateAck confirms a stored LED configuration.
func LedUpdateAck() Outbound {
	return Outbound{Type: TypeLedUpdateAck, Fields: map[string]any{
		"status": "saved",
	}}
}

// ErrorMessage builds an error reply.
func ErrorMessage(message string) Outbound {
	return Outbound{Type: TypeError, Fields: map[string]any{
		"message": message,
	}}
}

// DeviceListUpdate announces the current set of online device IDs.
func DeviceListUpdate(ids []string) Outbound {
	if ids == nil {
		ids = []string{}
	}
	return Outbound{Type: TypeDeviceListUpdate, Fields: map[string]any{
		"devices": ids,
		"count":   len(ids),
	}}
}

// DeviceStatus relays a device's status report.
func DeviceStatus(deviceID string, status map[string]any) Outbound {
	return Outbound{Type: TypeDeviceStatus, Fields: map[string]any{
		"deviceId": deviceID,
		"status":   status,
	}}
}

// DeviceResponse relays a device's response to a command.
func DeviceResponse(deviceID string, data map[string]any) Outbound {
	return Outbound{Type: TypeDeviceResponse, Fields: map[string]any{
		"deviceId": deviceID,
		"data":     data,
	}}
}

// SensorEvent relays a sensor reading. sensorTimestamp is the device's own
// value, passed through untouched; nil is omitted.
func SensorEvent(deviceID, sensor string, value, sensorTimestamp any) Outbound {
	fields := map[string]any{
		"deviceId": deviceID,
		"sensor":   sensor,
		"value":    value,
	}
	if sensorTimestamp != nil {
		fields["sensorTimestamp"] = sensorTimestamp
	}
	return Outbound{Type: TypeSensorData, Fields: fields}
}
