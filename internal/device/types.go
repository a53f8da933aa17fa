package device

import (
	"time"
)

// Field limits for editable device attributes.
const (
	MaxLabelLength      = 100
	MaxDeviceTypeLength = 64
)

// Device is the stored record of a device that has connected at least once.
//
// The live connection state (who is online right now) is owned by the
// gateway's session registry; IsActive here is the persisted view of it
// and may lag by one write.
type Device struct {
	ID         string         `json:"deviceId"`
	MAC        string         `json:"mac,omitempty"`
	DeviceType string         `json:"deviceType"`
	Label      string         `json:"label,omitempty"`
	Firmware   string         `json:"version,omitempty"`
	DeviceIP   string         `json:"deviceIP,omitempty"`
	RemoteAddr string         `json:"ip,omitempty"`
	Status     map[string]any `json:"status,omitempty"`
	Uptime     int64          `json:"uptime"`
	IsActive   bool           `json:"isActive"`

	ConnectionCount int        `json:"connectionCount"`
	FirstSeen       time.Time  `json:"firstSeen"`
	ConnectedAt     *time.Time `json:"connectedAt,omitempty"`
	LastHeartbeat   *time.Time `json:"lastHeartbeat,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Fields is a partial device record written by the gateway.
//
// Zero values leave the stored column untouched, so a heartbeat can carry
// only Uptime and LastHeartbeat without clearing identity fields.
type Fields struct {
	MAC        string
	DeviceType string
	Firmware   string
	DeviceIP   string
	RemoteAddr string

	// Status replaces the stored status blob when non-nil.
	Status map[string]any

	// Uptime replaces the stored uptime when non-nil.
	Uptime *int64

	// ConnectedAt marks a new connection: it is stored as connected_at and
	// increments connection_count.
	ConnectedAt time.Time

	LastHeartbeat time.Time
}

// Update holds the operator-editable attributes of a stored device.
// Nil pointers are left unchanged.
type Update struct {
	Label      *string `json:"label"`
	DeviceType *string `json:"deviceType"`
}

// SensorReading is one value reported by a device sensor.
type SensorReading struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"deviceId"`
	Sensor    string    `json:"sensor"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// SensorFilter selects sensor readings. Start and End apply only when both
// are set.
type SensorFilter struct {
	DeviceID string
	Sensor   string
	Start    time.Time
	End      time.Time
	Limit    int
}

// SensorStats aggregates the readings of one sensor. Avg, Min and Max cover
// numeric values only and are nil when the sensor reported none.
type SensorStats struct {
	Sensor         string    `json:"sensor"`
	Count          int       `json:"count"`
	Avg            *float64  `json:"avgValue"`
	Min            *float64  `json:"minValue"`
	Max            *float64  `json:"maxValue"`
	FirstTimestamp time.Time `json:"firstTimestamp"`
	LastTimestamp  time.Time `json:"lastTimestamp"`
}

// LedConfig is an LED setting recorded for a device, either reported by the
// device or sent to it as a command.
type LedConfig struct {
	ID       int64  `json:"id"`
	DeviceID string `json:"deviceId"`
	On       bool   `json:"on"`
	Red      bool   `json:"red"`
	Green    bool   `json:"green"`
	Blue     bool   `json:"blue"`
	Behavior int    `json:"behavior"`

	// Parameters is the full payload as received, including keys not
	// mapped to columns above.
	Parameters map[string]any `json:"parameters"`
	Timestamp  time.Time      `json:"timestamp"`
}

// LedFilter selects LED configurations. Results are newest first unless
// Ascending is set.
type LedFilter struct {
	DeviceID  string
	Limit     int
	Ascending bool
}

// Query defaults and caps.
const (
	DefaultSensorLimit = 1000
	MaxSensorLimit     = 10000
	DefaultLedLimit    = 100
	MaxLedLimit        = 1000
)

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
