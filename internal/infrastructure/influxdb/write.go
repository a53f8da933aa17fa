package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the gateway.
const (
	MeasurementSensorReadings = "sensor_readings"
	MeasurementGatewayStats   = "gateway_stats"
)

// WriteSensorReading records one numeric sensor value.
//
// The write is non-blocking; data is batched and sent asynchronously.
// A zero ts is replaced with the current time.
//
// Parameters:
//   - deviceID: Gateway-assigned device ID (e.g., "dev-3f2a9c0d11b4e785")
//   - sensor: Sensor name as reported by the device (e.g., "temperature")
//   - value: The numeric value; booleans arrive as 0 or 1
//   - ts: When the reading was taken
func (c *Client) WriteSensorReading(deviceID, sensor string, value float64, ts time.Time) {
	c.WritePointWithTime(
		MeasurementSensorReadings,
		map[string]string{
			"device_id": deviceID,
			"sensor":    sensor,
		},
		map[string]interface{}{
			"value": value,
		},
		ts,
	)
}

// WriteGatewayStats records a snapshot of the gateway's connection counts.
//
// Parameters:
//   - gatewayID: Configured gateway ID
//   - online: Identified devices currently registered
//   - connections: Open connections, identified or not
func (c *Client) WriteGatewayStats(gatewayID string, online, connections int) {
	c.WritePointWithTime(
		MeasurementGatewayStats,
		map[string]string{
			"gateway_id": gatewayID,
		},
		map[string]interface{}{
			"devices_online": online,
			"connections":    connections,
		},
		time.Now(),
	)
}

// WritePointWithTime writes a point with a specific timestamp.
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point; zero means now
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
