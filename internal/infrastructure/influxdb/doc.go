// Package influxdb provides InfluxDB connectivity for the device gateway.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, sensor telemetry writes and health monitoring.
//
// # Purpose
//
// Numeric sensor readings reported by devices are written as
// sensor_readings points tagged by device_id and sensor, next to periodic
// gateway_stats snapshots. SQLite keeps the full history of every value;
// InfluxDB is the optional time-series copy for dashboards.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSensorReading("dev-3f2a9c0d11b4e785", "temperature", 21.5, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking; batch errors are delivered to the
// SetOnError callback wrapped in ErrWriteFailed. Connection and health
// check errors are returned directly.
package influxdb
