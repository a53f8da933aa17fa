// Package device stores what the gateway learns about its devices.
//
// It is the persistence side of the device gateway: the live session
// registry lives in package gateway and calls into this package whenever a
// device identifies, reports a heartbeat or status, streams a sensor
// reading, or accepts an LED configuration. The HTTP facade reads from the
// same store.
//
// # Tables
//
//   - devices: one row per device ID, carrying identity, last status and
//     connection history (first seen, connection count, active flag)
//   - sensor_readings: append-only readings; numeric values are mirrored
//     into value_num for aggregate queries
//   - led_configs: append-only LED settings, newest wins
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//
//	err := repo.UpsertDevice(ctx, "dev-1a2b3c4d5e6f7a8b", device.Fields{
//	    DeviceType:  "sensor-node",
//	    MAC:         "AA:BB:CC:DD:EE:FF",
//	    ConnectedAt: time.Now(),
//	})
//
// All timestamps are stored in UTC.
package device
