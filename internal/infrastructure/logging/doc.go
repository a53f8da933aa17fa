// Package logging provides structured logging for the device gateway.
//
// This package wraps Go's standard log/slog package so every component
// emits entries with the same shape.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	wsLog := logger.Component("websocket")
//	wsLog.Info("device connected", "remote_addr", addr)
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
