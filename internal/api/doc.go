// Package api provides the HTTP facade of the device gateway.
//
// One listener serves three things:
//
//   - the device WebSocket endpoint (default /ws), handed to the gateway
//   - the REST API under /api/v1 for inspecting devices, sending commands
//     and reading stored sensor, LED and audit history
//   - Prometheus metrics at /metrics
//
// The server follows the same lifecycle pattern as the infrastructure
// packages:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
