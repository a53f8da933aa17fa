// Package bridge connects the device gateway to an MQTT broker.
//
// Outbound, it implements gateway.Events: every device lifecycle and data
// event is published under the configured topic prefix.
//
//	{prefix}/devices/{id}/online          retained {"online":bool,"timestamp":...}
//	{prefix}/devices/{id}/status          status payload reported by the device
//	{prefix}/devices/{id}/sensor/{name}   one sensor reading
//	{prefix}/devices/{id}/response        command response from the device
//
// Inbound, it subscribes to {prefix}/command/+ and routes each
// {"command":..., "parameters":{...}} message to the named device's session
// as a command frame.
//
// The broker is optional. When MQTT is disabled the gateway runs with its
// no-op event sink and this package is not constructed.
package bridge
