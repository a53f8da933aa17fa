// Package mqtt provides MQTT client connectivity for the device gateway.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The broker is optional. When enabled, the gateway publishes device
// presence, status, sensor readings and command responses, and accepts
// device commands from other services:
//
//	Devices ↔ Gateway ↔ MQTT Broker ↔ Home automation, dashboards
//
// # Topics
//
// All topics live under a configurable prefix (default "gateway"):
//
//	{prefix}/devices/{id}/online           retained {"online":bool}
//	{prefix}/devices/{id}/status
//	{prefix}/devices/{id}/sensor/{sensor}
//	{prefix}/devices/{id}/response
//	{prefix}/command/{id}                  inbound {"command":..., "parameters":{...}}
//	{prefix}/system/status                 retained gateway status and LWT
//
// # Security Considerations
//
//   - Enable TLS for brokers outside the local host (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anyone who can publish to {prefix}/command/+ can command devices
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllDeviceCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        id, _ := client.Topics().CommandDeviceID(topic)
//	        return route(id, payload)
//	    })
//
//	client.PublishJSON(client.Topics().DeviceOnline(id), map[string]bool{"online": true}, true)
package mqtt
