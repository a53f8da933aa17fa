//go:build integration

package mqtt

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
)

// Integration tests against a live broker.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	cfg.TopicPrefix = "gateway-int"
	return cfg
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	client, err := Connect(integrationConfig("gateway-int-sub-track"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topics := []string{
		client.Topics().AllDeviceCommands(),
		client.Topics().DeviceStatus("dev-int"),
		client.Topics().SystemStatus(),
	}

	handler := func(string, []byte) error { return nil }
	for _, topic := range topics {
		if err := client.Subscribe(topic, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}

	if client.SubscriptionCount() != len(topics) {
		t.Errorf("SubscriptionCount() = %d, want %d", client.SubscriptionCount(), len(topics))
	}

	if err := client.Unsubscribe(topics[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(topics[0]) {
		t.Errorf("HasSubscription(%s) = true after unsubscribe", topics[0])
	}
}

// TestIntegration_CommandRoundtrip publishes to a device command topic and
// checks the subscriber can recover the device ID from the wildcard match.
func TestIntegration_CommandRoundtrip(t *testing.T) {
	pub, err := Connect(integrationConfig("gateway-int-pub"))
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pub.Close()

	sub, err := Connect(integrationConfig("gateway-int-sub"))
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer sub.Close()

	type delivery struct {
		deviceID string
		payload  map[string]any
	}
	received := make(chan delivery, 1)
	var once sync.Once

	err = sub.Subscribe(sub.Topics().AllDeviceCommands(), 1, func(topic string, p []byte) error {
		id, ok := sub.Topics().CommandDeviceID(topic)
		if !ok {
			return nil
		}
		var body map[string]any
		if err := json.Unmarshal(p, &body); err != nil {
			return err
		}
		once.Do(func() { received <- delivery{deviceID: id, payload: body} })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	cmd := map[string]any{"command": "reboot"}
	if err := pub.PublishJSON(pub.Topics().DeviceCommand("dev-1"), cmd, false); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case got := <-received:
		if got.deviceID != "dev-1" || got.payload["command"] != "reboot" {
			t.Errorf("received %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for command")
	}
}

func TestIntegration_HealthCheck(t *testing.T) {
	client, err := Connect(integrationConfig("gateway-int-health"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}
