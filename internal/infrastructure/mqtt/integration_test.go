package mqtt_test

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tessera-iot/fleetcore/internal/infrastructure/mqtt"
)

// dialTestBroker opens a session against a local broker. These tests
// exercise the real paho client and are skipped when no broker listens.
func dialTestBroker(t *testing.T) *mqtt.Session {
	t.Helper()

	host := os.Getenv("FLEETCORE_TEST_MQTT_HOST")
	if host == "" {
		host = "localhost"
	}

	session, err := mqtt.Dial(mqtt.Settings{
		Host:           host,
		Port:           1883,
		ClientID:       "fleetcore-test-" + uuid.NewString()[:8],
		CleanSession:   true,
		ConnectTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Skipf("broker unavailable: %v", err)
	}

	t.Cleanup(session.Disconnect)
	return session
}

func TestDialAndSubscribe(t *testing.T) {
	session := dialTestBroker(t)

	if !session.IsConnected() {
		t.Fatal("session not connected after dial")
	}

	topic := "fleetcore-test/" + uuid.NewString()
	if err := session.Subscribe(topic, 1); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := session.Unsubscribe(topic); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
}

func TestSubscribeAll_LiveBroker(t *testing.T) {
	session := dialTestBroker(t)

	prefix := "fleetcore-test/" + uuid.NewString()
	err := session.SubscribeAll([]mqtt.Subscription{
		{Topic: prefix + "/temperature", QoS: 1},
		{Topic: prefix + "/humidity", QoS: 0},
	})
	if err != nil {
		t.Fatalf("SubscribeAll failed: %v", err)
	}
}
