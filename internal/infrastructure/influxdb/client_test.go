package influxdb

import (
	"errors"
	"testing"
	"time"

	"github.com/tessera-iot/fleetcore/internal/infrastructure/config"
)

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://localhost:1", // nothing listens here
		Token:   "test-token",
		Org:     "fleetcore",
		Bucket:  "telemetry",
	})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("error = %v, want ErrConnectionFailed", err)
	}
}

func TestArchive_DisconnectedIsNoop(t *testing.T) {
	c := &Client{}
	// Must not panic on a nil write API when disconnected.
	c.Archive("d1", "temp", 21.5, time.Now())
}
