package broker

import (
	"time"

	"github.com/tessera-iot/fleetcore/internal/infrastructure/mqtt"
)

// LastWill is the optional message a broker publishes on the session's
// behalf when it drops without a clean disconnect.
type LastWill struct {
	Topic   string `json:"topic"`
	Message string `json:"message"`
	QoS     byte   `json:"qos"`
	Retain  bool   `json:"retain"`
}

// Broker represents an external MQTT broker FleetCore can hold a session
// to.
//
// Connected mirrors live session state. It is written only by the state
// synchronizer; administrative updates leave it untouched.
type Broker struct {
	ID           string     `json:"id"`
	Host         string     `json:"host"`
	Port         int        `json:"port"`
	ClientID     string     `json:"client_id"`
	Version      uint       `json:"version"`
	KeepAlive    int        `json:"keep_alive"`
	CleanSession bool       `json:"clean_session"`
	LastWill     *LastWill  `json:"last_will,omitempty"`
	Connected    bool       `json:"connected"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// sessionSettings maps a broker row onto transport settings.
func (b *Broker) sessionSettings() mqtt.Settings {
	settings := mqtt.Settings{
		Host:            b.Host,
		Port:            b.Port,
		ClientID:        b.ClientID,
		ProtocolVersion: b.Version,
		KeepAlive:       time.Duration(b.KeepAlive) * time.Second,
		CleanSession:    b.CleanSession,
	}
	if b.LastWill != nil {
		settings.Will = &mqtt.Will{
			Topic:   b.LastWill.Topic,
			Message: b.LastWill.Message,
			QoS:     b.LastWill.QoS,
			Retain:  b.LastWill.Retain,
		}
	}
	return settings
}

// Logger is the narrow logging surface the broker components need.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards everything. Used when no logger is configured.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
