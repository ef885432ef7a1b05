package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for a connection attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultOperationTimeout is the maximum time to wait for subscribe and
	// unsubscribe acknowledgments.
	defaultOperationTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Will describes the last-will message registered with the broker.
// The broker publishes it when the session drops without a clean disconnect.
type Will struct {
	Topic   string
	Message string
	QoS     byte
	Retain  bool
}

// Settings carries everything needed to open one broker session.
// Values map one-to-one onto the stored broker configuration.
type Settings struct {
	Host            string
	Port            int
	ClientID        string
	Username        string
	Password        string
	TLS             bool
	ProtocolVersion uint
	KeepAlive       time.Duration
	CleanSession    bool
	Will            *Will
	ConnectTimeout  time.Duration
}

// buildClientOptions creates paho MQTT options from session settings.
//
// Auto-reconnect and connect-retry are disabled on purpose: the session
// owner drives every reconnection attempt itself, so the paho client must
// report a lost link exactly once and then stay down until told otherwise.
func buildClientOptions(s Settings) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if s.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, s.Host, s.Port))

	opts.SetClientID(s.ClientID)

	if s.Username != "" {
		opts.SetUsername(s.Username)
		opts.SetPassword(s.Password)
	}

	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	opts.SetCleanSession(s.CleanSession)

	if s.ProtocolVersion > 0 {
		opts.SetProtocolVersion(s.ProtocolVersion)
	}

	keepAlive := s.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	connectTimeout := s.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	opts.SetConnectTimeout(connectTimeout)

	if s.Will != nil && s.Will.Topic != "" {
		opts.SetWill(s.Will.Topic, s.Will.Message, s.Will.QoS, s.Will.Retain)
	}

	if s.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}
