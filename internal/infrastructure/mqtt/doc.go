// Package mqtt wraps paho.mqtt.golang with per-broker session handling.
//
// Each Session owns exactly one broker connection and surfaces everything
// that happens on it (message deliveries, link losses) as a single ordered
// event stream. Automatic reconnection is deliberately disabled in the
// underlying client: the supervising loop that owns a session decides when
// to redial and when to resubscribe, so recovery policy lives in one place.
package mqtt
