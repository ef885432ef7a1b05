package device

import "time"

// Kind describes the messaging role of a device.
type Kind int

const (
	// KindSensor devices publish telemetry; FleetCore subscribes to them.
	KindSensor Kind = 0

	// KindActuator devices receive commands; FleetCore publishes to them.
	KindActuator Kind = 1
)

// Condition describes the operational state of a device.
type Condition int

const (
	// ConditionActive devices take part in broker subscriptions.
	ConditionActive Condition = 0

	// ConditionSuspended devices are retained but not subscribed.
	ConditionSuspended Condition = 1
)

// Device represents a fleet device owned by a user.
//
// The Topic field holds the composed telemetry topic
// {user_id}/{device_id}/{name}; it is derived once at creation time and
// never recomputed, so renaming a device does not silently move its
// telemetry stream.
type Device struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Name       string     `json:"name"`
	Kind       Kind       `json:"kind"`
	MACAddress string     `json:"mac_address"`
	Condition  Condition  `json:"condition"`
	Topic      string     `json:"topic"`
	QoS        byte       `json:"qos"`
	Subscriber bool       `json:"subscriber"`
	Scales     []Scale    `json:"scales,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// Scale maps a metric name to its measurement unit for a device.
type Scale struct {
	Metric string `json:"metric"`
	Unit   string `json:"unit"`
}

// Subscription is a (topic pattern, QoS) pair used when connecting to a
// broker and when subscribing at runtime.
type Subscription struct {
	DeviceID string
	Topic    string
	QoS      byte
}
