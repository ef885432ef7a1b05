package device

import "errors"

// Domain-specific errors for device operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDeviceNotFound is returned when a device does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose MAC address
	// is already registered.
	ErrDeviceExists = errors.New("device: already registered")

	// ErrInvalidTopic is returned when a topic string cannot be decoded
	// into {user_id}/{device_id}/{name}.
	ErrInvalidTopic = errors.New("device: invalid topic")
)
