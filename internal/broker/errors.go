package broker

import "errors"

// Domain-specific errors for broker operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrBrokerNotFound is returned when a broker does not exist or is deleted.
	ErrBrokerNotFound = errors.New("broker: broker not found")

	// ErrConnect is returned when opening a session fails, either at the
	// transport dial or during the initial subscription batch.
	ErrConnect = errors.New("broker: connection failed")

	// ErrAlreadyRegistered is returned when a session handle already exists
	// for the broker. Exactly one concurrent connect attempt can win.
	ErrAlreadyRegistered = errors.New("broker: session already registered")

	// ErrNoSession is returned when an operation needs a live session and
	// the registry holds none for the broker.
	ErrNoSession = errors.New("broker: no live session for broker")

	// ErrCommandQueueFull is returned when a session's command queue cannot
	// accept another command without blocking.
	ErrCommandQueueFull = errors.New("broker: command queue full")
)
