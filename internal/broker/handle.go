package broker

import (
	"context"

	"github.com/tessera-iot/fleetcore/internal/infrastructure/mqtt"
)

// commandQueueSize bounds each session's command queue. Commands beyond
// the bound are rejected rather than blocking the API caller.
const commandQueueSize = 16

// Command is a runtime instruction applied on a session's transport by the
// supervising loop. Commands are processed in submission order relative to
// each other, interleaved with inbound events.
type Command interface {
	apply(t mqtt.Transport) error

	// Describe returns a short form for logs.
	Describe() string
}

// SubscribeCommand adds a topic filter on the session.
type SubscribeCommand struct {
	Topic string
	QoS   byte
}

func (c SubscribeCommand) apply(t mqtt.Transport) error {
	return t.Subscribe(c.Topic, c.QoS)
}

// Describe returns a short form for logs.
func (c SubscribeCommand) Describe() string {
	return "subscribe " + c.Topic
}

// UnsubscribeCommand removes a topic filter from the session.
type UnsubscribeCommand struct {
	Topic string
}

func (c UnsubscribeCommand) apply(t mqtt.Transport) error {
	return t.Unsubscribe(c.Topic)
}

// Describe returns a short form for logs.
func (c UnsubscribeCommand) Describe() string {
	return "unsubscribe " + c.Topic
}

// Handle ties one broker identity to its live transport, its cancellation
// signal and its command queue. Handles are created by the orchestrator
// when a connection opens and destroyed when the supervising loop exits.
type Handle struct {
	BrokerID string

	transport mqtt.Transport
	cancel    context.CancelFunc
	commands  chan Command
}

func newHandle(brokerID string, transport mqtt.Transport, cancel context.CancelFunc) *Handle {
	return &Handle{
		BrokerID:  brokerID,
		transport: transport,
		cancel:    cancel,
		commands:  make(chan Command, commandQueueSize),
	}
}

// Enqueue submits a command for the supervising loop to apply.
//
// The send never blocks: a full queue returns ErrCommandQueueFull.
// Commands queued against a session whose loop has exited are dropped
// silently.
func (h *Handle) Enqueue(cmd Command) error {
	select {
	case h.commands <- cmd:
		return nil
	default:
		return ErrCommandQueueFull
	}
}

// Cancel signals the supervising loop to shut the session down. The loop
// observes the signal at its next multiplexing point.
func (h *Handle) Cancel() {
	h.cancel()
}
