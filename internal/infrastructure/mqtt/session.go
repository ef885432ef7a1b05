package mqtt

import (
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// EventType discriminates the events a session emits.
type EventType int

const (
	// EventMessage is a message delivered on a subscribed topic.
	EventMessage EventType = iota

	// EventLinkLost signals the broker connection dropped. Emitted exactly
	// once per drop; the session stays down until Reconnect is called.
	EventLinkLost
)

// Event is a single occurrence on a broker session. Topic and Payload are
// set for EventMessage, Err for EventLinkLost.
type Event struct {
	Type    EventType
	Topic   string
	Payload []byte
	Err     error
}

// Subscription pairs a topic filter with its QoS level.
type Subscription struct {
	Topic string
	QoS   byte
}

// Transport is the session surface the connection supervisor depends on.
// The concrete implementation is Session; tests substitute fakes.
type Transport interface {
	// Events returns the session's event stream. Events stop flowing after
	// Disconnect. An implementation that can emit no further events may
	// close the channel; Session itself never does.
	Events() <-chan Event

	// Subscribe adds a topic filter on the live connection.
	Subscribe(topic string, qos byte) error

	// Unsubscribe removes a topic filter from the live connection.
	Unsubscribe(topic string) error

	// SubscribeAll adds a batch of topic filters in one round trip.
	SubscribeAll(subs []Subscription) error

	// Reconnect redials the broker after a link loss.
	Reconnect() error

	// Disconnect tears the session down. Safe to call more than once.
	Disconnect()

	// IsConnected reports the last known link state.
	IsConnected() bool
}

// Session is one broker connection with its event stream.
//
// Thread safety: all methods may be called from multiple goroutines, but
// Reconnect and Disconnect are expected to be driven by a single owner.
type Session struct {
	client pahomqtt.Client

	events chan Event
	done   chan struct{}
	once   sync.Once
}

// eventBuffer bounds the event channel. Message handlers block once the
// buffer fills, which backpressures the broker instead of dropping events.
const eventBuffer = 64

// Dial opens a session to the broker described by settings.
//
// The initial connection must succeed within the connect timeout; there is
// no retry here. Callers that want retry semantics supervise the session
// and redial through Reconnect.
//
// Parameters:
//   - settings: broker address, identity and protocol options
//
// Returns:
//   - *Session: connected session with a live event stream
//   - error: ErrConnectionFailed wrapping the underlying cause
func Dial(settings Settings) (*Session, error) {
	s := &Session{
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}

	opts := buildClientOptions(settings)
	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		s.emit(Event{Type: EventMessage, Topic: msg.Topic(), Payload: msg.Payload()})
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.emit(Event{Type: EventLinkLost, Err: err})
	})

	s.client = pahomqtt.NewClient(opts)

	token := s.client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, opts.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return s, nil
}

// emit delivers an event unless the session has been torn down.
func (s *Session) emit(ev Event) {
	select {
	case <-s.done:
	case s.events <- ev:
	}
}

// Events returns the session's event stream.
func (s *Session) Events() <-chan Event {
	return s.events
}

// IsConnected reports whether the link is currently up.
func (s *Session) IsConnected() bool {
	return s.client.IsConnectionOpen()
}

// Subscribe adds a topic filter on the live connection.
//
// Messages delivered for the filter arrive as EventMessage events; there
// are no per-subscription callbacks.
func (s *Session) Subscribe(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if !s.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := s.client.Subscribe(topic, qos, nil)
	if !token.WaitTimeout(defaultOperationTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultOperationTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// SubscribeAll adds a batch of topic filters in a single SUBSCRIBE packet.
// Used when (re)establishing a connection to restore every registered
// device subscription at once. A failure leaves none of the filters
// reliably active, so callers treat it as fatal for the attempt.
func (s *Session) SubscribeAll(subs []Subscription) error {
	if len(subs) == 0 {
		return nil
	}
	if !s.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	filters := make(map[string]byte, len(subs))
	for _, sub := range subs {
		if sub.Topic == "" {
			return ErrInvalidTopic
		}
		if sub.QoS > maxQoS {
			return ErrInvalidQoS
		}
		filters[sub.Topic] = sub.QoS
	}

	token := s.client.SubscribeMultiple(filters, nil)
	if !token.WaitTimeout(defaultOperationTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultOperationTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// Unsubscribe removes a topic filter from the live connection.
func (s *Session) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !s.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := s.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultOperationTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultOperationTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	return nil
}

// Reconnect redials the broker after a link loss.
//
// Subscriptions are not restored automatically; the caller follows a
// successful Reconnect with SubscribeAll.
func (s *Session) Reconnect() error {
	token := s.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return nil
}

// Disconnect tears the session down and stops event delivery.
func (s *Session) Disconnect() {
	s.once.Do(func() {
		close(s.done)
	})
	if s.client.IsConnectionOpen() {
		s.client.Disconnect(defaultDisconnectQuiesce)
	}
}
