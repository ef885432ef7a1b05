package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tessera-iot/fleetcore/internal/device"
	"github.com/tessera-iot/fleetcore/internal/infrastructure/mqtt"
)

const (
	// reconnectDelay is the fixed pause between reconnect attempts.
	// Reconnection retries forever; a broker is expected to come back.
	reconnectDelay = time.Second

	// stateSyncTimeout bounds connected-flag writes issued from the
	// supervising loop, whose own context may already be cancelled.
	stateSyncTimeout = 5 * time.Second
)

// MessageSink receives inbound broker messages for ingestion. The sink
// must tolerate any payload; a failed ingest never reaches the loop.
type MessageSink interface {
	Ingest(ctx context.Context, topic string, payload []byte)
}

// DeviceSource supplies the subscription set for session establishment.
type DeviceSource interface {
	ListActiveSubscriptions(ctx context.Context) ([]device.Subscription, error)
}

// DialFunc opens a transport session. Tests substitute fakes.
type DialFunc func(mqtt.Settings) (mqtt.Transport, error)

// Orchestrator opens broker sessions and supervises them.
//
// Each session runs one supervising goroutine that multiplexes three event
// sources: the command queue, cancellation, and the transport's event
// stream. Link loss moves the session into a reconnect loop; cancellation
// is the only externally-triggered way to end it.
type Orchestrator struct {
	brokers  Repository
	devices  DeviceSource
	registry *Registry
	sync     *Synchronizer
	sink     MessageSink
	dial     DialFunc
	log      Logger

	wg sync.WaitGroup
}

// OrchestratorDeps carries the orchestrator's collaborators.
type OrchestratorDeps struct {
	Brokers  Repository
	Devices  DeviceSource
	Registry *Registry
	Sync     *Synchronizer
	Sink     MessageSink

	// Dial is optional and defaults to the paho session dialer.
	Dial DialFunc

	// Logger is optional; nil disables logging.
	Logger Logger
}

// NewOrchestrator creates an orchestrator from its dependencies.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	dial := deps.Dial
	if dial == nil {
		dial = func(settings mqtt.Settings) (mqtt.Transport, error) {
			return mqtt.Dial(settings)
		}
	}
	log := deps.Logger
	if log == nil {
		log = noopLogger{}
	}
	return &Orchestrator{
		brokers:  deps.Brokers,
		devices:  deps.Devices,
		registry: deps.Registry,
		sync:     deps.Sync,
		sink:     deps.Sink,
		dial:     dial,
		log:      log,
	}
}

// Connect opens a session to the broker and starts its supervising loop.
//
// The sequence is dial, initial subscription batch, register, spawn: a
// failure before registration surfaces as ErrConnect and leaves no trace
// in the registry. Connect returns once the handle is registered; it does
// not wait on the loop. The caller persists connected=true afterwards.
//
// Returns ErrBrokerNotFound for an unknown broker and ErrAlreadyRegistered
// when a session already exists; when concurrent calls race for the same
// broker, exactly one wins registration.
func (o *Orchestrator) Connect(ctx context.Context, brokerID string) error {
	b, err := o.brokers.GetByID(ctx, brokerID)
	if err != nil {
		return err
	}

	// Fast path before paying for a dial. The registry insert below is
	// what actually arbitrates races.
	if _, err := o.registry.Get(b.ID); err == nil {
		return ErrAlreadyRegistered
	}

	transport, err := o.dial(b.sessionSettings())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}

	subs, err := o.subscriptionBatch(ctx)
	if err != nil {
		transport.Disconnect()
		return fmt.Errorf("%w: listing subscriptions: %w", ErrConnect, err)
	}
	if err := transport.SubscribeAll(subs); err != nil {
		transport.Disconnect()
		return fmt.Errorf("%w: initial subscription batch: %w", ErrConnect, err)
	}

	// The session outlives the API request that started it, so its
	// lifetime hangs off a fresh context, not the caller's.
	sessionCtx, cancel := context.WithCancel(context.Background())

	h := newHandle(b.ID, transport, cancel)
	if err := o.registry.Insert(b.ID, h); err != nil {
		cancel()
		transport.Disconnect()
		return err
	}

	o.wg.Add(1)
	go o.supervise(sessionCtx, h)

	o.log.Info("broker session established",
		"broker_id", b.ID,
		"host", b.Host,
		"subscriptions", len(subs),
	)
	return nil
}

// Disconnect cancels a broker's session.
//
// Returns ErrNoSession when the registry holds no handle; in that case
// nothing is written anywhere. The supervising loop performs the actual
// teardown, including the connected=false write and registry removal.
func (o *Orchestrator) Disconnect(brokerID string) error {
	h, err := o.registry.Get(brokerID)
	if err != nil {
		return err
	}
	h.Cancel()
	return nil
}

// Enqueue submits a runtime command to a broker's session.
// Returns ErrNoSession when the broker has no live session.
func (o *Orchestrator) Enqueue(brokerID string, cmd Command) error {
	h, err := o.registry.Get(brokerID)
	if err != nil {
		return err
	}
	return h.Enqueue(cmd)
}

// Shutdown cancels every live session and waits for the supervising loops
// to exit, bounded by ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	for _, id := range o.registry.IDs() {
		if h, err := o.registry.Get(id); err == nil {
			h.Cancel()
		}
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for broker sessions: %w", ctx.Err())
	}
}

// supervise runs one session's state machine until cancellation or stream
// closure. It owns the handle's transport exclusively.
func (o *Orchestrator) supervise(ctx context.Context, h *Handle) {
	defer o.wg.Done()
	defer func() {
		o.registry.Remove(h.BrokerID)
		o.log.Info("broker session terminated", "broker_id", h.BrokerID)
	}()

	for {
		select {
		case <-ctx.Done():
			h.transport.Disconnect()
			o.persistConnected(h.BrokerID, false, false)
			return

		case cmd := <-h.commands:
			if err := cmd.apply(h.transport); err != nil {
				o.log.Warn("session command failed",
					"broker_id", h.BrokerID,
					"command", cmd.Describe(),
					"error", err,
				)
			} else {
				o.log.Debug("session command applied",
					"broker_id", h.BrokerID,
					"command", cmd.Describe(),
				)
			}

		case ev, ok := <-h.transport.Events():
			if !ok {
				// No further events can arrive on this transport.
				o.persistConnected(h.BrokerID, false, true)
				return
			}
			switch ev.Type {
			case mqtt.EventMessage:
				// Detached hand-off: a slow document write must never
				// delay the next inbound event.
				go o.sink.Ingest(ctx, ev.Topic, ev.Payload)

			case mqtt.EventLinkLost:
				o.log.Warn("broker link lost",
					"broker_id", h.BrokerID,
					"error", ev.Err,
				)
				o.persistConnected(h.BrokerID, false, true)
				if !o.reconnect(ctx, h) {
					h.transport.Disconnect()
					o.persistConnected(h.BrokerID, false, false)
					return
				}
			}
		}
	}
}

// reconnect retries the transport until it comes back or the session is
// cancelled. There is no attempt cap; cancellation is re-checked between
// attempts. Returns false when cancelled.
func (o *Orchestrator) reconnect(ctx context.Context, h *Handle) bool {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		attempt++
		if err := h.transport.Reconnect(); err != nil {
			o.log.Warn("reconnect attempt failed",
				"broker_id", h.BrokerID,
				"attempt", attempt,
				"error", err,
			)
			time.Sleep(reconnectDelay)
			continue
		}

		o.log.Info("broker link restored",
			"broker_id", h.BrokerID,
			"attempt", attempt,
		)
		o.persistConnected(h.BrokerID, true, true)
		o.restoreSubscriptions(h)
		return true
	}
}

// restoreSubscriptions re-issues the full subscription batch after a
// reconnect. A fresh fetch picks up devices registered while the link was
// down. Failures are logged and non-fatal; the session stays up.
func (o *Orchestrator) restoreSubscriptions(h *Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), stateSyncTimeout)
	defer cancel()

	subs, err := o.subscriptionBatch(ctx)
	if err != nil {
		o.log.Error("listing subscriptions after reconnect failed",
			"broker_id", h.BrokerID,
			"error", err,
		)
		return
	}
	if err := h.transport.SubscribeAll(subs); err != nil {
		o.log.Error("resubscription after reconnect failed",
			"broker_id", h.BrokerID,
			"error", err,
		)
	}
}

// subscriptionBatch derives the transport subscription set from the
// active subscriber devices.
func (o *Orchestrator) subscriptionBatch(ctx context.Context) ([]mqtt.Subscription, error) {
	deviceSubs, err := o.devices.ListActiveSubscriptions(ctx)
	if err != nil {
		return nil, err
	}

	subs := make([]mqtt.Subscription, 0, len(deviceSubs))
	for _, s := range deviceSubs {
		subs = append(subs, mqtt.Subscription{Topic: s.Topic, QoS: s.QoS})
	}
	return subs, nil
}

// persistConnected writes the connected flag from inside the supervising
// loop. The loop's own context may be cancelled by the time this runs, so
// the write gets a fresh bounded context. Failures are logged; a broker
// row deleted mid-session is not a reason to crash the loop.
func (o *Orchestrator) persistConnected(brokerID string, connected, verifyCurrent bool) {
	ctx, cancel := context.WithTimeout(context.Background(), stateSyncTimeout)
	defer cancel()

	if err := o.sync.SetConnected(ctx, brokerID, connected, verifyCurrent); err != nil {
		o.log.Error("persisting connected flag failed",
			"broker_id", brokerID,
			"connected", connected,
			"error", err,
		)
	}
}
