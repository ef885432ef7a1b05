package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeBrokerRepo is an in-memory Repository recording connected-flag
// writes. Only the methods the synchronizer and orchestrator touch carry
// real behavior.
type fakeBrokerRepo struct {
	mu      sync.Mutex
	brokers map[string]*Broker
	writes  []flagWrite
}

type flagWrite struct {
	brokerID  string
	connected bool
}

func newFakeBrokerRepo(brokers ...*Broker) *fakeBrokerRepo {
	r := &fakeBrokerRepo{brokers: make(map[string]*Broker)}
	for _, b := range brokers {
		r.brokers[b.ID] = b
	}
	return r
}

func (r *fakeBrokerRepo) GetByID(_ context.Context, id string) (*Broker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.brokers[id]
	if !ok {
		return nil, ErrBrokerNotFound
	}
	copied := *b
	return &copied, nil
}

func (r *fakeBrokerRepo) GetConnected(context.Context) (*Broker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.brokers {
		if b.Connected {
			copied := *b
			return &copied, nil
		}
	}
	return nil, ErrBrokerNotFound
}

func (r *fakeBrokerRepo) List(context.Context) ([]Broker, error) { return nil, nil }

func (r *fakeBrokerRepo) Create(_ context.Context, b *Broker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.brokers[b.ID] = b
	return nil
}

func (r *fakeBrokerRepo) Update(context.Context, *Broker) error { return nil }

func (r *fakeBrokerRepo) SoftDelete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.brokers, id)
	return nil
}

func (r *fakeBrokerRepo) ConnectedFlag(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.brokers[id]
	if !ok {
		return false, ErrBrokerNotFound
	}
	return b.Connected, nil
}

func (r *fakeBrokerRepo) SetConnected(_ context.Context, id string, connected bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.brokers[id]
	if !ok {
		return ErrBrokerNotFound
	}
	b.Connected = connected
	r.writes = append(r.writes, flagWrite{brokerID: id, connected: connected})
	return nil
}

func (r *fakeBrokerRepo) writeLog() []flagWrite {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]flagWrite(nil), r.writes...)
}

func TestSetConnected_VerifySkipsIdenticalWrite(t *testing.T) {
	repo := newFakeBrokerRepo(&Broker{ID: "b1"})
	sync := NewSynchronizer(repo, nil)
	ctx := context.Background()

	if err := sync.SetConnected(ctx, "b1", true, true); err != nil {
		t.Fatalf("first SetConnected failed: %v", err)
	}
	if err := sync.SetConnected(ctx, "b1", true, true); err != nil {
		t.Fatalf("second SetConnected failed: %v", err)
	}

	if writes := repo.writeLog(); len(writes) != 1 {
		t.Errorf("writes = %d, want exactly 1", len(writes))
	}
}

func TestSetConnected_UnconditionalAlwaysWrites(t *testing.T) {
	repo := newFakeBrokerRepo(&Broker{ID: "b1"})
	sync := NewSynchronizer(repo, nil)
	ctx := context.Background()

	if err := sync.SetConnected(ctx, "b1", false, false); err != nil {
		t.Fatalf("first SetConnected failed: %v", err)
	}
	if err := sync.SetConnected(ctx, "b1", false, false); err != nil {
		t.Fatalf("second SetConnected failed: %v", err)
	}

	if writes := repo.writeLog(); len(writes) != 2 {
		t.Errorf("writes = %d, want 2", len(writes))
	}
}

func TestSetConnected_UnknownBroker(t *testing.T) {
	repo := newFakeBrokerRepo()
	sync := NewSynchronizer(repo, nil)

	err := sync.SetConnected(context.Background(), "absent", true, true)
	if !errors.Is(err, ErrBrokerNotFound) {
		t.Errorf("error = %v, want ErrBrokerNotFound", err)
	}
	if writes := repo.writeLog(); len(writes) != 0 {
		t.Errorf("writes = %d, want none", len(writes))
	}
}
