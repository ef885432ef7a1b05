package broker_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	_ "github.com/tessera-iot/fleetcore/migrations"

	"github.com/tessera-iot/fleetcore/internal/broker"
	"github.com/tessera-iot/fleetcore/internal/infrastructure/database"
)

// openTestRepo opens a migrated temporary database.
func openTestRepo(t *testing.T) *broker.SQLiteRepository {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	return broker.NewSQLiteRepository(db.DB)
}

func newTestBroker() *broker.Broker {
	return &broker.Broker{
		ID:           uuid.NewString(),
		Host:         "broker.example.com",
		Port:         1883,
		ClientID:     "fleetcore-1",
		Version:      4,
		KeepAlive:    60,
		CleanSession: true,
	}
}

func TestBrokerCreateAndGet(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	b := newTestBroker()
	b.LastWill = &broker.LastWill{
		Topic:   "status/fleetcore-1",
		Message: "offline",
		QoS:     1,
		Retain:  true,
	}

	if err := repo.Create(ctx, b); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.GetByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Host != b.Host || got.Port != b.Port || got.ClientID != b.ClientID {
		t.Errorf("broker = %+v, want %+v", got, b)
	}
	if got.Connected {
		t.Error("new broker created connected")
	}
	if got.LastWill == nil {
		t.Fatal("last will not persisted")
	}
	if got.LastWill.Topic != b.LastWill.Topic || !got.LastWill.Retain {
		t.Errorf("last will = %+v, want %+v", got.LastWill, b.LastWill)
	}
}

func TestBrokerCreate_NoLastWill(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	b := newTestBroker()
	if err := repo.Create(ctx, b); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.GetByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.LastWill != nil {
		t.Errorf("last will = %+v, want nil", got.LastWill)
	}
}

func TestBrokerGetByID_NotFound(t *testing.T) {
	repo := openTestRepo(t)

	_, err := repo.GetByID(context.Background(), uuid.NewString())
	if !errors.Is(err, broker.ErrBrokerNotFound) {
		t.Errorf("error = %v, want ErrBrokerNotFound", err)
	}
}

func TestBrokerUpdate_NeverTouchesConnected(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	b := newTestBroker()
	if err := repo.Create(ctx, b); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.SetConnected(ctx, b.ID, true); err != nil {
		t.Fatalf("SetConnected failed: %v", err)
	}

	b.Host = "other.example.com"
	b.Connected = false // administrative writes must not propagate this
	if err := repo.Update(ctx, b); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := repo.GetByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Host != "other.example.com" {
		t.Errorf("host = %q, want updated value", got.Host)
	}
	if !got.Connected {
		t.Error("administrative update cleared the connected flag")
	}
}

func TestBrokerSoftDelete(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	b := newTestBroker()
	if err := repo.Create(ctx, b); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.SoftDelete(ctx, b.ID); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	if _, err := repo.GetByID(ctx, b.ID); !errors.Is(err, broker.ErrBrokerNotFound) {
		t.Errorf("get after delete error = %v, want ErrBrokerNotFound", err)
	}
	if err := repo.SoftDelete(ctx, b.ID); !errors.Is(err, broker.ErrBrokerNotFound) {
		t.Errorf("second delete error = %v, want ErrBrokerNotFound", err)
	}
}

func TestConnectedFlagRoundTrip(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	b := newTestBroker()
	if err := repo.Create(ctx, b); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	connected, err := repo.ConnectedFlag(ctx, b.ID)
	if err != nil {
		t.Fatalf("ConnectedFlag failed: %v", err)
	}
	if connected {
		t.Error("new broker reports connected")
	}

	if err := repo.SetConnected(ctx, b.ID, true); err != nil {
		t.Fatalf("SetConnected failed: %v", err)
	}

	connected, err = repo.ConnectedFlag(ctx, b.ID)
	if err != nil {
		t.Fatalf("ConnectedFlag failed: %v", err)
	}
	if !connected {
		t.Error("connected flag not persisted")
	}

	if _, err := repo.ConnectedFlag(ctx, uuid.NewString()); !errors.Is(err, broker.ErrBrokerNotFound) {
		t.Errorf("unknown broker error = %v, want ErrBrokerNotFound", err)
	}
}

func TestGetConnected_MostRecent(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetConnected(ctx); !errors.Is(err, broker.ErrBrokerNotFound) {
		t.Fatalf("empty store error = %v, want ErrBrokerNotFound", err)
	}

	first := newTestBroker()
	second := newTestBroker()
	for _, b := range []*broker.Broker{first, second} {
		if err := repo.Create(ctx, b); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	if err := repo.SetConnected(ctx, first.ID, true); err != nil {
		t.Fatalf("SetConnected failed: %v", err)
	}
	// RFC-3339 second resolution; make the second write strictly later.
	time.Sleep(1100 * time.Millisecond)
	if err := repo.SetConnected(ctx, second.ID, true); err != nil {
		t.Fatalf("SetConnected failed: %v", err)
	}

	got, err := repo.GetConnected(ctx)
	if err != nil {
		t.Fatalf("GetConnected failed: %v", err)
	}
	if got.ID != second.ID {
		t.Errorf("connected broker = %s, want most recent %s", got.ID, second.ID)
	}
}

func TestBrokerList(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := repo.Create(ctx, newTestBroker()); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	brokers, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(brokers) != 3 {
		t.Errorf("listed %d brokers, want 3", len(brokers))
	}
}
