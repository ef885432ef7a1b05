package device_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	_ "github.com/tessera-iot/fleetcore/migrations"

	"github.com/tessera-iot/fleetcore/internal/device"
	"github.com/tessera-iot/fleetcore/internal/infrastructure/database"
)

// openTestRepo opens a migrated temporary database with one seeded user,
// and returns the repository plus that user's id.
func openTestRepo(t *testing.T) (*device.SQLiteRepository, string) {
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

	userID := uuid.NewString()
	_, err = db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash) VALUES (?, ?, ?)`,
		userID, userID+"@example.com", "x",
	)
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}

	return device.NewSQLiteRepository(db.DB), userID
}

// newTestDevice builds a subscriber device owned by userID.
func newTestDevice(userID string) *device.Device {
	id := uuid.NewString()
	return &device.Device{
		ID:         id,
		UserID:     userID,
		Name:       "sensor1",
		Kind:       device.KindSensor,
		MACAddress: "AA:BB:CC:" + id[:8],
		Condition:  device.ConditionActive,
		Topic:      device.ComposeTopic(userID, id, "sensor1"),
		QoS:        1,
		Subscriber: true,
		Scales: []device.Scale{
			{Metric: "temp", Unit: "C"},
		},
	}
}

func TestCreateAndGet(t *testing.T) {
	repo, userID := openTestRepo(t)
	ctx := context.Background()

	d := newTestDevice(userID)
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Topic != d.Topic {
		t.Errorf("Topic = %q, want %q", got.Topic, d.Topic)
	}
	if !got.Subscriber {
		t.Error("Subscriber = false, want true")
	}
	if len(got.Scales) != 1 || got.Scales[0].Metric != "temp" {
		t.Errorf("Scales = %+v, want one temp scale", got.Scales)
	}
}

func TestCreate_DuplicateMAC(t *testing.T) {
	repo, userID := openTestRepo(t)
	ctx := context.Background()

	d := newTestDevice(userID)
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	dup := newTestDevice(userID)
	dup.MACAddress = d.MACAddress
	err := repo.Create(ctx, dup)
	if !errors.Is(err, device.ErrDeviceExists) {
		t.Errorf("Create() error = %v, want ErrDeviceExists", err)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, _ := openTestRepo(t)

	_, err := repo.GetByID(context.Background(), uuid.NewString())
	if !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("GetByID() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSoftDelete(t *testing.T) {
	repo, userID := openTestRepo(t)
	ctx := context.Background()

	d := newTestDevice(userID)
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.SoftDelete(ctx, d.ID); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}

	if _, err := repo.GetByID(ctx, d.ID); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrDeviceNotFound", err)
	}

	if err := repo.SoftDelete(ctx, d.ID); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("second SoftDelete() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestListActiveSubscriptions(t *testing.T) {
	repo, userID := openTestRepo(t)
	ctx := context.Background()

	// Active subscriber: included.
	sub := newTestDevice(userID)
	if err := repo.Create(ctx, sub); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Non-subscriber: excluded.
	pub := newTestDevice(userID)
	pub.Subscriber = false
	pub.Kind = device.KindActuator
	if err := repo.Create(ctx, pub); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Suspended subscriber: excluded.
	susp := newTestDevice(userID)
	susp.Condition = device.ConditionSuspended
	if err := repo.Create(ctx, susp); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	subs, err := repo.ListActiveSubscriptions(ctx)
	if err != nil {
		t.Fatalf("ListActiveSubscriptions() error = %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("got %d subscriptions, want 1", len(subs))
	}
	if subs[0].DeviceID != sub.ID || subs[0].Topic != sub.Topic || subs[0].QoS != sub.QoS {
		t.Errorf("subscription = %+v, want device %s topic %s", subs[0], sub.ID, sub.Topic)
	}
}

func TestListByUser(t *testing.T) {
	repo, userID := openTestRepo(t)
	ctx := context.Background()

	d := newTestDevice(userID)
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	devices, err := repo.ListByUser(ctx, userID)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("got %d devices, want 1", len(devices))
	}

	none, err := repo.ListByUser(ctx, uuid.NewString())
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("got %d devices for unknown user, want 0", len(none))
	}
}
