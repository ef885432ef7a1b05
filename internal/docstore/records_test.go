package docstore_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tessera-iot/fleetcore/internal/docstore"
)

// openTestStore connects to a local MongoDB instance. These tests exercise
// the real driver and are skipped when no server is reachable.
func openTestStore(t *testing.T) *docstore.Client {
	t.Helper()

	uri := os.Getenv("FLEETCORE_TEST_MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := docstore.Connect(ctx, docstore.Config{
		URI:            uri,
		Database:       "fleetcore_test",
		ConnectTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Skipf("document store unavailable: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close(ctx)
	})

	return client
}

func TestCreateAndGetRecord(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	deviceID := uuid.NewString()
	userID := uuid.NewString()

	if err := store.CreateRecord(ctx, deviceID, userID); err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}

	record, err := store.GetRecord(ctx, deviceID)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if record.ID != deviceID {
		t.Errorf("record id = %q, want %q", record.ID, deviceID)
	}
	if record.UserID != userID {
		t.Errorf("record user id = %q, want %q", record.UserID, userID)
	}
	if len(record.Messages) != 0 {
		t.Errorf("new record has %d readings, want 0", len(record.Messages))
	}
}

func TestCreateRecord_Duplicate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	deviceID := uuid.NewString()
	userID := uuid.NewString()

	if err := store.CreateRecord(ctx, deviceID, userID); err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}

	err := store.CreateRecord(ctx, deviceID, userID)
	if !errors.Is(err, docstore.ErrRecordExists) {
		t.Errorf("duplicate create error = %v, want ErrRecordExists", err)
	}
}

func TestUpsertReading_ReplacesPerMetric(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	deviceID := uuid.NewString()
	userID := uuid.NewString()

	if err := store.CreateRecord(ctx, deviceID, userID); err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}

	first := docstore.Reading{Value: "21.5", Scale: "celsius", Timestamp: time.Now().UTC().Truncate(time.Millisecond)}
	second := docstore.Reading{Value: "22.1", Scale: "celsius", Timestamp: first.Timestamp.Add(time.Minute)}

	if err := store.UpsertReading(ctx, deviceID, userID, "temperature", first); err != nil {
		t.Fatalf("first UpsertReading failed: %v", err)
	}
	if err := store.UpsertReading(ctx, deviceID, userID, "temperature", second); err != nil {
		t.Fatalf("second UpsertReading failed: %v", err)
	}
	if err := store.UpsertReading(ctx, deviceID, userID, "humidity", docstore.Reading{Value: "40", Scale: "percent", Timestamp: second.Timestamp}); err != nil {
		t.Fatalf("humidity UpsertReading failed: %v", err)
	}

	record, err := store.GetRecord(ctx, deviceID)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if len(record.Messages) != 2 {
		t.Fatalf("record has %d metrics, want 2", len(record.Messages))
	}
	got := record.Messages["temperature"]
	if got.Value != second.Value {
		t.Errorf("temperature value = %q, want %q", got.Value, second.Value)
	}
	if !got.Timestamp.Equal(second.Timestamp) {
		t.Errorf("temperature timestamp = %v, want %v", got.Timestamp, second.Timestamp)
	}
}

func TestUpsertReading_UnknownDevice(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.UpsertReading(ctx, uuid.NewString(), uuid.NewString(), "temperature",
		docstore.Reading{Value: "1", Scale: "celsius", Timestamp: time.Now().UTC()})
	if !errors.Is(err, docstore.ErrRecordNotFound) {
		t.Errorf("unknown device error = %v, want ErrRecordNotFound", err)
	}
}

func TestUpsertReading_WrongOwner(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	deviceID := uuid.NewString()

	if err := store.CreateRecord(ctx, deviceID, uuid.NewString()); err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}

	err := store.UpsertReading(ctx, deviceID, uuid.NewString(), "temperature",
		docstore.Reading{Value: "1", Scale: "celsius", Timestamp: time.Now().UTC()})
	if !errors.Is(err, docstore.ErrRecordNotFound) {
		t.Errorf("wrong owner error = %v, want ErrRecordNotFound", err)
	}
}

func TestGetRecordMeta_ExcludesReadings(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	deviceID := uuid.NewString()
	userID := uuid.NewString()

	if err := store.CreateRecord(ctx, deviceID, userID); err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}
	if err := store.UpsertReading(ctx, deviceID, userID, "temperature",
		docstore.Reading{Value: "21.5", Scale: "celsius", Timestamp: time.Now().UTC()}); err != nil {
		t.Fatalf("UpsertReading failed: %v", err)
	}

	record, err := store.GetRecordMeta(ctx, deviceID)
	if err != nil {
		t.Fatalf("GetRecordMeta failed: %v", err)
	}
	if len(record.Messages) != 0 {
		t.Errorf("meta record has %d readings, want none", len(record.Messages))
	}
	if record.UserID != userID {
		t.Errorf("meta record user id = %q, want %q", record.UserID, userID)
	}
}

func TestDeleteRecord(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	deviceID := uuid.NewString()

	if err := store.CreateRecord(ctx, deviceID, uuid.NewString()); err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}
	if err := store.DeleteRecord(ctx, deviceID); err != nil {
		t.Fatalf("DeleteRecord failed: %v", err)
	}

	if _, err := store.GetRecord(ctx, deviceID); !errors.Is(err, docstore.ErrRecordNotFound) {
		t.Errorf("get after delete error = %v, want ErrRecordNotFound", err)
	}

	if err := store.DeleteRecord(ctx, deviceID); !errors.Is(err, docstore.ErrRecordNotFound) {
		t.Errorf("second delete error = %v, want ErrRecordNotFound", err)
	}
}
