package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tessera-iot/fleetcore/internal/docstore"
)

// fakeStore keeps latest-value records in memory, keyed like the real
// store: one record per device, one reading per metric.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*docstore.DeviceRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*docstore.DeviceRecord)}
}

func (f *fakeStore) addDevice(deviceID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[deviceID] = &docstore.DeviceRecord{
		ID:       deviceID,
		UserID:   userID,
		Messages: make(map[string]docstore.Reading),
	}
}

func (f *fakeStore) CreateRecord(_ context.Context, deviceID, userID string) error {
	f.addDevice(deviceID, userID)
	return nil
}

func (f *fakeStore) GetRecord(_ context.Context, deviceID string) (*docstore.DeviceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[deviceID]
	if !ok {
		return nil, docstore.ErrRecordNotFound
	}
	return r, nil
}

func (f *fakeStore) GetRecordMeta(ctx context.Context, deviceID string) (*docstore.DeviceRecord, error) {
	return f.GetRecord(ctx, deviceID)
}

func (f *fakeStore) UpsertReading(_ context.Context, deviceID, userID, metric string, r docstore.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[deviceID]
	if !ok || record.UserID != userID {
		return docstore.ErrRecordNotFound
	}
	record.Messages[metric] = r
	record.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeStore) DeleteRecord(_ context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, deviceID)
	return nil
}

func (f *fakeStore) recordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type archived struct {
	deviceID string
	metric   string
	value    float64
}

type fakeArchiver struct {
	mu      sync.Mutex
	entries []archived
}

func (f *fakeArchiver) Archive(deviceID, metric string, value float64, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, archived{deviceID: deviceID, metric: metric, value: value})
}

const (
	testUserID   = "11111111-1111-1111-1111-111111111111"
	testDeviceID = "22222222-2222-2222-2222-222222222222"
	testTopic    = testUserID + "/" + testDeviceID + "/sensor1"
)

func TestIngest_WritesLatestValue(t *testing.T) {
	store := newFakeStore()
	store.addDevice(testDeviceID, testUserID)
	p := New(store, nil, nil)

	p.Ingest(context.Background(), testTopic,
		[]byte(`{"metric":"temp","value":"21.5","scale":"C","timestamp":"2024-01-01T00:00:00Z"}`))

	record, err := store.GetRecord(context.Background(), testDeviceID)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	got, ok := record.Messages["temp"]
	if !ok {
		t.Fatal("no reading stored under temp")
	}
	if got.Value != "21.5" || got.Scale != "C" {
		t.Errorf("reading = %+v, want value 21.5 scale C", got)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !got.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, want)
	}
}

func TestIngest_SecondReadingReplacesFirst(t *testing.T) {
	store := newFakeStore()
	store.addDevice(testDeviceID, testUserID)
	p := New(store, nil, nil)
	ctx := context.Background()

	p.Ingest(ctx, testTopic,
		[]byte(`{"metric":"temp","value":"21.5","scale":"C","timestamp":"2024-01-01T00:00:00Z"}`))
	p.Ingest(ctx, testTopic,
		[]byte(`{"metric":"temp","value":"22.1","scale":"C","timestamp":"2024-01-01T00:01:00Z"}`))

	record, err := store.GetRecord(ctx, testDeviceID)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if len(record.Messages) != 1 {
		t.Fatalf("stored %d metrics, want 1", len(record.Messages))
	}
	if got := record.Messages["temp"].Value; got != "22.1" {
		t.Errorf("value = %q, want the second reading 22.1", got)
	}
}

func TestIngest_UnknownDeviceCreatesNothing(t *testing.T) {
	store := newFakeStore()
	p := New(store, nil, nil)

	p.Ingest(context.Background(), testTopic,
		[]byte(`{"metric":"temp","value":"21.5","scale":"C","timestamp":"2024-01-01T00:00:00Z"}`))

	if n := store.recordCount(); n != 0 {
		t.Errorf("records = %d, want 0 (ingestion never creates devices)", n)
	}
}

func TestIngest_WrongOwnerWritesNothing(t *testing.T) {
	store := newFakeStore()
	store.addDevice(testDeviceID, "33333333-3333-3333-3333-333333333333")
	p := New(store, nil, nil)

	p.Ingest(context.Background(), testTopic,
		[]byte(`{"metric":"temp","value":"21.5","scale":"C","timestamp":"2024-01-01T00:00:00Z"}`))

	record, _ := store.GetRecord(context.Background(), testDeviceID)
	if len(record.Messages) != 0 {
		t.Error("reading stored despite owner mismatch")
	}
}

func TestIngest_DropsUndecodableInput(t *testing.T) {
	store := newFakeStore()
	store.addDevice(testDeviceID, testUserID)
	p := New(store, nil, nil)
	ctx := context.Background()

	good := `{"metric":"temp","value":"21.5","scale":"C","timestamp":"2024-01-01T00:00:00Z"}`

	// Malformed topic: wrong segment count, bad uuid segments.
	p.Ingest(ctx, "too/many/segments/here", []byte(good))
	p.Ingest(ctx, "not-a-uuid/"+testDeviceID+"/sensor1", []byte(good))
	// Malformed envelopes.
	p.Ingest(ctx, testTopic, []byte(`not json`))
	p.Ingest(ctx, testTopic, []byte(`{"metric":"temp","value":"21.5","timestamp":"nope"}`))

	record, _ := store.GetRecord(ctx, testDeviceID)
	if len(record.Messages) != 0 {
		t.Errorf("stored %d readings from undecodable input, want 0", len(record.Messages))
	}
}

func TestIngest_ArchivesNumericReadings(t *testing.T) {
	store := newFakeStore()
	store.addDevice(testDeviceID, testUserID)
	archiver := &fakeArchiver{}
	p := New(store, archiver, nil)
	ctx := context.Background()

	p.Ingest(ctx, testTopic,
		[]byte(`{"metric":"temp","value":"21.5","scale":"C","timestamp":"2024-01-01T00:00:00Z"}`))
	p.Ingest(ctx, testTopic,
		[]byte(`{"metric":"state","value":"open","scale":"","timestamp":"2024-01-01T00:00:00Z"}`))

	archiver.mu.Lock()
	defer archiver.mu.Unlock()
	if len(archiver.entries) != 1 {
		t.Fatalf("archived %d readings, want 1 (non-numeric skipped)", len(archiver.entries))
	}
	got := archiver.entries[0]
	if got.deviceID != testDeviceID || got.metric != "temp" || got.value != 21.5 {
		t.Errorf("archived = %+v, want temp 21.5 for %s", got, testDeviceID)
	}
}
