package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Reading is the most recent value reported for a single metric.
type Reading struct {
	Value     string    `bson:"value" json:"value"`
	Scale     string    `bson:"scale" json:"scale"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// DeviceRecord is the per-device document held by the store. The document
// id is the device UUID, so every device owns exactly one record.
type DeviceRecord struct {
	ID        string             `bson:"_id" json:"id"`
	UserID    string             `bson:"user_id" json:"user_id"`
	Messages  map[string]Reading `bson:"messages" json:"messages,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// Store defines the latest-value record operations. The ingestion pipeline
// and the API depend on this interface rather than the MongoDB client.
type Store interface {
	// CreateRecord inserts an empty record for a newly registered device.
	CreateRecord(ctx context.Context, deviceID, userID string) error

	// GetRecord fetches a record including its readings.
	GetRecord(ctx context.Context, deviceID string) (*DeviceRecord, error)

	// GetRecordMeta fetches a record without its readings.
	GetRecordMeta(ctx context.Context, deviceID string) (*DeviceRecord, error)

	// UpsertReading replaces the reading stored under metric. The record
	// must already exist; readings are never written for unknown devices.
	UpsertReading(ctx context.Context, deviceID, userID, metric string, r Reading) error

	// DeleteRecord removes a record and all its readings.
	DeleteRecord(ctx context.Context, deviceID string) error
}

// CreateRecord inserts an empty record for the device.
//
// Returns ErrRecordExists when the device already has a record, which
// keeps device registration idempotent from the caller's point of view.
func (c *Client) CreateRecord(ctx context.Context, deviceID, userID string) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	_, err := c.devices.InsertOne(ctx, DeviceRecord{
		ID:        deviceID,
		UserID:    userID,
		Messages:  map[string]Reading{},
		CreatedAt: now,
		UpdatedAt: now,
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrRecordExists
	}
	if err != nil {
		return fmt.Errorf("inserting device record: %w", err)
	}
	return nil
}

// GetRecord fetches the full record for a device, readings included.
func (c *Client) GetRecord(ctx context.Context, deviceID string) (*DeviceRecord, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	var record DeviceRecord
	err := c.devices.FindOne(ctx, bson.M{"_id": deviceID}).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching device record: %w", err)
	}
	return &record, nil
}

// GetRecordMeta fetches the record with the messages map projected out.
// Useful when only ownership and timestamps are needed, since the messages
// map can dominate the document size on chatty devices.
func (c *Client) GetRecordMeta(ctx context.Context, deviceID string) (*DeviceRecord, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	opts := options.FindOne().SetProjection(bson.M{"messages": 0})

	var record DeviceRecord
	err := c.devices.FindOne(ctx, bson.M{"_id": deviceID}, opts).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching device record: %w", err)
	}
	return &record, nil
}

// UpsertReading replaces the reading stored under metric for the device.
//
// The filter matches both the device and the owning user taken from the
// message topic, so a reading routed to the wrong owner never lands.
// Returns ErrRecordNotFound when no matching record exists.
func (c *Client) UpsertReading(ctx context.Context, deviceID, userID, metric string, r Reading) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	filter := bson.M{"_id": deviceID, "user_id": userID}
	update := bson.M{"$set": bson.M{
		"messages." + metric: r,
		"updated_at":         time.Now().UTC(),
	}}

	result, err := c.devices.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("updating device record: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// DeleteRecord removes the record for a device.
func (c *Client) DeleteRecord(ctx context.Context, deviceID string) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	result, err := c.devices.DeleteOne(ctx, bson.M{"_id": deviceID})
	if err != nil {
		return fmt.Errorf("deleting device record: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrRecordNotFound
	}
	return nil
}
