package docstore

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	appName               = "fleetcore"
	devicesCollectionName = "devices"

	defaultConnectTimeout   = 15 * time.Second
	defaultOperationTimeout = 5 * time.Second
)

// Config contains the document store connection settings.
type Config struct {
	URI              string
	Database         string
	Username         string
	Password         string
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
	MinPoolSize      uint64
	MaxPoolSize      uint64
}

// Client wraps the MongoDB client and the devices collection.
//
// All operations apply the configured operation timeout on top of the
// caller's context, so a stalled server cannot hold up the ingestion
// pipeline indefinitely.
type Client struct {
	client    *mongo.Client
	devices   *mongo.Collection
	opTimeout time.Duration
}

// Connect establishes the MongoDB connection, verifies it with a ping and
// ensures the indexes the record operations rely on.
//
// Parameters:
//   - ctx: controls the connection attempt
//   - cfg: connection settings, credentials optional
//
// Returns:
//   - *Client: ready-to-use document store client
//   - error: connection, ping or index failures
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = defaultOperationTimeout
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(appName).
		SetConnectTimeout(cfg.ConnectTimeout)
	if cfg.MinPoolSize > 0 {
		opts.SetMinPoolSize(cfg.MinPoolSize)
	}
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{
			AuthSource: "admin",
			Username:   url.QueryEscape(cfg.Username),
			Password:   cfg.Password,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to document store: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging document store: %w", err)
	}

	devices := client.Database(cfg.Database).Collection(devicesCollectionName)

	_, err = devices.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetName("devices_user_id"),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("creating document store indexes: %w", err)
	}

	return &Client{
		client:    client,
		devices:   devices,
		opTimeout: cfg.OperationTimeout,
	}, nil
}

// Ping verifies the server is still reachable. Used by the health check.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.client.Ping(ctx, nil)
}

// HealthCheck verifies the document store is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.Ping(ctx); err != nil {
		return fmt.Errorf("docstore: %w", err)
	}
	return nil
}

// Close disconnects from the server.
func (c *Client) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.client.Disconnect(ctx)
}

func (c *Client) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opTimeout)
}
