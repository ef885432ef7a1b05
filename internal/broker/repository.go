package broker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for broker persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a broker by its unique identifier.
	// Returns ErrBrokerNotFound if the broker does not exist or is deleted.
	GetByID(ctx context.Context, id string) (*Broker, error)

	// GetConnected retrieves the most recently connected broker.
	// Returns ErrBrokerNotFound when no broker is connected.
	GetConnected(ctx context.Context) (*Broker, error)

	// List retrieves all non-deleted brokers.
	List(ctx context.Context) ([]Broker, error)

	// Create inserts a new broker with connected=false.
	Create(ctx context.Context, b *Broker) error

	// Update rewrites a broker's administrative fields. The connected flag
	// is never written here.
	Update(ctx context.Context, b *Broker) error

	// SoftDelete marks a broker as deleted.
	// Returns ErrBrokerNotFound if the broker does not exist.
	SoftDelete(ctx context.Context, id string) error

	// ConnectedFlag reads the stored connected flag.
	// Returns ErrBrokerNotFound if the broker does not exist.
	ConnectedFlag(ctx context.Context, id string) (bool, error)

	// SetConnected writes the connected flag. Callers should go through the
	// Synchronizer, which adds the verify-before-write behavior.
	SetConnected(ctx context.Context, id string, connected bool) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const brokerColumns = `id, host, port, client_id, version, keep_alive, clean_session,
	last_will_topic, last_will_message, last_will_qos, last_will_retain,
	connected, created_at, updated_at, deleted_at`

// GetByID retrieves a broker by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Broker, error) {
	query := `SELECT ` + brokerColumns + ` FROM brokers WHERE id = ? AND deleted_at IS NULL`

	b, err := scanBroker(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBrokerNotFound
		}
		return nil, fmt.Errorf("querying broker by id: %w", err)
	}
	return b, nil
}

// GetConnected retrieves the most recently connected broker. The state
// synchronizer bumps updated_at on every flag write, so ordering on it
// yields the latest connection.
func (r *SQLiteRepository) GetConnected(ctx context.Context) (*Broker, error) {
	query := `SELECT ` + brokerColumns + ` FROM brokers
		WHERE connected = 1 AND deleted_at IS NULL
		ORDER BY updated_at DESC LIMIT 1`

	b, err := scanBroker(r.db.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBrokerNotFound
		}
		return nil, fmt.Errorf("querying connected broker: %w", err)
	}
	return b, nil
}

// List retrieves all non-deleted brokers.
func (r *SQLiteRepository) List(ctx context.Context) ([]Broker, error) {
	query := `SELECT ` + brokerColumns + ` FROM brokers WHERE deleted_at IS NULL ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying brokers: %w", err)
	}
	defer rows.Close()

	var brokers []Broker
	for rows.Next() {
		b, err := scanBroker(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning broker row: %w", err)
		}
		brokers = append(brokers, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating brokers: %w", err)
	}
	return brokers, nil
}

// Create inserts a new broker. New brokers always start disconnected.
func (r *SQLiteRepository) Create(ctx context.Context, b *Broker) error {
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Connected = false

	willTopic, willMessage, willQoS, willRetain := willColumns(b.LastWill)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO brokers (id, host, port, client_id, version, keep_alive,
			clean_session, last_will_topic, last_will_message, last_will_qos,
			last_will_retain, connected, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		b.ID, b.Host, b.Port, b.ClientID, b.Version, b.KeepAlive,
		b.CleanSession, willTopic, willMessage, willQoS, willRetain,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting broker: %w", err)
	}
	return nil
}

// Update rewrites a broker's administrative fields. The connected column
// is deliberately absent from the statement.
func (r *SQLiteRepository) Update(ctx context.Context, b *Broker) error {
	now := time.Now().UTC()
	willTopic, willMessage, willQoS, willRetain := willColumns(b.LastWill)

	result, err := r.db.ExecContext(ctx, `
		UPDATE brokers SET host = ?, port = ?, client_id = ?, version = ?,
			keep_alive = ?, clean_session = ?, last_will_topic = ?,
			last_will_message = ?, last_will_qos = ?, last_will_retain = ?,
			updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		b.Host, b.Port, b.ClientID, b.Version, b.KeepAlive, b.CleanSession,
		willTopic, willMessage, willQoS, willRetain,
		now.Format(time.RFC3339), b.ID,
	)
	if err != nil {
		return fmt.Errorf("updating broker: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrBrokerNotFound
	}
	b.UpdatedAt = now
	return nil
}

// SoftDelete marks a broker as deleted.
func (r *SQLiteRepository) SoftDelete(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx, `
		UPDATE brokers SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("deleting broker: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrBrokerNotFound
	}
	return nil
}

// ConnectedFlag reads the stored connected flag.
func (r *SQLiteRepository) ConnectedFlag(ctx context.Context, id string) (bool, error) {
	var connected bool
	err := r.db.QueryRowContext(ctx,
		`SELECT connected FROM brokers WHERE id = ? AND deleted_at IS NULL`, id,
	).Scan(&connected)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrBrokerNotFound
	}
	if err != nil {
		return false, fmt.Errorf("querying connected flag: %w", err)
	}
	return connected, nil
}

// SetConnected writes the connected flag.
func (r *SQLiteRepository) SetConnected(ctx context.Context, id string, connected bool) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx, `
		UPDATE brokers SET connected = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		connected, now, id,
	)
	if err != nil {
		return fmt.Errorf("writing connected flag: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking connected write result: %w", err)
	}
	if affected == 0 {
		return ErrBrokerNotFound
	}
	return nil
}

// willColumns flattens an optional last will into its nullable columns.
func willColumns(w *LastWill) (topic, message sql.NullString, qos, retain sql.NullInt64) {
	if w == nil {
		return
	}
	topic = sql.NullString{String: w.Topic, Valid: true}
	message = sql.NullString{String: w.Message, Valid: true}
	qos = sql.NullInt64{Int64: int64(w.QoS), Valid: true}
	retainValue := int64(0)
	if w.Retain {
		retainValue = 1
	}
	retain = sql.NullInt64{Int64: retainValue, Valid: true}
	return
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBroker(row rowScanner) (*Broker, error) {
	var b Broker
	var version, keepAlive int
	var willTopic, willMessage sql.NullString
	var willQoS, willRetain sql.NullInt64
	var createdAt, updatedAt string
	var deletedAt sql.NullString

	err := row.Scan(&b.ID, &b.Host, &b.Port, &b.ClientID, &version, &keepAlive,
		&b.CleanSession, &willTopic, &willMessage, &willQoS, &willRetain,
		&b.Connected, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	b.Version = uint(version)
	b.KeepAlive = keepAlive
	if willTopic.Valid {
		b.LastWill = &LastWill{
			Topic:   willTopic.String,
			Message: willMessage.String,
			QoS:     byte(willQoS.Int64),
			Retain:  willRetain.Int64 != 0,
		}
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
	b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled
	if deletedAt.Valid {
		t, _ := time.Parse(time.RFC3339, deletedAt.String) //nolint:errcheck // Format is controlled
		b.DeletedAt = &t
	}
	return &b, nil
}
