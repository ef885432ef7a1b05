package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist or is deleted.
	GetByID(ctx context.Context, id string) (*Device, error)

	// GetByMAC retrieves a device by MAC address.
	// Returns ErrDeviceNotFound if no such device exists.
	GetByMAC(ctx context.Context, mac string) (*Device, error)

	// List retrieves all non-deleted devices.
	List(ctx context.Context) ([]Device, error)

	// ListByUser retrieves all non-deleted devices owned by a user.
	ListByUser(ctx context.Context, userID string) ([]Device, error)

	// ListActiveSubscriptions returns the (device, topic, qos) set for all
	// active subscriber devices, ordered by device id. This is the initial
	// subscription set used when a broker session is opened.
	ListActiveSubscriptions(ctx context.Context) ([]Subscription, error)

	// Create inserts a new device together with its metric scales.
	// Returns ErrDeviceExists if the MAC address is already registered.
	Create(ctx context.Context, d *Device) error

	// SoftDelete marks a device as deleted.
	// Returns ErrDeviceNotFound if the device does not exist.
	SoftDelete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, user_id, name, kind, mac_address, condition,
	topic, qos, subscriber, created_at, updated_at, deleted_at`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ? AND deleted_at IS NULL`

	d, err := scanDevice(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}

	if err := r.loadScales(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// GetByMAC retrieves a device by MAC address.
func (r *SQLiteRepository) GetByMAC(ctx context.Context, mac string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE mac_address = ? AND deleted_at IS NULL`

	d, err := scanDevice(r.db.QueryRowContext(ctx, query, mac))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by mac: %w", err)
	}
	return d, nil
}

// List retrieves all non-deleted devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE deleted_at IS NULL ORDER BY created_at`
	return r.queryDevices(ctx, query)
}

// ListByUser retrieves all non-deleted devices owned by a user.
func (r *SQLiteRepository) ListByUser(ctx context.Context, userID string) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices
		WHERE user_id = ? AND deleted_at IS NULL ORDER BY created_at`
	return r.queryDevices(ctx, query, userID)
}

// ListActiveSubscriptions returns the initial subscription set: topic and
// QoS for every active subscriber device that is not deleted.
func (r *SQLiteRepository) ListActiveSubscriptions(ctx context.Context) ([]Subscription, error) {
	query := `
		SELECT id, topic, qos
		FROM devices
		WHERE condition = ? AND subscriber = 1 AND deleted_at IS NULL
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, int(ConditionActive))
	if err != nil {
		return nil, fmt.Errorf("querying active subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var s Subscription
		var qos int
		if err := rows.Scan(&s.DeviceID, &s.Topic, &qos); err != nil {
			return nil, fmt.Errorf("scanning subscription row: %w", err)
		}
		s.QoS = byte(qos)
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscriptions: %w", err)
	}
	return subs, nil
}

// Create inserts a new device together with its metric scales.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	// MAC uniqueness surfaces as a friendlier error than the raw
	// constraint violation.
	if _, err := r.GetByMAC(ctx, d.MACAddress); err == nil {
		return ErrDeviceExists
	} else if !errors.Is(err, ErrDeviceNotFound) {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO devices (id, user_id, name, kind, mac_address, condition,
			topic, qos, subscriber, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.Name, int(d.Kind), d.MACAddress, int(d.Condition),
		d.Topic, int(d.QoS), d.Subscriber,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting device: %w", err)
	}

	for _, s := range d.Scales {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO device_scales (device_id, metric, unit) VALUES (?, ?, ?)`,
			d.ID, s.Metric, s.Unit,
		); err != nil {
			return fmt.Errorf("inserting device scale %q: %w", s.Metric, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing device create: %w", err)
	}
	return nil
}

// SoftDelete marks a device as deleted.
func (r *SQLiteRepository) SoftDelete(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx, `
		UPDATE devices SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// queryDevices runs a multi-row device query.
func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDeviceRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// loadScales populates a device's metric scales.
func (r *SQLiteRepository) loadScales(ctx context.Context, d *Device) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT metric, unit FROM device_scales WHERE device_id = ? ORDER BY metric`,
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("querying device scales: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s Scale
		if err := rows.Scan(&s.Metric, &s.Unit); err != nil {
			return fmt.Errorf("scanning scale row: %w", err)
		}
		d.Scales = append(d.Scales, s)
	}
	return rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a single device row.
func scanDevice(row rowScanner) (*Device, error) {
	return scanDeviceRows(row)
}

func scanDeviceRows(row rowScanner) (*Device, error) {
	var d Device
	var kind, condition, qos int
	var createdAt, updatedAt string
	var deletedAt sql.NullString

	err := row.Scan(&d.ID, &d.UserID, &d.Name, &kind, &d.MACAddress, &condition,
		&d.Topic, &qos, &d.Subscriber, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	d.Kind = Kind(kind)
	d.Condition = Condition(condition)
	d.QoS = byte(qos)
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled
	if deletedAt.Valid {
		t, _ := time.Parse(time.RFC3339, deletedAt.String) //nolint:errcheck // Format is controlled
		d.DeletedAt = &t
	}
	return &d, nil
}
