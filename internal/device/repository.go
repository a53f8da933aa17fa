package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the device persistence operations used by the gateway
// and the HTTP facade.
type Repository interface {
	// UpsertDevice creates or updates the device record for id.
	UpsertDevice(ctx context.Context, id string, f Fields) error

	// MarkInactive clears the active flag and stamps last_heartbeat.
	MarkInactive(ctx context.Context, id string, ts time.Time) error

	// DeviceIDByMAC returns the id already stored for a MAC.
	// Returns ErrDeviceNotFound when the MAC has never been seen.
	DeviceIDByMAC(ctx context.Context, mac string) (string, error)

	// GetByID retrieves a stored device.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List returns all stored devices, most recently connected first.
	List(ctx context.Context) ([]Device, error)

	// Update applies operator edits to a stored device.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, id string, u Update) (*Device, error)

	AppendSensorReading(ctx context.Context, id, sensor string, value any, ts time.Time) error
	ListSensorReadings(ctx context.Context, filter SensorFilter) ([]SensorReading, error)
	SensorStats(ctx context.Context, filter SensorFilter) ([]SensorStats, error)

	AppendLedConfig(ctx context.Context, id string, params map[string]any, ts time.Time) error
	ListLedConfigs(ctx context.Context, filter LedFilter) ([]LedConfig, error)
	LatestLedConfig(ctx context.Context, deviceID string) (*LedConfig, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// UpsertDevice creates or updates the device record for id.
//
// Empty string fields, a nil Status and a nil Uptime keep the stored value.
// The record is always marked active, since only a live session writes
// through this path. A non-zero ConnectedAt counts as a new connection.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - id: Gateway-assigned device identifier
//   - f: Fields to write
//
// Returns:
//   - error: ErrInvalidDevice for an empty id, otherwise the database error
func (r *SQLiteRepository) UpsertDevice(ctx context.Context, id string, f Fields) error {
	if id == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidDevice)
	}

	now := formatTime(r.now())

	var statusJSON any
	if f.Status != nil {
		b, err := json.Marshal(f.Status)
		if err != nil {
			return fmt.Errorf("marshalling status: %w", err)
		}
		statusJSON = string(b)
	}

	var uptime any
	if f.Uptime != nil {
		uptime = *f.Uptime
	}

	var connectedAt, lastHeartbeat any
	newConnection := 0
	if !f.ConnectedAt.IsZero() {
		connectedAt = formatTime(f.ConnectedAt)
		newConnection = 1
	}
	if !f.LastHeartbeat.IsZero() {
		lastHeartbeat = formatTime(f.LastHeartbeat)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (
			id, mac, device_type, firmware_version, device_ip, remote_addr,
			status, uptime, is_active, connection_count,
			first_seen, connected_at, last_heartbeat, updated_at
		) VALUES (?, ?, COALESCE(?, 'unknown'), ?, ?, ?, ?, COALESCE(?, 0), 1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mac              = COALESCE(excluded.mac, devices.mac),
			device_type      = CASE WHEN ? IS NULL THEN devices.device_type ELSE excluded.device_type END,
			firmware_version = COALESCE(excluded.firmware_version, devices.firmware_version),
			device_ip        = COALESCE(excluded.device_ip, devices.device_ip),
			remote_addr      = COALESCE(excluded.remote_addr, devices.remote_addr),
			status           = COALESCE(excluded.status, devices.status),
			uptime           = CASE WHEN ? IS NULL THEN devices.uptime ELSE excluded.uptime END,
			is_active        = 1,
			connection_count = devices.connection_count + excluded.connection_count,
			connected_at     = COALESCE(excluded.connected_at, devices.connected_at),
			last_heartbeat   = COALESCE(excluded.last_heartbeat, devices.last_heartbeat),
			updated_at       = excluded.updated_at`,
		id,
		nullableString(f.MAC),
		nullableString(f.DeviceType),
		nullableString(f.Firmware),
		nullableString(f.DeviceIP),
		nullableString(f.RemoteAddr),
		statusJSON,
		uptime,
		newConnection,
		now,
		connectedAt,
		lastHeartbeat,
		now,
		nullableString(f.DeviceType),
		uptime,
	)
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", id, err)
	}

	return nil
}

// MarkInactive clears the active flag and stamps last_heartbeat with ts.
// A missing record is not an error.
func (r *SQLiteRepository) MarkInactive(ctx context.Context, id string, ts time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE devices SET is_active = 0, last_heartbeat = ?, updated_at = ? WHERE id = ?",
		formatTime(ts), formatTime(r.now()), id,
	)
	if err != nil {
		return fmt.Errorf("marking device %s inactive: %w", id, err)
	}
	return nil
}

// DeviceIDByMAC returns the id stored for mac.
func (r *SQLiteRepository) DeviceIDByMAC(ctx context.Context, mac string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, "SELECT id FROM devices WHERE mac = ?", mac).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrDeviceNotFound
		}
		return "", fmt.Errorf("looking up mac %s: %w", mac, err)
	}
	return id, nil
}

const deviceColumns = `id, mac, device_type, label, firmware_version, device_ip, remote_addr,
	status, uptime, is_active, connection_count, first_seen, connected_at, last_heartbeat, updated_at`

// GetByID retrieves a stored device by its identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE id = ?", id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device %s: %w", id, err)
	}
	return d, nil
}

// List returns all stored devices ordered by most recent connection.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+deviceColumns+" FROM devices ORDER BY connected_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := make([]Device, 0)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return devices, nil
}

// Update applies operator edits and returns the updated record.
//
// Returns:
//   - *Device: The record after the update
//   - error: ErrDeviceNotFound, ErrInvalidLabel, ErrInvalidDeviceType, or a database error
func (r *SQLiteRepository) Update(ctx context.Context, id string, u Update) (*Device, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	if u.Label != nil {
		sets = append(sets, "label = ?")
		args = append(args, nullableString(strings.TrimSpace(*u.Label)))
	}
	if u.DeviceType != nil {
		sets = append(sets, "device_type = ?")
		args = append(args, strings.TrimSpace(*u.DeviceType))
	}

	if len(sets) > 0 {
		sets = append(sets, "updated_at = ?")
		args = append(args, formatTime(r.now()), id)

		//nolint:gosec // SET clause built from fixed column names
		result, err := r.db.ExecContext(ctx,
			"UPDATE devices SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
		if err != nil {
			return nil, fmt.Errorf("updating device %s: %w", id, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("checking rows affected: %w", err)
		}
		if n == 0 {
			return nil, ErrDeviceNotFound
		}
	}

	return r.GetByID(ctx, id)
}

// Validate checks operator edits against field limits.
func (u Update) Validate() error {
	if u.Label != nil && len(strings.TrimSpace(*u.Label)) > MaxLabelLength {
		return fmt.Errorf("%w: label exceeds %d characters", ErrInvalidLabel, MaxLabelLength)
	}
	if u.DeviceType != nil {
		t := strings.TrimSpace(*u.DeviceType)
		if t == "" || len(t) > MaxDeviceTypeLength {
			return fmt.Errorf("%w: must be 1-%d characters", ErrInvalidDeviceType, MaxDeviceTypeLength)
		}
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (*Device, error) {
	var d Device
	var mac, label, firmware, deviceIP, remoteAddr, status sql.NullString
	var connectedAt, lastHeartbeat sql.NullString
	var firstSeen, updatedAt string

	if err := row.Scan(
		&d.ID, &mac, &d.DeviceType, &label, &firmware, &deviceIP, &remoteAddr,
		&status, &d.Uptime, &d.IsActive, &d.ConnectionCount,
		&firstSeen, &connectedAt, &lastHeartbeat, &updatedAt,
	); err != nil {
		return nil, err
	}

	d.MAC = mac.String
	d.Label = label.String
	d.Firmware = firmware.String
	d.DeviceIP = deviceIP.String
	d.RemoteAddr = remoteAddr.String

	if status.Valid && status.String != "" {
		if err := json.Unmarshal([]byte(status.String), &d.Status); err != nil {
			return nil, fmt.Errorf("unmarshalling status: %w", err)
		}
	}

	var err error
	if d.FirstSeen, err = parseTime(firstSeen); err != nil {
		return nil, fmt.Errorf("parsing first_seen: %w", err)
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if d.ConnectedAt, err = parseNullableTime(connectedAt); err != nil {
		return nil, fmt.Errorf("parsing connected_at: %w", err)
	}
	if d.LastHeartbeat, err = parseNullableTime(lastHeartbeat); err != nil {
		return nil, fmt.Errorf("parsing last_heartbeat: %w", err)
	}

	return &d, nil
}

func parseNullableTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil //nolint:nilnil // absent timestamp
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// nullableString returns nil for empty strings so COALESCE keeps the
// stored value.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
