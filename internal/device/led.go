package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// LedConfigFromParams maps a parameter payload onto the LED columns.
// Flags accept booleans or numbers (non-zero is on); missing keys are off.
func LedConfigFromParams(deviceID string, params map[string]any, ts time.Time) LedConfig {
	cfg := LedConfig{
		DeviceID:   deviceID,
		On:         flag(params["on"]),
		Red:        flag(params["red"]),
		Green:      flag(params["green"]),
		Blue:       flag(params["blue"]),
		Parameters: params,
		Timestamp:  ts,
	}
	if b, ok := NumericValue(params["behavior"]); ok {
		cfg.Behavior = int(b)
	}
	if cfg.Parameters == nil {
		cfg.Parameters = map[string]any{}
	}
	return cfg
}

func flag(v any) bool {
	f, ok := NumericValue(v)
	return ok && f != 0
}

// AppendLedConfig records an LED configuration for a device.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - id: Target device
//   - params: LED parameters (on, red, green, blue, behavior, ...)
//   - ts: Configuration time; zero means now
//
// Returns:
//   - error: ErrInvalidDevice for a missing id, otherwise the database error
func (r *SQLiteRepository) AppendLedConfig(ctx context.Context, id string, params map[string]any, ts time.Time) error {
	if id == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidDevice)
	}
	if ts.IsZero() {
		ts = r.now()
	}

	cfg := LedConfigFromParams(id, params, ts)
	paramsJSON, err := json.Marshal(cfg.Parameters)
	if err != nil {
		return fmt.Errorf("marshalling led parameters: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO led_configs (device_id, led_on, red, green, blue, behavior, parameters, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, cfg.On, cfg.Red, cfg.Green, cfg.Blue, cfg.Behavior, string(paramsJSON), formatTime(ts),
	)
	if err != nil {
		return fmt.Errorf("inserting led config: %w", err)
	}

	return nil
}

const ledColumns = "id, device_id, led_on, red, green, blue, behavior, parameters, created_at"

// ListLedConfigs returns LED configurations matching filter.
func (r *SQLiteRepository) ListLedConfigs(ctx context.Context, filter LedFilter) ([]LedConfig, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLedLimit
	}
	if limit > MaxLedLimit {
		limit = MaxLedLimit
	}

	order := "DESC"
	if filter.Ascending {
		order = "ASC"
	}

	query := "SELECT " + ledColumns + " FROM led_configs"
	var args []any
	if filter.DeviceID != "" {
		query += " WHERE device_id = ?"
		args = append(args, filter.DeviceID)
	}
	query += " ORDER BY created_at " + order + ", id " + order + " LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying led configs: %w", err)
	}
	defer rows.Close()

	configs := make([]LedConfig, 0)
	for rows.Next() {
		cfg, err := scanLedConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating led configs: %w", err)
	}

	return configs, nil
}

// LatestLedConfig returns the newest LED configuration, optionally for one
// device. Returns ErrConfigNotFound when none exists.
func (r *SQLiteRepository) LatestLedConfig(ctx context.Context, deviceID string) (*LedConfig, error) {
	query := "SELECT " + ledColumns + " FROM led_configs"
	var args []any
	if deviceID != "" {
		query += " WHERE device_id = ?"
		args = append(args, deviceID)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT 1"

	cfg, err := scanLedConfig(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	return cfg, nil
}

func scanLedConfig(row scanner) (*LedConfig, error) {
	var cfg LedConfig
	var paramsJSON, createdAt string

	if err := row.Scan(&cfg.ID, &cfg.DeviceID, &cfg.On, &cfg.Red, &cfg.Green, &cfg.Blue,
		&cfg.Behavior, &paramsJSON, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning led config: %w", err)
	}

	if err := json.Unmarshal([]byte(paramsJSON), &cfg.Parameters); err != nil {
		return nil, fmt.Errorf("unmarshalling led parameters: %w", err)
	}

	var err error
	if cfg.Timestamp, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &cfg, nil
}
