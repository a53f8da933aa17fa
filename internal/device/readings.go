package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AppendSensorReading stores one sensor value.
//
// The value is kept as JSON so strings, booleans and objects survive the
// round trip. Numbers and booleans are also written to value_num, which
// SensorStats aggregates over.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - id: Reporting device
//   - sensor: Sensor name as reported by the device
//   - value: Reported value
//   - ts: Reading time; zero means now
//
// Returns:
//   - error: ErrInvalidDevice for a missing id or sensor, otherwise the database error
func (r *SQLiteRepository) AppendSensorReading(ctx context.Context, id, sensor string, value any, ts time.Time) error {
	if id == "" || sensor == "" {
		return fmt.Errorf("%w: device id and sensor are required", ErrInvalidDevice)
	}
	if ts.IsZero() {
		ts = r.now()
	}

	valueJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshalling sensor value: %w", err)
	}

	var num any
	if f, ok := NumericValue(value); ok {
		num = f
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sensor_readings (device_id, sensor, value, value_num, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, sensor, string(valueJSON), num, formatTime(ts),
	)
	if err != nil {
		return fmt.Errorf("inserting sensor reading: %w", err)
	}

	return nil
}

// ListSensorReadings returns readings matching filter, newest first.
func (r *SQLiteRepository) ListSensorReadings(ctx context.Context, filter SensorFilter) ([]SensorReading, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultSensorLimit
	}
	if limit > MaxSensorLimit {
		limit = MaxSensorLimit
	}

	where, args := filter.where()
	//nolint:gosec // WHERE built from parameterised conditions
	query := "SELECT id, device_id, sensor, value, recorded_at FROM sensor_readings" +
		where + " ORDER BY recorded_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sensor readings: %w", err)
	}
	defer rows.Close()

	readings := make([]SensorReading, 0)
	for rows.Next() {
		var rd SensorReading
		var valueJSON, recordedAt string
		if err := rows.Scan(&rd.ID, &rd.DeviceID, &rd.Sensor, &valueJSON, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning sensor reading: %w", err)
		}
		if err := json.Unmarshal([]byte(valueJSON), &rd.Value); err != nil {
			return nil, fmt.Errorf("unmarshalling sensor value: %w", err)
		}
		if rd.Timestamp, err = parseTime(recordedAt); err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}
		readings = append(readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sensor readings: %w", err)
	}

	return readings, nil
}

// SensorStats returns per-sensor aggregates for readings matching filter.
// filter.Limit is ignored.
func (r *SQLiteRepository) SensorStats(ctx context.Context, filter SensorFilter) ([]SensorStats, error) {
	where, args := filter.where()
	//nolint:gosec // WHERE built from parameterised conditions
	query := `SELECT sensor, COUNT(*), AVG(value_num), MIN(value_num), MAX(value_num),
			MIN(recorded_at), MAX(recorded_at)
		FROM sensor_readings` + where + " GROUP BY sensor ORDER BY sensor"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sensor stats: %w", err)
	}
	defer rows.Close()

	stats := make([]SensorStats, 0)
	for rows.Next() {
		var s SensorStats
		var avg, lo, hi sql.NullFloat64
		var first, last string
		if err := rows.Scan(&s.Sensor, &s.Count, &avg, &lo, &hi, &first, &last); err != nil {
			return nil, fmt.Errorf("scanning sensor stats: %w", err)
		}
		s.Avg = nullableFloat(avg)
		s.Min = nullableFloat(lo)
		s.Max = nullableFloat(hi)
		if s.FirstTimestamp, err = parseTime(first); err != nil {
			return nil, fmt.Errorf("parsing first timestamp: %w", err)
		}
		if s.LastTimestamp, err = parseTime(last); err != nil {
			return nil, fmt.Errorf("parsing last timestamp: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sensor stats: %w", err)
	}

	return stats, nil
}

func (f SensorFilter) where() (string, []any) {
	var conditions []string
	var args []any

	if f.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, f.DeviceID)
	}
	if f.Sensor != "" {
		conditions = append(conditions, "sensor = ?")
		args = append(args, f.Sensor)
	}
	if !f.Start.IsZero() && !f.End.IsZero() {
		conditions = append(conditions, "recorded_at >= ? AND recorded_at <= ?")
		args = append(args, formatTime(f.Start), formatTime(f.End))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// NumericValue reports the float form of a sensor value. Booleans map to
// 0 and 1; strings and structured values are not numeric.
func NumericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func nullableFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
