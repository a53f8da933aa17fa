package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/device"
)

// handleListSensorReadings returns stored sensor readings, newest first.
//
// Query parameters:
//   - deviceId, sensor: optional filters
//   - start, end: RFC 3339 time range, applied only when both are present
//   - limit: max results (default 1000)
func (s *Server) handleListSensorReadings(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseSensorFilter(w, r.URL.Query())
	if !ok {
		return
	}

	readings, err := s.devices.ListSensorReadings(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list sensor readings", "error", err)
		writeInternalError(w, "failed to list sensor readings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"readings": readings, "count": len(readings)})
}

// handleSensorStats returns per-sensor aggregates for the same filters as
// handleListSensorReadings (limit is ignored).
func (s *Server) handleSensorStats(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseSensorFilter(w, r.URL.Query())
	if !ok {
		return
	}

	stats, err := s.devices.SensorStats(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to compute sensor stats", "error", err)
		writeInternalError(w, "failed to compute sensor stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"stats": stats, "count": len(stats)})
}

func parseSensorFilter(w http.ResponseWriter, q url.Values) (device.SensorFilter, bool) {
	filter := device.SensorFilter{
		DeviceID: q.Get("deviceId"),
		Sensor:   q.Get("sensor"),
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}

	var err error
	if v := q.Get("start"); v != "" {
		if filter.Start, err = time.Parse(time.RFC3339, v); err != nil {
			writeBadRequest(w, "start must be an RFC 3339 timestamp")
			return filter, false
		}
	}
	if v := q.Get("end"); v != "" {
		if filter.End, err = time.Parse(time.RFC3339, v); err != nil {
			writeBadRequest(w, "end must be an RFC 3339 timestamp")
			return filter, false
		}
	}

	return filter, true
}
