package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-gateway/internal/device"
)

// handleListLedConfigs returns stored LED configurations.
//
// Query parameters:
//   - deviceId: filter by device
//   - limit: max results (default 100)
//   - sort: "asc" for oldest first; newest first otherwise
func (s *Server) handleListLedConfigs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := device.LedFilter{
		DeviceID:  q.Get("deviceId"),
		Ascending: q.Get("sort") == "asc",
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}

	configs, err := s.devices.ListLedConfigs(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list LED configurations", "error", err)
		writeInternalError(w, "failed to list LED configurations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"configs": configs, "count": len(configs)})
}

// handleLatestLedConfig returns the newest LED configuration, optionally for
// one device.
func (s *Server) handleLatestLedConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.devices.LatestLedConfig(r.Context(), r.URL.Query().Get("deviceId"))
	if err != nil {
		if errors.Is(err, device.ErrConfigNotFound) {
			writeNotFound(w, "no LED configuration found")
			return
		}
		s.logger.Error("failed to get latest LED configuration", "error", err)
		writeInternalError(w, "failed to get latest LED configuration")
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// handleLedCommand stores an LED configuration and then sends it to the
// device. Nothing is sent if the store fails.
func (s *Server) handleLedCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		req.Command = ledUpdateCommand
	}
	if req.Parameters == nil {
		req.Parameters = map[string]any{}
	}

	if _, online := s.gateway.Registry().Lookup(id); !online {
		writeError(w, http.StatusNotFound, ErrCodeDeviceOffline, "device not connected")
		return
	}

	if err := s.devices.AppendLedConfig(r.Context(), id, req.Parameters, time.Now().UTC()); err != nil {
		s.logger.Error("failed to save LED configuration", "device_id", id, "error", err)
		writeInternalError(w, "failed to save LED configuration")
		return
	}

	s.sendCommand(w, r, id, req)
}
