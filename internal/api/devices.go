package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-gateway/internal/audit"
	"github.com/nerrad567/gray-logic-gateway/internal/device"
	"github.com/nerrad567/gray-logic-gateway/internal/gateway"
)

// ledUpdateCommand is the command name whose parameters are also stored as
// an LED configuration.
const ledUpdateCommand = "led_update"

// ledStoreTimeout bounds the LED configuration write made alongside a command.
const ledStoreTimeout = 5 * time.Second

// CommandRequest is the body of a device command request.
type CommandRequest struct {
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters"`
}

// ConnectionHistory summarises how a device has connected over time.
type ConnectionHistory struct {
	FirstSeen       time.Time  `json:"firstSeen"`
	LastSeen        *time.Time `json:"lastSeen"`
	ConnectionCount int        `json:"connectionCount"`
	IsActive        bool       `json:"isActive"`
}

// handleListDevices returns every stored device record, online or not.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleListActiveDevices returns the devices connected right now.
func (s *Server) handleListActiveDevices(w http.ResponseWriter, _ *http.Request) {
	summaries := s.gateway.ListSummaries()
	writeJSON(w, http.StatusOK, map[string]any{"devices": summaries, "count": len(summaries)})
}

// handleGetDevice returns the live session view of a device when it is
// online, falling back to its stored record.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if sess, ok := s.gateway.Registry().Lookup(id); ok {
		writeJSON(w, http.StatusOK, map[string]any{"isActive": true, "device": sess.Summary()})
		return
	}

	dev, err := s.devices.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to get device", "device_id", id, "error", err)
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"isActive": false, "device": dev})
}

// handleUpdateDevice edits the operator-owned fields of a stored device.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var u device.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev, err := s.devices.Update(r.Context(), id, u)
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
		return
	case errors.Is(err, device.ErrInvalidLabel), errors.Is(err, device.ErrInvalidDeviceType):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	case err != nil:
		s.logger.Error("failed to update device", "device_id", id, "error", err)
		writeInternalError(w, "failed to update device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleDeviceHistory returns the connection history of a stored device.
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.devices.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to get device history", "device_id", id, "error", err)
		writeInternalError(w, "failed to get device history")
		return
	}

	_, online := s.gateway.Registry().Lookup(id)

	writeJSON(w, http.StatusOK, map[string]any{
		"deviceId": id,
		"connectionHistory": ConnectionHistory{
			FirstSeen:       dev.FirstSeen,
			LastSeen:        dev.LastHeartbeat,
			ConnectionCount: dev.ConnectionCount,
			IsActive:        online,
		},
	})
}

// handleDeviceCommand sends a command frame to an online device.
//
// For led_update the parameters are also stored as an LED configuration;
// a storage failure is logged and the command is still sent.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	req, ok := decodeCommand(w, r)
	if !ok {
		return
	}

	if _, online := s.gateway.Registry().Lookup(id); !online {
		writeError(w, http.StatusNotFound, ErrCodeDeviceOffline, "device not connected")
		return
	}

	if req.Command == ledUpdateCommand {
		ctx, cancel := context.WithTimeout(r.Context(), ledStoreTimeout)
		if err := s.devices.AppendLedConfig(ctx, id, req.Parameters, time.Now().UTC()); err != nil {
			s.logger.Error("failed to store LED configuration from command", "device_id", id, "error", err)
		}
		cancel()
	}

	s.sendCommand(w, r, id, req)
}

// handlePingDevice sends an application-level ping to an online device.
func (s *Server) handlePingDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.gateway.SendToOne(id, gateway.Ping()); err != nil {
		writeSendError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ping sent", "deviceId": id})
}

// sendCommand delivers req to the device and writes the response.
func (s *Server) sendCommand(w http.ResponseWriter, r *http.Request, id string, req CommandRequest) {
	if err := s.gateway.SendToOne(id, gateway.Command(req.Command, req.Parameters)); err != nil {
		writeSendError(w, err)
		return
	}

	s.logger.Info("command sent", "device_id", id, "command", req.Command)
	s.auditLog(r, audit.ActionCommand, id, map[string]any{"command": req.Command})

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "sent",
		"deviceId": id,
		"command":  req.Command,
	})
}

// decodeCommand parses a CommandRequest, writing a 400 on failure.
func decodeCommand(w http.ResponseWriter, r *http.Request) (CommandRequest, bool) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return req, false
	}
	req.Command = strings.TrimSpace(req.Command)
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return req, false
	}
	return req, true
}

func writeSendError(w http.ResponseWriter, err error) {
	if errors.Is(err, gateway.ErrDeviceNotFound) {
		writeError(w, http.StatusNotFound, ErrCodeDeviceOffline, "device not connected")
		return
	}
	writeInternalError(w, "failed to send to device")
}
