package api

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// upgrader configures the device WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Devices are not browsers and send no meaningful Origin.
		return true
	},
}

// handleDeviceSocket upgrades a device connection and hands it to the
// gateway. The connection is UNIDENTIFIED until its first identification
// frame.
func (s *Server) handleDeviceSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		s.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	if sess := s.gateway.ServeConn(conn, r.RemoteAddr); sess == nil {
		s.logger.Debug("device connection refused during shutdown", "remote_addr", r.RemoteAddr)
	}
}
