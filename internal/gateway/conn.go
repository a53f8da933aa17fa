package gateway

import (
	"time"

	"github.com/gorilla/websocket"
)

// ServeConn attaches an upgraded WebSocket and starts its pumps. It returns
// immediately; the pumps run until the connection closes.
func (g *Gateway) ServeConn(ws *websocket.Conn, remoteAddr string) *Session {
	s := g.Attach(ws, remoteAddr)
	if s == nil {
		return nil
	}

	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		g.closeSession(s, ReasonShutdown)
		return s
	}
	g.wg.Add(2)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		g.writePump(s, ws)
	}()
	go func() {
		defer g.wg.Done()
		g.readPump(s, ws)
	}()

	return s
}

// readPump feeds inbound frames to the dispatcher until the connection
// fails. Liveness is owned by the monitor, so no read deadline is set.
func (g *Gateway) readPump(s *Session, ws *websocket.Conn) {
	defer g.closeSession(s, ReasonDisconnected)

	if g.cfg.MaxMessageSize > 0 {
		ws.SetReadLimit(int64(g.cfg.MaxMessageSize))
	}
	ws.SetPongHandler(func(string) error {
		s.touch(g.now())
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Warn("websocket read error", "device_id", s.DeviceID(), "error", err)
			} else {
				g.logger.Debug("websocket closed", "device_id", s.DeviceID(), "error", err)
			}
			return
		}
		g.HandleFrame(s, data)
	}
}

// writePump is the only writer of data frames on ws.
func (g *Gateway) writePump(s *Session, ws *websocket.Conn) {
	writeTimeout := g.cfg.WriteTimeoutDuration()

	for {
		select {
		case <-s.done:
			return
		case data := <-s.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				g.logger.Debug("websocket write failed", "device_id", s.DeviceID(), "error", err)
				g.closeSession(s, ReasonWriteError)
				return
			}
		}
	}
}
