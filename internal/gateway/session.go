package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the identification state of a session.
type State int

// Session states. A session only ever moves forward.
const (
	StateUnidentified State = iota
	StateIdentified
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnidentified:
		return "unidentified"
	case StateIdentified:
		return "identified"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Close reasons recorded in logs, metrics and the audit trail.
const (
	ReasonDisconnected = "disconnected"
	ReasonReplaced     = "replaced"
	ReasonEvicted      = "evicted"
	ReasonWriteError   = "write_error"
	ReasonShutdown     = "shutdown"
)

// closeGrace bounds the close frame written when a session is torn down.
const closeGrace = time.Second

// Conn is the part of a transport connection a session drives directly.
// Frame writes go through the send buffer; *websocket.Conn satisfies it.
type Conn interface {
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Session is one device connection.
//
// Identity fields are populated once by identification and are immutable
// afterwards. Liveness and reported state are updated by the read loop and
// read by the monitor and the API, so every field sits behind mu.
type Session struct {
	conn       Conn
	remoteAddr string

	send      chan []byte // never closed; done signals teardown
	done      chan struct{}
	closeOnce sync.Once
	work      *workQueue

	mu            sync.RWMutex
	state         State
	deviceID      string
	deviceType    string
	mac           string
	firmware      string
	deviceIP      string
	connectedAt   time.Time
	lastHeartbeat time.Time
	uptime        int64
	lastStatus    map[string]any
	alive         bool
	closeReason   string
}

func newSession(conn Conn, remoteAddr string, sendBuffer int, now time.Time) *Session {
	return &Session{
		conn:          conn,
		remoteAddr:    remoteAddr,
		send:          make(chan []byte, sendBuffer),
		done:          make(chan struct{}),
		state:         StateUnidentified,
		connectedAt:   now,
		lastHeartbeat: now,
		alive:         true,
	}
}

// DeviceID returns the bound device ID, or "" before identification.
func (s *Session) DeviceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceID
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// RemoteAddr returns the transport peer address.
func (s *Session) RemoteAddr() string {
	return s.remoteAddr
}

// Done is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// CloseReason returns why the session was closed, or "" while open.
func (s *Session) CloseReason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closeReason
}

// trySend enqueues a frame without blocking.
// Returns false if the session is closed or its buffer is full.
func (s *Session) trySend(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// identity is what an identification frame carries.
type identity struct {
	deviceID   string
	mac        string
	deviceType string
	firmware   string
	deviceIP   string
}

// identify binds the session to a device.
//
// Returns first=true on the UNIDENTIFIED to IDENTIFIED transition. A repeat
// for the same device refreshes the descriptive fields; a different device
// ID returns ErrIdentityConflict.
func (s *Session) identify(id identity, now time.Time) (first bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return false, ErrSessionClosed
	case StateIdentified:
		if s.deviceID != id.deviceID {
			return false, ErrIdentityConflict
		}
	case StateUnidentified:
		s.state = StateIdentified
		s.deviceID = id.deviceID
		s.mac = id.mac
		s.connectedAt = now
		first = true
	}

	if id.deviceType != "" {
		s.deviceType = id.deviceType
	}
	if id.firmware != "" {
		s.firmware = id.firmware
	}
	if id.deviceIP != "" {
		s.deviceIP = id.deviceIP
	}
	s.lastHeartbeat = now
	s.alive = true

	return first, nil
}

// markAlive records evidence of life since the last sweep.
func (s *Session) markAlive() {
	s.mu.Lock()
	s.alive = true
	s.mu.Unlock()
}

// touch records a heartbeat time without changing uptime.
func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastHeartbeat = now
	s.alive = true
	s.mu.Unlock()
}

// setHeartbeat records a heartbeat, replacing uptime when reported.
func (s *Session) setHeartbeat(uptime *int64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeartbeat = now
	s.alive = true
	if uptime != nil {
		s.uptime = *uptime
	}
}

func (s *Session) setStatus(status map[string]any) {
	s.mu.Lock()
	s.lastStatus = status
	s.mu.Unlock()
}

// checkAndReset reports whether the session showed life since the previous
// call and clears the mark for the next interval.
func (s *Session) checkAndReset() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasAlive := s.alive
	s.alive = false
	return wasAlive
}

// ping sends a transport-level ping. Control frames may be written
// concurrently with the write pump.
func (s *Session) ping(deadline time.Time) error {
	return s.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

// close tears the session down once. Returns true for the call that
// actually closed it.
func (s *Session) close(reason string) bool {
	closed := false
	s.closeOnce.Do(func() {
		closed = true

		s.mu.Lock()
		s.state = StateClosed
		s.closeReason = reason
		s.mu.Unlock()

		close(s.done)

		msg := websocket.FormatCloseMessage(closeCode(reason), reason)
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace)) //nolint:errcheck // best effort, peer may be gone
		_ = s.conn.Close()                                                          //nolint:errcheck // best effort
	})
	return closed
}

func closeCode(reason string) int {
	switch reason {
	case ReasonShutdown:
		return websocket.CloseGoingAway
	case ReasonReplaced, ReasonEvicted:
		return websocket.ClosePolicyViolation
	default:
		return websocket.CloseNormalClosure
	}
}

// Summary is a point-in-time view of a session for listings.
type Summary struct {
	ID            string         `json:"id"`
	DeviceType    string         `json:"deviceType,omitempty"`
	MAC           string         `json:"mac"`
	IP            string         `json:"ip"`
	DeviceIP      string         `json:"deviceIP,omitempty"`
	ConnectedAt   time.Time      `json:"connectedAt"`
	LastHeartbeat time.Time      `json:"lastHeartbeat"`
	Version       string         `json:"version,omitempty"`
	Status        map[string]any `json:"status,omitempty"`
	Uptime        int64          `json:"uptime"`
}

// Summary returns a snapshot of the session's identity and liveness.
func (s *Session) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Summary{
		ID:            s.deviceID,
		DeviceType:    s.deviceType,
		MAC:           s.mac,
		IP:            s.remoteAddr,
		DeviceIP:      s.deviceIP,
		ConnectedAt:   s.connectedAt,
		LastHeartbeat: s.lastHeartbeat,
		Version:       s.firmware,
		Status:        s.lastStatus,
		Uptime:        s.uptime,
	}
}
