package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-gateway/internal/audit"
	"github.com/nerrad567/gray-logic-gateway/internal/device"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeConn records control frames and close calls.
type fakeConn struct {
	mu       sync.Mutex
	pings    int
	closes   int
	closeMsg []byte
	pingErr  error
}

func (c *fakeConn) WriteControl(messageType int, data []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch messageType {
	case websocket.PingMessage:
		c.pings++
		return c.pingErr
	case websocket.CloseMessage:
		c.closeMsg = data
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) pingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type upsertCall struct {
	id     string
	fields device.Fields
}

type readingCall struct {
	id, sensor string
	value      any
	ts         time.Time
}

// fakeStore records every write.
type fakeStore struct {
	mu       sync.Mutex
	upserts  []upsertCall
	inactive []string
	readings []readingCall
	leds     []map[string]any
	ledErr   error
	readErr  error
}

func (f *fakeStore) UpsertDevice(_ context.Context, id string, fields device.Fields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, upsertCall{id: id, fields: fields})
	return nil
}

func (f *fakeStore) MarkInactive(_ context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inactive = append(f.inactive, id)
	return nil
}

func (f *fakeStore) AppendSensorReading(_ context.Context, id, sensor string, value any, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return f.readErr
	}
	f.readings = append(f.readings, readingCall{id: id, sensor: sensor, value: value, ts: ts})
	return nil
}

func (f *fakeStore) AppendLedConfig(_ context.Context, _ string, params map[string]any, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ledErr != nil {
		return f.ledErr
	}
	f.leds = append(f.leds, params)
	return nil
}

func (f *fakeStore) snapshot() fakeStore {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeStore{
		upserts:  append([]upsertCall(nil), f.upserts...),
		inactive: append([]string(nil), f.inactive...),
		readings: append([]readingCall(nil), f.readings...),
		leds:     append([]map[string]any(nil), f.leds...),
	}
}

// fakeAudit records audit entries.
type fakeAudit struct {
	mu      sync.Mutex
	entries []audit.AuditLog
}

func (a *fakeAudit) Create(_ context.Context, log *audit.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, *log)
	return nil
}

func (a *fakeAudit) List(context.Context, audit.Filter) (*audit.ListResult, error) {
	return nil, errors.New("not implemented")
}

func (a *fakeAudit) actions(deviceID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, e := range a.entries {
		if e.DeviceID == deviceID {
			out = append(out, e.Action)
		}
	}
	return out
}

// fakeTelemetry records numeric points.
type fakeTelemetry struct {
	mu     sync.Mutex
	points []float64
}

func (f *fakeTelemetry) WriteSensorReading(_, _ string, value float64, _ time.Time) {
	f.mu.Lock()
	f.points = append(f.points, value)
	f.mu.Unlock()
}

type onlineCall struct {
	id     string
	online bool
}

// fakeEvents records online events.
type fakeEvents struct {
	mu     sync.Mutex
	online []onlineCall
}

func (f *fakeEvents) PublishOnline(deviceID string, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = append(f.online, onlineCall{id: deviceID, online: online})
	return nil
}

func (f *fakeEvents) PublishStatus(string, map[string]any) error { return nil }
func (f *fakeEvents) PublishSensor(string, string, any, time.Time) error { return nil }
func (f *fakeEvents) PublishResponse(string, map[string]any) error { return nil }

func (f *fakeEvents) wentOffline(deviceID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.online {
		if c.id == deviceID && !c.online {
			return true
		}
	}
	return false
}

type testEnv struct {
	gw    *Gateway
	store *fakeStore
	audit *fakeAudit
}

func newTestGateway(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{store: &fakeStore{}, audit: &fakeAudit{}}
	env.gw = New(Deps{
		Config: config.WebSocketConfig{
			PingInterval: 30,
			WriteTimeout: 5,
			SendBuffer:   32,
		},
		Store: env.store,
		Audit: env.audit,
		Now:   func() time.Time { return testNow },
	})

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.gw.Shutdown(ctx) //nolint:errcheck // test teardown
	})

	return env
}

// attach opens a session on a fake connection.
func (e *testEnv) attach(t *testing.T) (*Session, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	s := e.gw.Attach(conn, "10.0.0.1:50000")
	if s == nil {
		t.Fatal("Attach() returned nil")
	}
	return s, conn
}

// identify sends an identification frame and discards the frames it causes.
func (e *testEnv) identify(t *testing.T, s *Session, mac string) string {
	t.Helper()
	e.gw.HandleFrame(s, []byte(`{"type":"identification","mac":"`+mac+`","device":"sensor-node","version":"1.0"}`))
	if s.State() != StateIdentified {
		t.Fatalf("session state = %v after identification, want identified", s.State())
	}
	return s.DeviceID()
}

// drain returns every frame queued on s.
func drain(t *testing.T, s *Session) []map[string]any {
	t.Helper()
	var out []map[string]any
	for {
		select {
		case data := <-s.send:
			var m map[string]any
			if err := json.Unmarshal(data, &m); err != nil {
				t.Fatalf("queued frame is not JSON: %v", err)
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

// framesOfType filters frames by their type field.
func framesOfType(frames []map[string]any, msgType string) []map[string]any {
	var out []map[string]any
	for _, f := range frames {
		if f["type"] == msgType {
			out = append(out, f)
		}
	}
	return out
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func contextWithTimeout(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 5*time.Second)
}
