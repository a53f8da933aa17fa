package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/audit"
	"github.com/nerrad567/gray-logic-gateway/internal/device"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
)

// persistTimeout bounds one side-effect job so a hung store cannot stall a
// session's queue forever.
const persistTimeout = 10 * time.Second

// Store is the persistence collaborator. device.SQLiteRepository satisfies it.
type Store interface {
	UpsertDevice(ctx context.Context, id string, f device.Fields) error
	MarkInactive(ctx context.Context, id string, ts time.Time) error
	AppendSensorReading(ctx context.Context, id, sensor string, value any, ts time.Time) error
	AppendLedConfig(ctx context.Context, id string, params map[string]any, ts time.Time) error
}

// Telemetry receives numeric sensor readings for time-series storage.
type Telemetry interface {
	WriteSensorReading(deviceID, sensor string, value float64, ts time.Time)
}

// Events publishes device events to external subscribers.
type Events interface {
	PublishOnline(deviceID string, online bool) error
	PublishStatus(deviceID string, status map[string]any) error
	PublishSensor(deviceID, sensor string, value any, ts time.Time) error
	PublishResponse(deviceID string, data map[string]any) error
}

// Metrics records gateway activity.
type Metrics interface {
	SessionOpened()
	SessionClosed(reason string)
	SetOnline(n int)
	FrameReceived(msgType string)
	FrameDropped()
	Broadcast(kind string, recipients int)
	PersistFailed(op string)
}

// Logger is the logging interface used by the gateway.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Deps holds the gateway's collaborators. Only Config is required; every
// other field falls back to a no-op.
type Deps struct {
	Config    config.WebSocketConfig
	Store     Store
	Telemetry Telemetry
	Events    Events
	Audit     audit.Repository
	Metrics   Metrics
	Logger    Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Gateway owns every device session: it accepts connections, dispatches
// their frames, routes outbound frames and evicts silent peers.
type Gateway struct {
	cfg        config.WebSocketConfig
	registry   *Registry
	identities *identityResolver

	store     Store
	telemetry Telemetry
	events    Events
	audit     audit.Repository
	metrics   Metrics
	logger    Logger
	now       func() time.Time

	mu      sync.Mutex
	conns   map[*Session]struct{}
	closing bool

	ctx    context.Context //nolint:containedctx // gateway-scoped lifetime for background lookups
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a gateway.
func New(deps Deps) *Gateway {
	cfg := deps.Config
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10
	}

	ctx, cancel := context.WithCancel(context.Background())

	g := &Gateway{
		cfg:       cfg,
		registry:  NewRegistry(),
		store:     deps.Store,
		telemetry: deps.Telemetry,
		events:    deps.Events,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Now,
		conns:     make(map[*Session]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}

	if g.store == nil {
		g.store = noopStore{}
	}
	if g.telemetry == nil {
		g.telemetry = noopTelemetry{}
	}
	if g.events == nil {
		g.events = noopEvents{}
	}
	if g.metrics == nil {
		g.metrics = noopMetrics{}
	}
	if g.logger == nil {
		g.logger = noopLogger{}
	}
	if g.now == nil {
		g.now = func() time.Time { return time.Now().UTC() }
	}

	var lookup MACResolver
	if r, ok := g.store.(MACResolver); ok {
		lookup = r
	}
	g.identities = newIdentityResolver(lookup, g.logger)

	return g
}

// Registry returns the live session registry.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Attach creates an UNIDENTIFIED session for a new connection and starts
// its side-effect worker. Returns nil once shutdown has begun; the
// connection is closed in that case.
func (g *Gateway) Attach(conn Conn, remoteAddr string) *Session {
	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		_ = conn.Close() //nolint:errcheck // refusing the connection
		return nil
	}

	s := newSession(conn, remoteAddr, g.cfg.SendBuffer, g.now())
	s.work = newWorkQueue(workQueueSize)
	g.conns[s] = struct{}{}

	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		s.work.run()
	}()

	g.metrics.SessionOpened()
	g.logger.Debug("connection attached", "remote_addr", remoteAddr)
	g.recordAudit(s, audit.ActionConnected, "", nil)

	return s
}

// ConnectionCount returns the number of open connections, identified or not.
func (g *Gateway) ConnectionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// openSessions snapshots every open connection.
func (g *Gateway) openSessions() []*Session {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]*Session, 0, len(g.conns))
	for s := range g.conns {
		out = append(out, s)
	}
	return out
}

// closeSession tears s down and releases its registry entry. Safe to call
// repeatedly and from any goroutine.
func (g *Gateway) closeSession(s *Session, reason string) {
	if s.close(reason) {
		g.release(s, reason)
	}
}

// release runs exactly once per session, after it has been closed.
func (g *Gateway) release(s *Session, reason string) {
	g.mu.Lock()
	delete(g.conns, s)
	g.mu.Unlock()

	id := s.DeviceID()

	if id != "" && g.registry.UnregisterSession(id, s) {
		g.deviceLeft(s, id, reason, g.enqueue)
	} else {
		g.logger.Debug("connection closed", "device_id", id, "remote_addr", s.remoteAddr, "reason", reason)
	}

	if id != "" {
		g.recordAudit(s, auditActionFor(reason), id, map[string]any{"reason": reason})
	}

	g.metrics.SessionClosed(reason)
	s.work.close()
}

// runner executes one side-effect job for a session.
type runner func(s *Session, op string, job func())

// runInline runs a job on the calling goroutine, for sessions whose work
// queue is already closed.
func runInline(_ *Session, _ string, job func()) {
	job()
}

// deviceLeft records that id is no longer online: the registry size, the
// device list broadcast, the stored record and the online event.
func (g *Gateway) deviceLeft(s *Session, id, reason string, run runner) {
	g.mu.Lock()
	shuttingDown := g.closing
	g.mu.Unlock()

	g.metrics.SetOnline(g.registry.Len())
	if !shuttingDown {
		g.BroadcastDeviceList()
	}

	now := g.now()
	run(s, "mark_inactive", g.persistJob(s, "mark_inactive", func(ctx context.Context) error {
		return g.store.MarkInactive(ctx, id, now)
	}))
	run(s, "publish_online", g.publishJob(s, "publish_online", func() error {
		return g.events.PublishOnline(id, false)
	}))
	g.logger.Info("device offline", "device_id", id, "reason", reason)
}

func auditActionFor(reason string) string {
	switch reason {
	case ReasonReplaced:
		return audit.ActionReplaced
	case ReasonEvicted:
		return audit.ActionEvicted
	default:
		return audit.ActionDisconnected
	}
}

// Shutdown closes every session and waits for their goroutines to finish,
// or for ctx to expire.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()

	for _, s := range g.openSessions() {
		g.closeSession(s, ReasonShutdown)
	}
	g.cancel()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.logger.Info("gateway stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// persist queues a store write on the session's worker.
func (g *Gateway) persist(s *Session, op string, fn func(ctx context.Context) error) {
	g.enqueue(s, op, g.persistJob(s, op, fn))
}

func (g *Gateway) persistJob(s *Session, op string, fn func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			g.metrics.PersistFailed(op)
			g.logger.Error("persistence failed", "op", op, "device_id", s.DeviceID(), "error", err)
		}
	}
}

// publish queues an event publication on the session's worker.
func (g *Gateway) publish(s *Session, op string, fn func() error) {
	g.enqueue(s, op, g.publishJob(s, op, fn))
}

func (g *Gateway) publishJob(s *Session, op string, fn func() error) func() {
	return func() {
		if err := fn(); err != nil {
			g.logger.Warn("event publish failed", "op", op, "device_id", s.DeviceID(), "error", err)
		}
	}
}

func (g *Gateway) recordAudit(s *Session, action, deviceID string, details map[string]any) {
	if g.audit == nil {
		return
	}
	entry := &audit.AuditLog{
		Action:     action,
		DeviceID:   deviceID,
		RemoteAddr: s.remoteAddr,
		Source:     audit.SourceWebSocket,
		Details:    details,
		CreatedAt:  g.now(),
	}
	g.persist(s, "audit_"+action, func(ctx context.Context) error {
		return g.audit.Create(ctx, entry)
	})
}

func (g *Gateway) enqueue(s *Session, op string, job func()) {
	if s.work.enqueue(job) {
		return
	}
	g.metrics.PersistFailed(op)
	g.logger.Warn("side effect dropped, work queue full or closed", "op", op, "device_id", s.DeviceID())
}

// noopStore discards writes.
type noopStore struct{}

func (noopStore) UpsertDevice(context.Context, string, device.Fields) error { return nil }
func (noopStore) MarkInactive(context.Context, string, time.Time) error { return nil }
func (noopStore) AppendSensorReading(context.Context, string, string, any, time.Time) error {
	return nil
}
func (noopStore) AppendLedConfig(context.Context, string, map[string]any, time.Time) error {
	return nil
}

type noopTelemetry struct{}

func (noopTelemetry) WriteSensorReading(string, string, float64, time.Time) {}

type noopEvents struct{}

func (noopEvents) PublishOnline(string, bool) error { return nil }
func (noopEvents) PublishStatus(string, map[string]any) error { return nil }
func (noopEvents) PublishSensor(string, string, any, time.Time) error { return nil }
func (noopEvents) PublishResponse(string, map[string]any) error { return nil }

type noopMetrics struct{}

func (noopMetrics) SessionOpened() {}
func (noopMetrics) SessionClosed(string) {}
func (noopMetrics) SetOnline(int) {}
func (noopMetrics) FrameReceived(string) {}
func (noopMetrics) FrameDropped() {}
func (noopMetrics) Broadcast(string, int) {}
func (noopMetrics) PersistFailed(string) {}

// noopLogger discards all log output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}
func (noopLogger) Error(string, ...any) {}
