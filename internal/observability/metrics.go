// Package observability exposes Prometheus metrics for the gateway and its
// HTTP facade.
package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gateway"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	sessionsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "opened_total",
			Help:      "Device connections accepted.",
		},
		[]string{"node"},
	)
	sessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "closed_total",
			Help:      "Device connections closed, by reason.",
		},
		[]string{"node", "reason"},
	)
	devicesOnline = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "devices",
			Name:      "online",
			Help:      "Identified devices currently registered.",
		},
		[]string{"node"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "received_total",
			Help:      "Inbound device frames, by message type.",
		},
		[]string{"node", "type"},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "dropped_total",
			Help:      "Outbound frames skipped because the recipient was full or closing.",
		},
		[]string{"node"},
	)
	broadcastRecipients = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "recipients_total",
			Help:      "Frames delivered by broadcasts, by message type.",
		},
		[]string{"node", "type"},
	)
	persistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "failures_total",
			Help:      "Failed or dropped persistence operations, by operation.",
		},
		[]string{"node", "op"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			sessionsOpened, sessionsClosed, devicesOnline,
			framesReceived, framesDropped, broadcastRecipients, persistFailures,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// GatewayMetrics records session and routing activity for one gateway node.
type GatewayMetrics struct {
	node string
}

func NewGatewayMetrics(node string) *GatewayMetrics {
	RegisterMetrics()
	return &GatewayMetrics{node: node}
}

func (m *GatewayMetrics) SessionOpened() {
	sessionsOpened.WithLabelValues(m.node).Inc()
}

func (m *GatewayMetrics) SessionClosed(reason string) {
	sessionsClosed.WithLabelValues(m.node, reason).Inc()
}

func (m *GatewayMetrics) SetOnline(n int) {
	devicesOnline.WithLabelValues(m.node).Set(float64(n))
}

func (m *GatewayMetrics) FrameReceived(msgType string) {
	framesReceived.WithLabelValues(m.node, msgType).Inc()
}

func (m *GatewayMetrics) FrameDropped() {
	framesDropped.WithLabelValues(m.node).Inc()
}

func (m *GatewayMetrics) Broadcast(kind string, recipients int) {
	broadcastRecipients.WithLabelValues(m.node, kind).Add(float64(recipients))
}

func (m *GatewayMetrics) PersistFailed(op string) {
	persistFailures.WithLabelValues(m.node, op).Inc()
}
