package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-gateway/internal/observability"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware. The metrics wrapper goes first so it sees the
	// server's own writer and keeps Hijack available for the WebSocket upgrade.
	r.Use(observability.RequestMetricsMiddleware(s.nodeID))
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)

	// Device transport. Registered outside the body limit: the gateway
	// enforces its own frame size after the upgrade.
	r.Get(s.wsCfg.Path, s.handleDeviceSocket)

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.bodySizeLimitMiddleware)

		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/active", s.handleListActiveDevices)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Put("/", s.handleUpdateDevice)
				r.Get("/history", s.handleDeviceHistory)
				r.Post("/command", s.handleDeviceCommand)
				r.Post("/ping", s.handlePingDevice)
			})
		})

		r.Route("/led", func(r chi.Router) {
			r.Get("/", s.handleListLedConfigs)
			r.Get("/latest", s.handleLatestLedConfig)
			r.Post("/{id}/command", s.handleLedCommand)
		})

		r.Route("/sensors", func(r chi.Router) {
			r.Get("/", s.handleListSensorReadings)
			r.Get("/stats", s.handleSensorStats)
		})

		r.Get("/audit", s.handleListAuditLogs)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     s.version,
		"connections": s.gateway.ConnectionCount(),
		"devices":     s.gateway.Registry().Len(),
	})
}
