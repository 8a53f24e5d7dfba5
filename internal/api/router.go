package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// healthCheckTimeout bounds each component check in /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter mounts the middleware chain and the v1 routes.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.accessLog)
	r.Use(s.recoverPanics)
	r.Use(s.cors)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	// Prometheus scrape endpoint (no auth, scraped on the local network)
	if s.metrics != nil {
		r.Handle(s.metricsPath, s.metrics)
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)

			r.Route("/accessories", func(r chi.Router) {
				r.Get("/", s.handleListAccessories)

				r.Route("/{name}", func(r chi.Router) {
					r.Get("/", s.handleGetAccessory)
					r.Get("/characteristics/{characteristic}", s.handleGetCharacteristic)
					r.Put("/characteristics/{characteristic}", s.handleSetCharacteristic)
					r.Get("/history/readings", s.handleReadingHistory)
					r.Get("/history/changes", s.handleChangeHistory)
				})
			})

			r.Get("/devices", s.handleListDevices)
			r.Get("/audit", s.handleListAudit)

			// WebSocket (token may come from the query string)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status. Any failing component
// turns the status to "degraded" without failing the request.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string, len(s.checks))
	status := "ok"
	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := check.HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"accessories":    len(s.accessories.List()),
		"ws_clients":     s.hub.ClientCount(),
		"components":     components,
	})
}

// handleListDevices returns the gateway devices and their liveness.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	if s.devices == nil {
		writeJSON(w, http.StatusOK, map[string]any{"devices": []any{}, "count": 0})
		return
	}
	devices := s.devices.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}
