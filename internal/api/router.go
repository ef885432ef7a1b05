package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)

			// Audit trail
			r.Get("/audit", s.handleListAudit)

			// Broker endpoints
			r.Route("/brokers", func(r chi.Router) {
				r.Get("/", s.handleListBrokers)
				r.Post("/", s.handleCreateBroker)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetBroker)
					r.Patch("/", s.handleUpdateBroker)
					r.Delete("/", s.handleDeleteBroker)
					r.Post("/connect", s.handleConnectBroker)
					r.Post("/disconnect", s.handleDisconnectBroker)
				})
			})

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/", s.handleCreateDevice)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Delete("/", s.handleDeleteDevice)
					r.Get("/latest", s.handleDeviceLatest)
					r.Get("/record", s.handleDeviceRecord)
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status, including the backing
// stores and the number of live broker sessions.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := http.StatusOK
	body := map[string]any{
		"status":  "ok",
		"version": s.version,
	}

	if s.db != nil {
		body["database"] = "ok"
		if err := s.db.HealthCheck(ctx); err != nil {
			body["database"] = err.Error()
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	if s.docstore != nil {
		body["docstore"] = "ok"
		if err := s.docstore.HealthCheck(ctx); err != nil {
			body["docstore"] = err.Error()
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	if s.registry != nil {
		body["sessions"] = s.registry.Count()
	}

	writeJSON(w, status, body)
}
