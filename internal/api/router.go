package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeBadRequest, "read-only endpoint")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/hardware", func(r chi.Router) {
			r.Get("/", s.handleListHardware)
			r.Get("/{index}", s.handleGetHardware)
		})

		r.Get("/overrides", s.handleListOverrides)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/audit", s.handleListAuditLogs)
	})

	return r
}

// handleHealth returns the server health status. Once teardown has begun
// it answers 503 so supervisors see the daemon going away.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.shutdown != nil && s.shutdown.Triggered() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "shutting_down",
			"version": s.version,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"peer_port":  s.peerPort,
		"session_id": s.sessionID,
	})
}
