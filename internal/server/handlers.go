// Package server exposes HTTP handlers for health checks alongside the
// WebSocket upgrade endpoint.
package server

import (
	"fmt"
	"net/http"
)

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "Circe server is running!")
}

// healthz reports liveness plus the current session, user and room counts.
func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if s.shuttingDown() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintln(w, "shutting down")
		return
	}
	_, _ = fmt.Fprintf(w, "ok\nsessions %d\nusers %d\nrooms %d\n",
		s.SessionCount(), s.users.Len(), s.rooms.Len())
}
