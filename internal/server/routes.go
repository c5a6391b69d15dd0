// Package server wires HTTP handlers into a router for the Circe ops
// endpoint.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the HTTP router: a status page at /, a health check at
// /healthz, Prometheus metrics at /metrics, and WebSocket sessions at /ws.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.Handle("/ws", s.ws)
	return r
}
