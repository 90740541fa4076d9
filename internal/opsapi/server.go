// Package opsapi is the narrow operational HTTP surface this core owns
// directly: /healthz, /readyz, and /metrics. The dashboard REST+SSE
// surface described in spec.md §6.3 is an external collaborator (§1
// "Out of scope") — it is expected to read the store directly, not to
// be served by this package.
package opsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ehmo/sovi/internal/health"
)

// pinger is the subset of *store.DB /readyz depends on.
type pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes the ops-only HTTP surface over a *health.Checker and
// the store's liveness ping.
type Server struct {
	checker *health.Checker
	db      pinger
}

func New(checker *health.Checker, db pinger) *Server {
	return &Server{checker: checker, db: db}
}

// Handler returns the chi router with every ops route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	statuses := s.checker.Statuses()
	status := http.StatusOK
	if !s.checker.IsHealthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy": s.checker.IsHealthy(),
		"checks":  statuses,
	})
}

// handleReadyz is a narrower liveness probe than /healthz: it only asks
// whether the store is reachable right now, for orchestrators that want
// a cheap single-dependency check rather than the full check suite.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
