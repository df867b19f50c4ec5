// Package api provides the HTTP server for a ledger node.
// It accepts signed events, serves peer synchronization pages and exposes
// read-only views of the derived state.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutu-network/tutuledger/internal/app/replica"
	"github.com/tutu-network/tutuledger/internal/domain"
	"github.com/tutu-network/tutuledger/internal/health"
)

// maxEventBytes bounds a submitted event body.
const maxEventBytes = 1 << 20

// maxPageLimit caps one events_since page. Larger requests get a short page.
const maxPageLimit = 1000

// Server is the ledger node HTTP API server.
type Server struct {
	replica        *replica.Replica
	health         *health.Checker // nil if not set
	metricsEnabled bool
	version        string
}

// NewServer creates a new API server over a replica.
func NewServer(r *replica.Replica) *Server {
	return &Server{replica: r, version: "dev"}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth reports the checker's results on /health.
func (s *Server) SetHealth(h *health.Checker) { s.health = h }

// SetVersion sets the build version reported by /api/version.
func (s *Server) SetVersion(v string) { s.version = v }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{
				"version": s.version,
			})
		})

		// Ingestion and sync
		r.Post("/events", s.handleSubmit)
		r.Get("/channels", s.handleChannels)
		r.Get("/channels/{channel}/events", s.handleEventsSince)
		r.Get("/clock", s.handleClock)
		r.Post("/clock/next", s.handleNextClock)

		// Balances
		r.Get("/balances/{account}", s.handleBalance)
		r.Get("/balances/{account}/entries", s.handleEntries)
		r.Get("/treasuries/{channel}", s.handleTreasury)

		// Configuration
		r.Get("/config", s.handleConfig)
		r.Get("/config/history", s.handleConfigHistory)
		r.Get("/config/schema", s.handleSchema)

		// Governance and tasks
		r.Get("/proposals", s.handleProposals)
		r.Get("/proposals/{id}", s.handleProposal)
		r.Get("/tasks", s.handleTasks)
		r.Get("/tasks/{id}", s.handleTask)

		// Derivation
		r.Get("/diagnostics", s.handleDiagnostics)
		r.Get("/fingerprint", s.handleFingerprint)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeDomainError maps lookup failures to 404 and everything else to 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownChannel),
		errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, domain.ErrProposalNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
