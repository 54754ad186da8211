// Package api serves the read-only status endpoint.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/postfixrelay/relayconf/internal/audit"
	"github.com/postfixrelay/relayconf/internal/system"
)

// Server exposes reconciliation and service status over HTTP.
type Server struct {
	store *audit.Store
	ctl   system.Controller
}

// NewServer creates a new API server.
func NewServer(store *audit.Store, ctl system.Controller) *Server {
	return &Server{store: store, ctl: ctl}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/api/status", s.getStatus)

	return r
}

type statusResponse struct {
	Postfix postfixStatus `json:"postfix"`
	Dovecot serviceStatus `json:"dovecot"`
	LastRun *audit.Run    `json:"lastRun"`
}

type postfixStatus struct {
	Running bool `json:"running"`
}

type serviceStatus struct {
	Running bool `json:"running"`
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	lastRun, err := s.store.LastRun()
	if err != nil {
		log.Error().Err(err).Msg("failed to read last run")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := statusResponse{
		Postfix: postfixStatus{Running: s.ctl.IsRunning("postfix")},
		Dovecot: serviceStatus{Running: s.ctl.IsRunning("dovecot")},
		LastRun: lastRun,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
