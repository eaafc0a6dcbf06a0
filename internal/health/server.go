// Package health exposes liveness and readiness endpoints for daemon mode.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// DatabasePinger is the subset of the database layer the readiness probe needs.
type DatabasePinger interface {
	Ping(ctx context.Context) error
}

// Server answers /healthz (process is up) and /readyz (dependencies reachable).
type Server struct {
	db        DatabasePinger
	log       *logrus.Entry
	startedAt time.Time
	srv       *http.Server
}

type status struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime,omitempty"`
	Database string `json:"database,omitempty"`
}

func NewServer(addr string, db DatabasePinger, log *logrus.Logger) *Server {
	s := &Server{
		db:        db,
		log:       log.WithField("component", "health"),
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

// Start runs the health server until Shutdown is called.
func (s *Server) Start() error {
	s.log.WithField("addr", s.srv.Addr).Info("Health server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("health server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, status{
		Status: "ok",
		Uptime: time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.log.WithError(err).Warn("Readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, status{Status: "unavailable", Database: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, status{Status: "ready", Database: "ok"})
}

func writeJSON(w http.ResponseWriter, code int, body status) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
