package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	comms "github.com/nats-io/nats.go"
)

// HealthOutput is the body of GET /health.
type HealthOutput struct {
	Status    string       `json:"status"`
	Store     string       `json:"store"`
	Checks    HealthChecks `json:"checks"`
	Timestamp string       `json:"timestamp"`
}

// HealthChecks holds the individual dependency checks.
type HealthChecks struct {
	Comms    bool `json:"comms"`
	Database bool `json:"database"`
}

// Health checks the COMMS connection and, when Postgres is used, the pool.
func (s *Server) Health(ctx context.Context) *HealthOutput {
	out := &HealthOutput{
		Status:    "healthy",
		Store:     "memory",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	out.Checks.Comms = s.nc != nil && s.nc.Status() == comms.CONNECTED
	out.Checks.Database = true
	if s.pool != nil {
		out.Store = "postgres"
		out.Checks.Database = s.pool.Ping(ctx) == nil
	}
	if !out.Checks.Comms || !out.Checks.Database {
		out.Status = "unhealthy"
	}
	return out
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()

	h := s.Health(ctx)
	w.Header().Set("Content-Type", "application/json")
	if h.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(h)
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	status := "ready"
	if !s.ready.Load() {
		status = "starting"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
