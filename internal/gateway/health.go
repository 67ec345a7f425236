package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string `json:"status"` // "ok" or "degraded"
	Uptime string `json:"uptime"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 if the repository answers a ping, 503 otherwise.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status: "ok",
			Uptime: time.Since(s.startedAt).Round(time.Second).String(),
		}

		if s.repo != nil {
			if err := s.repo.Ping(r.Context()); err != nil {
				s.logger.Warn("health ping failed", "error", err)
				resp.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == "degraded" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
