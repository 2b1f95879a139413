package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aristath/portfolio-advisor/internal/scheduler"
)

// handleHealth checks every database
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.databases))

	for _, db := range s.databases {
		if err := db.HealthCheck(r.Context()); err != nil {
			s.log.Warn().Err(err).Str("database", db.Name()).Msg("Health check failed")
			checks[db.Name()] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[db.Name()] = "ok"
	}

	health := "healthy"
	if status != http.StatusOK {
		health = "degraded"
	}

	response := map[string]interface{}{
		"status":    health,
		"service":   "portfolio-advisor",
		"databases": checks,
	}
	if s.runs != nil {
		response["run_in_progress"] = s.runs.Running()
	}

	s.writeJSON(w, status, response)
}

// handleLatestRun returns the report of the last finished run
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "runs are not available")
		return
	}

	report := s.runs.Latest()
	if report == nil {
		s.writeError(w, http.StatusNotFound, "no run has finished yet")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// handleStartRun starts a run in the background
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "runs are not available")
		return
	}

	if err := s.runs.Start(s.baseCtx); err != nil {
		if errors.Is(err, scheduler.ErrRunInProgress) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
