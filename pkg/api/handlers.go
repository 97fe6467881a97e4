package api

import (
	"encoding/json"
	"net/http"

	"github.com/edgewarden/edgewarden/pkg/sysinfo"
)

func (s *Server) handleHealthy(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleResolution(w http.ResponseWriter, r *http.Request) {
	resolution := s.ctrl.LastResolution()
	if resolution == nil {
		s.respondError(w, http.StatusNotFound, "no resolution recorded yet")
		return
	}
	s.respondJSON(w, http.StatusOK, resolution)
}

func (s *Server) handleFacts(w http.ResponseWriter, r *http.Request) {
	facts, err := s.ctrl.Facts(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Facts probe failed")
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, facts)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, sysinfo.Collect())
}

// handleResolve triggers a reconciliation cycle and returns its
// resolution. An invalid resolution is still a 200: validity is part of
// the result, not a transport failure.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	resolution, err := s.ctrl.TriggerResolve(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Triggered resolution failed")
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resolution)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
