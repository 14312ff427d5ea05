package server

import (
	"encoding/json"
	"net/http"
	"time"

	"deployhook/internal/auth"
	"deployhook/internal/pipeline"
)

// HandlePipeline runs the configured pipeline.
func (s *Server) HandlePipeline(w http.ResponseWriter, r *http.Request) {
	run := s.Orchestrator.Run(r.Context(), s.opts.Steps, auth.ClientIP(r))
	status, env := FromRun(run)
	s.respondJSON(w, status, env)
}

// stepHandler runs a single step and reports it under label.
func (s *Server) stepHandler(label string, step pipeline.Step) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := s.Orchestrator.Executor().Execute(r.Context(), step)
		status, env := FromStep(label, result)
		s.respondJSON(w, status, env)
	}
}

// HandleHealth reports the environment, server time and route prefix.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, NewEnvelope(true, MessageHealthy, map[string]any{
		"app_env":      s.opts.AppEnv,
		"timestamp":    s.now().Format(time.RFC3339),
		"route_prefix": s.opts.Prefix,
	}))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusNotFound, FromDenial(http.StatusNotFound))
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}
