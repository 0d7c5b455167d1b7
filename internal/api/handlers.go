package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ndomo/wasend/internal/pacing"
	"github.com/ndomo/wasend/internal/session"
)

// HealthResponse is the response for GET /healthz
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// StatusResponse is the response for GET /status
type StatusResponse struct {
	Running bool           `json:"running"`
	Session *session.Stats `json:"session,omitempty"`
	Pacing  PacingStatus   `json:"pacing"`
}

// PacingStatus summarizes the pacing policy state.
type PacingStatus struct {
	Allowed     bool             `json:"allowed"`
	Reason      string           `json:"reason,omitempty"`
	RetryAfter  string           `json:"retry_after,omitempty"`
	Risk        pacing.RiskLevel `json:"risk"`
	RiskFactors []string         `json:"risk_factors,omitempty"`
	Usage       pacing.Usage     `json:"usage"`
}

// ControlResponse is the response for the pause/resume/cancel endpoints.
type ControlResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleStatus handles GET /status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Pacing: s.pacingStatus()}

	if st, ok := s.runner.Snapshot(); ok {
		resp.Running = true
		resp.Session = &st
	}

	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) pacingStatus() PacingStatus {
	d := s.policy.CanSend()
	risk, factors := s.policy.Risk()

	ps := PacingStatus{
		Allowed:     d.Allowed,
		Reason:      d.Reason,
		Risk:        risk,
		RiskFactors: factors,
		Usage:       s.policy.Usage(),
	}
	if d.RetryAfter > 0 {
		ps.RetryAfter = d.RetryAfter.Round(time.Second).String()
	}
	return ps
}

// handleSessions handles GET /sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.sessions.ListAll()
	if err != nil {
		s.logger.Error("failed to list sessions", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	s.sendJSON(w, http.StatusOK, summaries)
}

// handlePause handles POST /pause
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.runner.Snapshot(); !ok {
		s.sendError(w, http.StatusConflict, "No campaign in progress")
		return
	}
	s.runner.Pause()
	s.sendJSON(w, http.StatusOK, ControlResponse{Status: "paused"})
}

// handleResume handles POST /resume
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.runner.Snapshot(); !ok {
		s.sendError(w, http.StatusConflict, "No campaign in progress")
		return
	}
	s.runner.Resume()
	s.sendJSON(w, http.StatusOK, ControlResponse{Status: "running"})
}

// handleCancel handles POST /cancel
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.runner.Snapshot(); !ok {
		s.sendError(w, http.StatusConflict, "No campaign in progress")
		return
	}
	s.runner.Cancel()
	s.sendJSON(w, http.StatusOK, ControlResponse{Status: "cancelling"})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
