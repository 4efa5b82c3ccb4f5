package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/docbot/internal/policy"
	"github.com/ent0n29/docbot/internal/session"
)

// sessionView is what operators see of a conversation. Pending document
// bytes and passwords never leave the process.
type sessionView struct {
	Sender     string           `json:"sender"`
	State      session.State    `json:"state"`
	Intent     string           `json:"intent,omitempty"`
	Files      int              `json:"files"`
	HasPending bool             `json:"has_pending"`
	Pending    *session.Payload `json:"pending,omitempty"`
	Params     session.Params   `json:"params"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func viewOf(s *session.Session) sessionView {
	return sessionView{
		Sender:     policy.MaskSender(s.SenderID),
		State:      s.State,
		Intent:     string(s.Intent),
		Files:      len(s.Files),
		HasPending: s.Pending != nil,
		Pending:    s.Pending,
		Params:     s.Params,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

func (s *Server) sender(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.deps.Sessions == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "session store not configured")
		return "", false
	}
	id := strings.TrimSpace(chi.URLParam(r, "sender"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_sender", "missing sender id")
		return "", false
	}
	return id, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sender(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, viewOf(s.deps.Sessions.GetOrCreate(id)))
}

// handlePatchSession lets an operator nudge a stuck conversation, e.g. set a
// parameter or move it back to idle. Unknown fields are ignored.
func (s *Server) handlePatchSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sender(w, r)
	if !ok {
		return
	}
	var fields map[string]any
	if err := decodeJSON(r, &fields); err != nil {
		if errors.Is(err, errEmptyBody) {
			respondError(w, http.StatusBadRequest, "invalid_request", "request body is required")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	updated := s.deps.Sessions.ApplyFields(id, fields)
	s.logger.Info("session patched by operator", "sender", policy.MaskSender(id), "fields", len(fields))
	respondJSON(w, http.StatusOK, viewOf(updated))
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sender(w, r)
	if !ok {
		return
	}
	cleared := s.deps.Sessions.Clear(id)
	s.deps.Metrics.SessionEvent("reset_by_operator")
	s.logger.Info("session reset by operator", "sender", policy.MaskSender(id))
	respondJSON(w, http.StatusOK, viewOf(cleared))
}
