package controlapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/forgewright/agentcore/internal/sessionstore/sqlite"
	"github.com/forgewright/agentcore/pkg/models"
)

type createSessionRequest struct {
	Title string `json:"title"`
	Cwd   string `json:"cwd,omitempty"`
}

type sessionResponse struct {
	models.Session
	Status string `json:"status"`
}

func (s *Server) toSessionResponse(session models.Session) sessionResponse {
	status := "idle"
	if id, err := uuid.Parse(session.ID); err == nil {
		status = string(s.cfg.Manager.State(id).Kind)
	}
	return sessionResponse{Session: session, Status: status}
}

// handleCreateSession handles POST /v1/sessions.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_request", "malformed request body"))
		return
	}
	if req.Title == "" {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_request", "title is required"))
		return
	}

	now := time.Now()
	session := models.Session{
		ID:         uuid.NewString(),
		Title:      req.Title,
		WorkingDir: req.Cwd,
		Visibility: models.VisibilityPrivate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.cfg.Sessions.Create(r.Context(), session); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.toSessionResponse(session))
}

// handleListSessions handles GET /v1/sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	sessions, err := s.cfg.Sessions.List(r.Context(), sqlite.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, s.toSessionResponse(session))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out, "limit": limit, "offset": offset})
}

// handleGetSession handles GET /v1/sessions/{id}.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.cfg.Sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toSessionResponse(session))
}

type patchSessionRequest struct {
	Title      *string             `json:"title,omitempty"`
	Visibility *models.Visibility  `json:"visibility,omitempty"`
}

// handlePatchSession handles PATCH /v1/sessions/{id}.
func (s *Server) handlePatchSession(w http.ResponseWriter, r *http.Request) {
	var req patchSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_request", "malformed request body"))
		return
	}

	updated, err := s.cfg.Sessions.Update(r.Context(), r.PathValue("id"), sqlite.Update{
		Title:      req.Title,
		Visibility: req.Visibility,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toSessionResponse(updated))
}

// handleDeleteSession handles DELETE /v1/sessions/{id}: soft-delete,
// rejected with 409 while a run is active on the session.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sessionID, err := uuid.Parse(id)
	if err == nil {
		if _, active := s.cfg.Manager.ActiveRunID(sessionID); active {
			writeError(w, newAPIError(http.StatusConflict, "session_already_running", "a run is active on this session"))
			return
		}
	}

	if err := s.cfg.Sessions.SoftDelete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
