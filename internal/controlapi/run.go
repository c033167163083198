package controlapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/forgewright/agentcore/internal/agentloop"
)

type runTargetRequest struct {
	RunID string `json:"run_id,omitempty"`
}

func (s *Server) resolveRunID(sessionID uuid.UUID, requested string) (uuid.UUID, error) {
	if requested != "" {
		return uuid.Parse(requested)
	}
	runID, active := s.cfg.Manager.ActiveRunID(sessionID)
	if !active {
		return uuid.UUID{}, newAPIError(http.StatusConflict, "session_not_running", "no active run on this session")
	}
	return runID, nil
}

// handlePostCancel handles POST /v1/sessions/{id}/cancel.
func (s *Server) handlePostCancel(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_session_id", "session id must be a uuid"))
		return
	}

	var req runTargetRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, newAPIError(http.StatusBadRequest, "invalid_request", "malformed request body"))
			return
		}
	}

	runID, err := s.resolveRunID(sessionID, req.RunID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.cfg.Manager.CancelRun(sessionID, runID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type postModelRequest struct {
	RunID string `json:"run_id,omitempty"`
	Model string `json:"model"`
}

// handlePostModel handles POST /v1/sessions/{id}/model, switching the
// model used for subsequent turns of the active run.
func (s *Server) handlePostModel(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_session_id", "session id must be a uuid"))
		return
	}

	var req postModelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_request", "malformed request body"))
		return
	}
	if req.Model == "" {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_request", "model is required"))
		return
	}

	runID, err := s.resolveRunID(sessionID, req.RunID)
	if err != nil {
		writeError(w, err)
		return
	}

	cmd := agentloop.SwitchModelCommand{Model: req.Model}
	if err := s.cfg.Manager.SendCommand(r.Context(), sessionID, runID, cmd); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
