package controlapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/forgewright/agentcore/internal/agentloop"
)

type pendingToolResponse struct {
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Args       json.RawMessage `json:"args"`
	Reason     string          `json:"reason"`
}

// handleGetPendingTools handles GET /v1/sessions/{id}/tools/pending: every
// tool call awaiting a decision on the session's active run.
func (s *Server) handleGetPendingTools(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_session_id", "session id must be a uuid"))
		return
	}
	runID, active := s.cfg.Manager.ActiveRunID(sessionID)
	if !active {
		writeJSON(w, http.StatusOK, map[string]any{"run_id": nil, "pending": []pendingToolResponse{}})
		return
	}

	proposed := s.cfg.Pending.ListForRun(runID)
	out := make([]pendingToolResponse, 0, len(proposed))
	for _, p := range proposed {
		out = append(out, pendingToolResponse{
			ToolCallID: p.ToolCallID,
			ToolName:   p.ToolName,
			Args:       p.Args,
			Reason:     p.Reason,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID.String(), "pending": out})
}

type toolDecisionRequest struct {
	Action string `json:"action"`
	Result string `json:"result,omitempty"`
}

type postToolDecisionsRequest struct {
	RunID     string                         `json:"run_id,omitempty"`
	Decisions map[string]toolDecisionRequest `json:"decisions"`
}

// handlePostToolDecisions handles POST /v1/sessions/{id}/tools/decisions,
// resolving one or more pending tool calls on the active run.
func (s *Server) handlePostToolDecisions(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_session_id", "session id must be a uuid"))
		return
	}

	var req postToolDecisionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_request", "malformed request body"))
		return
	}
	if len(req.Decisions) == 0 {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_request", "decisions is required"))
		return
	}

	activeRunID, active := s.cfg.Manager.ActiveRunID(sessionID)
	runID := activeRunID
	if req.RunID != "" {
		if runID, err = uuid.Parse(req.RunID); err != nil {
			writeError(w, newAPIError(http.StatusBadRequest, "invalid_request", "run_id must be a uuid"))
			return
		}
	} else if !active {
		writeError(w, newAPIError(http.StatusConflict, "session_not_running", "no active run to resolve tools for"))
		return
	}

	decisions := make(map[string]agentloop.ToolDecision, len(req.Decisions))
	for id, d := range req.Decisions {
		action := agentloop.ToolAction(d.Action)
		switch action {
		case agentloop.ActionAccept, agentloop.ActionReject, agentloop.ActionCustomResult:
		default:
			writeError(w, newAPIError(http.StatusBadRequest, "invalid_request", "unknown action: "+d.Action))
			return
		}
		decisions[id] = agentloop.ToolDecision{Action: action, Result: d.Result}
	}

	cmd := agentloop.ResolveToolsCommand{RunID: runID, Decisions: decisions}
	if err := s.cfg.Manager.SendCommand(r.Context(), sessionID, runID, cmd); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleToolMetrics handles GET /v1/sessions/{id}/tools/metrics, exposing
// the process-wide tool executor counters (not scoped per-session, since
// toolexec.Executor aggregates across every run it dispatches for).
func (s *Server) handleToolMetrics(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Executor == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Executor.Metrics())
}
