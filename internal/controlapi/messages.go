package controlapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/forgewright/agentcore/internal/agentloop"
	"github.com/forgewright/agentcore/internal/checkpoint"
	"github.com/forgewright/agentcore/pkg/models"
)

type messageType string

const (
	messageTypeMessage  messageType = "message"
	messageTypeSteering messageType = "steering"
	messageTypeFollowUp messageType = "follow_up"
)

type postMessageRequest struct {
	Message string      `json:"message"`
	Type    messageType `json:"type,omitempty"`
	RunID   string      `json:"run_id,omitempty"`
	Model   string      `json:"model,omitempty"`
}

type postMessageResponse struct {
	RunID string `json:"run_id"`
}

// handlePostMessage handles POST /v1/sessions/{id}/messages. A plain
// "message" starts a new run; "steering" injects into the active one;
// "follow_up" does either depending on whether a run is currently active —
// the SteeringMessage/FollowUpMessage distinction inside the loop only
// matters once a run exists to inject into.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_session_id", "session id must be a uuid"))
		return
	}

	var req postMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_request", "malformed request body"))
		return
	}
	if req.Message == "" {
		writeError(w, newAPIError(http.StatusBadRequest, "invalid_request", "message is required"))
		return
	}
	if req.Type == "" {
		req.Type = messageTypeMessage
	}

	if _, err := s.cfg.Sessions.Get(r.Context(), sessionID.String()); err != nil {
		writeError(w, err)
		return
	}

	activeRunID, active := s.cfg.Manager.ActiveRunID(sessionID)

	if (req.Type == messageTypeSteering) || (req.Type == messageTypeFollowUp && active) {
		if !active {
			writeError(w, newAPIError(http.StatusConflict, "session_not_running", "no active run to steer"))
			return
		}
		runID := activeRunID
		if req.RunID != "" {
			if runID, err = uuid.Parse(req.RunID); err != nil {
				writeError(w, newAPIError(http.StatusBadRequest, "invalid_request", "run_id must be a uuid"))
				return
			}
		}
		cmd := agentloop.InjectSteeringMessageCommand{
			Message: agentloop.SteeringMessage{Content: req.Message, Role: string(models.RoleUser)},
		}
		if err := s.cfg.Manager.SendCommand(r.Context(), sessionID, runID, cmd); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, postMessageResponse{RunID: runID.String()})
		return
	}

	// type=message, or type=follow_up with nothing currently running: start a new run.
	if active {
		writeError(w, newAPIError(http.StatusConflict, "session_already_running", "a run is already active"))
		return
	}

	triggering := models.Message{
		SessionID: sessionID.String(),
		Role:      models.RoleUser,
		Parts:     []models.Part{models.TextPart(req.Message)},
		CreatedAt: time.Now(),
	}

	runID, err := s.cfg.Manager.StartRun(sessionID, s.cfg.Actor.Launch(r.Context(), sessionID, triggering))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, postMessageResponse{RunID: runID.String()})
}

type messagesResponse struct {
	Messages []models.Message `json:"messages"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// handleGetMessages handles GET /v1/sessions/{id}/messages, paginating
// the session's latest checkpointed history.
func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	env, err := s.cfg.Checkpoints.LoadLatest(id)
	if errors.Is(err, checkpoint.ErrNotFound) {
		writeJSON(w, http.StatusOK, messagesResponse{Messages: []models.Message{}, Limit: limit, Offset: offset})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	total := len(env.Messages)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	writeJSON(w, http.StatusOK, messagesResponse{
		Messages: env.Messages[start:end],
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}
