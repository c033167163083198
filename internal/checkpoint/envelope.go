// Package checkpoint persists the per-session message snapshot a run
// resumes from: one JSON envelope per session, written atomically and
// skipped when nothing has actually changed since the last write.
package checkpoint

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/forgewright/agentcore/pkg/models"
)

// Envelope is the durable snapshot of a session's message history at a
// point in time, tagged with the run that produced it.
type Envelope struct {
	Version   int             `json:"version"`
	SessionID string          `json:"session_id"`
	RunID     *uuid.UUID      `json:"run_id,omitempty"`
	Messages  []models.Message `json:"messages"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

const currentVersion = 1

// NewEnvelope builds an envelope ready to persist.
func NewEnvelope(sessionID string, runID *uuid.UUID, messages []models.Message, metadata map[string]any) Envelope {
	return Envelope{
		Version:   currentVersion,
		SessionID: sessionID,
		RunID:     runID,
		Messages:  messages,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
}

// signature returns a stable fingerprint of the envelope's messages, used
// to detect whether a new write would actually change anything on disk.
func signature(messages []models.Message) (string, error) {
	data, err := json.Marshal(messages)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
