// Package eventbus provides per-session, monotonically ordered event logs
// with replay-aware live subscription.
package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the payload carried by an Event.
type Kind string

const (
	KindRunStarted        Kind = "run.started"
	KindRunFinished       Kind = "run.finished"
	KindRunError          Kind = "run.error"
	KindRunCancelled      Kind = "run.cancelled"
	KindTurnStarted       Kind = "turn.started"
	KindTurnFinished      Kind = "turn.finished"
	KindModelDelta        Kind = "model.delta"
	KindToolCallProposed  Kind = "tool.proposed"
	KindToolApprovalAsked Kind = "tool.approval_required"
	KindToolStarted       Kind = "tool.started"
	KindToolFinished      Kind = "tool.finished"
	KindToolCancelled     Kind = "tool.cancelled"
	KindSteeringInjected  Kind = "steering.injected"
	KindCheckpointSaved   Kind = "checkpoint.saved"
	KindGapDetected       Kind = "gap_detected"
)

// Event is one entry in a session's ordered event log. ID is monotonic and
// unique within a session, assigned by the Bus at publish time.
type Event struct {
	ID        uint64         `json:"id"`
	SessionID string         `json:"session_id"`
	RunID     *uuid.UUID     `json:"run_id,omitempty"`
	Kind      Kind           `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}
