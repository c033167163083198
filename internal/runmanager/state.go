// Package runmanager coordinates the single in-flight run per session: it
// decides whether a new run may start, tracks which run is currently
// active, and routes run-scoped commands and cancellation to the right
// actor while rejecting anything addressed to a stale run.
package runmanager

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind identifies which variant of State a session is in.
type Kind int

const (
	Idle Kind = iota
	Starting
	Running
	Failed
)

func (k Kind) String() string {
	switch k {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Handle is everything the run manager needs to route commands and
// cancellation to a running session actor. Commands is a channel the
// actor drains; Cancel must be idempotent.
type Handle struct {
	Commands chan<- any
	Cancel   func()
}

// State is a session's current run-coordination state. Only the fields
// relevant to Kind are populated: RunID for Starting/Running, Handle for
// Running, LastError for Failed.
type State struct {
	Kind      Kind
	RunID     uuid.UUID
	Handle    Handle
	LastError string
}

// RunID returns the active run ID for Starting/Running states, or false
// otherwise.
func (s State) ActiveRunID() (uuid.UUID, bool) {
	switch s.Kind {
	case Starting, Running:
		return s.RunID, true
	default:
		return uuid.Nil, false
	}
}

func idleState() State { return State{Kind: Idle} }

func (s State) String() string {
	switch s.Kind {
	case Starting:
		return fmt.Sprintf("starting(run_id=%s)", s.RunID)
	case Running:
		return fmt.Sprintf("running(run_id=%s)", s.RunID)
	case Failed:
		return fmt.Sprintf("failed(last_error=%s)", s.LastError)
	default:
		return "idle"
	}
}
