package pendingtools

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a (run, tool call) pair has no pending
// proposal — either it was never proposed, or it has already been
// resolved once.
var ErrNotFound = errors.New("pendingtools: not found")

// Proposed is a tool call a run has asked to execute but that is waiting
// on an approval decision before the tool executor will dispatch it.
type Proposed struct {
	SessionID  uuid.UUID
	RunID      uuid.UUID
	ToolCallID string
	ToolName   string
	Args       json.RawMessage
	Reason     string
	CreatedAt  time.Time
}

type key struct {
	runID      uuid.UUID
	toolCallID string
}

// Registry holds tool calls awaiting a decision, scoped per run. A call
// can be resolved at most once: Resolve removes it from the registry and
// returns it, so a second Resolve for the same call returns ErrNotFound.
type Registry struct {
	mu      sync.Mutex
	pending map[key]Proposed
}

// New creates an empty pending-tool registry.
func New() *Registry {
	return &Registry{pending: make(map[key]Proposed)}
}

// Propose records a tool call awaiting a decision.
func (r *Registry) Propose(p Proposed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	r.pending[key{runID: p.RunID, toolCallID: p.ToolCallID}] = p
}

// Get returns a pending proposal without resolving it.
func (r *Registry) Get(runID uuid.UUID, toolCallID string) (Proposed, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[key{runID: runID, toolCallID: toolCallID}]
	return p, ok
}

// ListForRun returns every pending proposal for a run, in no particular
// order.
func (r *Registry) ListForRun(runID uuid.UUID) []Proposed {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Proposed, 0)
	for k, p := range r.pending {
		if k.runID == runID {
			out = append(out, p)
		}
	}
	return out
}

// Resolve removes and returns a pending proposal, so it is safe to call
// the resulting decision through exactly once. ErrNotFound means the call
// was never proposed, already resolved, or already cleared.
func (r *Registry) Resolve(runID uuid.UUID, toolCallID string) (Proposed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{runID: runID, toolCallID: toolCallID}
	p, ok := r.pending[k]
	if !ok {
		return Proposed{}, ErrNotFound
	}
	delete(r.pending, k)
	return p, nil
}

// Clear discards every pending proposal for a run, for end-of-run
// cleanup so a crashed or cancelled run doesn't leak entries forever.
func (r *Registry) Clear(runID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.pending {
		if k.runID == runID {
			delete(r.pending, k)
		}
	}
}
