package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgewright/agentcore/pkg/models"
)

// DefaultFlushInterval matches the production reference's periodic
// checkpoint cadence.
const DefaultFlushInterval = 5 * time.Second

// Runtime tracks a single run's in-flight message state and persists it to
// a Store, skipping writes whose content signature hasn't changed since
// the last successful save.
type Runtime struct {
	store     *Store
	sessionID string
	runID     uuid.UUID
	metadata  map[string]any

	mu             sync.Mutex
	messages       []models.Message
	dirty          bool
	lastSignature  string
	everPersisted  bool
}

// NewRuntime seeds a checkpoint runtime with the baseline messages a run
// starts from (prior checkpoint contents plus the triggering message).
func NewRuntime(store *Store, sessionID string, runID uuid.UUID, baseline []models.Message, metadata map[string]any) *Runtime {
	return &Runtime{
		store:     store,
		sessionID: sessionID,
		runID:     runID,
		metadata:  metadata,
		messages:  append([]models.Message(nil), baseline...),
		dirty:     true,
	}
}

// UpdateMessages replaces the tracked message slice and marks the runtime
// dirty, for invocation from agent-loop hooks after each inference or tool
// execution step.
func (r *Runtime) UpdateMessages(messages []models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append([]models.Message(nil), messages...)
	r.dirty = true
}

// PersistSnapshot writes the current messages if they differ from the last
// persisted signature, or is a no-op otherwise. It is safe to call
// repeatedly, including from a periodic flush ticker and from the final
// terminal-state write.
func (r *Runtime) PersistSnapshot() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.dirty && r.everPersisted {
		return nil
	}

	sig, err := signature(r.messages)
	if err != nil {
		return fmt.Errorf("checkpoint: compute signature: %w", err)
	}

	shouldPersist := !r.everPersisted || (r.dirty && sig != r.lastSignature)
	if !shouldPersist {
		r.dirty = false
		return nil
	}

	runID := r.runID
	env := NewEnvelope(r.sessionID, &runID, r.messages, r.metadata)
	if err := r.store.SaveLatest(r.sessionID, env); err != nil {
		return err
	}

	r.lastSignature = sig
	r.dirty = false
	r.everPersisted = true
	return nil
}

// RunPeriodicFlush persists a snapshot every interval until ctx is
// cancelled. It never returns an error; persist failures are forwarded to
// onError so the caller can log them without tearing down the run.
func (r *Runtime) RunPeriodicFlush(ctx context.Context, interval time.Duration, onError func(error)) {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.PersistSnapshot(); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}
