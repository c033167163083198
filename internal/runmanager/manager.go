package runmanager

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Manager is the in-memory run coordinator for all sessions on this
// process. It is not session metadata storage — that lives in the
// session store — only the single-flight "is a run active, and which
// one" bookkeeping that guards against two runs racing on one session.
type Manager struct {
	mu     sync.RWMutex
	states map[uuid.UUID]State
}

// New creates an empty run manager.
func New() *Manager {
	return &Manager{states: make(map[uuid.UUID]State)}
}

// State returns a session's current run state, defaulting to Idle for a
// session the manager has never seen.
func (m *Manager) State(sessionID uuid.UUID) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[sessionID]
	if !ok {
		return idleState()
	}
	return state
}

// ActiveRunID returns the session's current run ID, if one is
// starting or running.
func (m *Manager) ActiveRunID(sessionID uuid.UUID) (uuid.UUID, bool) {
	return m.State(sessionID).ActiveRunID()
}

// RunningSession pairs a session with its currently running run.
type RunningSession struct {
	SessionID uuid.UUID
	RunID     uuid.UUID
}

// RunningRuns lists every session with a run in the Running state.
// Starting and Failed sessions are excluded.
func (m *Manager) RunningRuns() []RunningSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]RunningSession, 0, len(m.states))
	for sessionID, state := range m.states {
		if state.Kind == Running {
			out = append(out, RunningSession{SessionID: sessionID, RunID: state.RunID})
		}
	}
	return out
}

// SpawnFunc starts a session actor for the given run and returns a handle
// to it, or an error if the actor failed to start.
type SpawnFunc func(runID uuid.UUID) (Handle, error)

// StartRun reserves a new run for a session, then calls spawnActor to
// start it. The reservation (Idle/Failed -> Starting) happens atomically
// under the write lock so two concurrent callers can never both start a
// run for the same session; only one observes success, the other
// ErrSessionAlreadyRunning. spawnActor itself runs without the lock held,
// so a slow actor startup does not block unrelated sessions.
func (m *Manager) StartRun(sessionID uuid.UUID, spawnActor SpawnFunc) (uuid.UUID, error) {
	runID := uuid.New()

	m.mu.Lock()
	if state, ok := m.states[sessionID]; ok && (state.Kind == Starting || state.Kind == Running) {
		m.mu.Unlock()
		return uuid.Nil, ErrSessionAlreadyRunning
	}
	m.states[sessionID] = State{Kind: Starting, RunID: runID}
	m.mu.Unlock()

	handle, err := spawnActor(runID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.states[sessionID] = State{Kind: Failed, LastError: err.Error()}
		return uuid.Nil, &ActorStartupFailedError{Err: err}
	}

	current, ok := m.states[sessionID]
	if !ok || current.Kind != Starting || current.RunID != runID {
		startupErr := errors.New("session state changed before actor startup completed")
		m.states[sessionID] = State{Kind: Failed, LastError: startupErr.Error()}
		return uuid.Nil, &ActorStartupFailedError{Err: startupErr}
	}

	m.states[sessionID] = State{Kind: Running, RunID: runID, Handle: handle}
	return runID, nil
}

// MarkRunFinished transitions a session back to Idle (on success) or
// Failed (on error), but only if runID still matches the session's active
// run — a finished goroutine for a superseded run must not clobber the
// state of whatever replaced it.
func (m *Manager) MarkRunFinished(sessionID, runID uuid.UUID, outcome error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[sessionID]
	switch {
	case ok && (state.Kind == Starting || state.Kind == Running):
		if state.RunID != runID {
			return &RunMismatchError{ActiveRunID: state.RunID, RequestedRunID: runID}
		}
	default:
		return ErrSessionNotRunning
	}

	if outcome == nil {
		m.states[sessionID] = idleState()
	} else {
		m.states[sessionID] = State{Kind: Failed, LastError: outcome.Error()}
	}
	return nil
}

// SendCommand routes a command to the session's active actor, rejecting
// it if the session isn't running, is still starting, or runID no longer
// names the active run.
func (m *Manager) SendCommand(ctx context.Context, sessionID, runID uuid.UUID, command any) error {
	commands, err := m.commandChannelFor(sessionID, runID)
	if err != nil {
		return err
	}

	select {
	case commands <- command:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) commandChannelFor(sessionID, runID uuid.UUID) (chan<- any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[sessionID]
	if !ok {
		return nil, ErrSessionNotRunning
	}

	switch state.Kind {
	case Running:
		if state.RunID != runID {
			return nil, &RunMismatchError{ActiveRunID: state.RunID, RequestedRunID: runID}
		}
		return state.Handle.Commands, nil
	case Starting:
		return nil, ErrSessionStarting
	default:
		return nil, ErrSessionNotRunning
	}
}

// CancelRun cancels the session's active run, rejecting the request if
// runID no longer names it.
func (m *Manager) CancelRun(sessionID, runID uuid.UUID) error {
	m.mu.RLock()
	state, ok := m.states[sessionID]
	m.mu.RUnlock()

	if !ok {
		return ErrSessionNotRunning
	}

	switch state.Kind {
	case Running:
		if state.RunID != runID {
			return &RunMismatchError{ActiveRunID: state.RunID, RequestedRunID: runID}
		}
		state.Handle.Cancel()
		return nil
	case Starting:
		return ErrSessionStarting
	default:
		return ErrSessionNotRunning
	}
}
