package runmanager

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrSessionAlreadyRunning is returned by StartRun when the session
	// already has a run starting or running.
	ErrSessionAlreadyRunning = errors.New("runmanager: session already running")
	// ErrSessionStarting is returned when a command targets a session
	// whose actor has not finished starting yet.
	ErrSessionStarting = errors.New("runmanager: session is starting")
	// ErrSessionNotRunning is returned when a command targets a session
	// with no active run.
	ErrSessionNotRunning = errors.New("runmanager: session is not running")
	// ErrCommandChannelClosed is returned when the actor's command
	// channel has already been closed.
	ErrCommandChannelClosed = errors.New("runmanager: command channel closed")
)

// RunMismatchError is returned when a caller addresses a command or
// cancellation to a run ID that is no longer (or not yet) the session's
// active run.
type RunMismatchError struct {
	ActiveRunID    uuid.UUID
	RequestedRunID uuid.UUID
}

func (e *RunMismatchError) Error() string {
	return fmt.Sprintf("runmanager: run mismatch: active=%s requested=%s", e.ActiveRunID, e.RequestedRunID)
}

// ActorStartupFailedError wraps the error returned by a spawnActor
// callback passed to StartRun.
type ActorStartupFailedError struct {
	Err error
}

func (e *ActorStartupFailedError) Error() string {
	return fmt.Sprintf("runmanager: actor startup failed: %v", e.Err)
}

func (e *ActorStartupFailedError) Unwrap() error { return e.Err }
