package runmanager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeHandle() (Handle, chan any) {
	commands := make(chan any, 8)
	return Handle{Commands: commands, Cancel: func() {}}, commands
}

func TestStartRunIsAtomicUnderConcurrency(t *testing.T) {
	m := New()
	sessionID := uuid.New()

	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make(chan error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := m.StartRun(sessionID, func(uuid.UUID) (Handle, error) {
				time.Sleep(10 * time.Millisecond)
				h, _ := makeHandle()
				return h, nil
			})
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	successes, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrSessionAlreadyRunning):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
}

func TestSendCommandRejectsStaleRunID(t *testing.T) {
	m := New()
	sessionID := uuid.New()

	handle, _ := makeHandle()
	runID, err := m.StartRun(sessionID, func(uuid.UUID) (Handle, error) { return handle, nil })
	require.NoError(t, err)

	wrongRunID := uuid.New()
	err = m.SendCommand(context.Background(), sessionID, wrongRunID, "cancel")

	var mismatch *RunMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, runID, mismatch.ActiveRunID)
	assert.Equal(t, wrongRunID, mismatch.RequestedRunID)
}

func TestSendCommandAcceptsActiveRunID(t *testing.T) {
	m := New()
	sessionID := uuid.New()

	handle, commands := makeHandle()
	runID, err := m.StartRun(sessionID, func(uuid.UUID) (Handle, error) { return handle, nil })
	require.NoError(t, err)

	require.NoError(t, m.SendCommand(context.Background(), sessionID, runID, "cancel"))

	select {
	case cmd := <-commands:
		assert.Equal(t, "cancel", cmd)
	case <-time.After(50 * time.Millisecond):
		t.Fatal("did not receive command in time")
	}
}

func TestRunningRunsListsOnlyRunningSessions(t *testing.T) {
	m := New()
	runningSession := uuid.New()
	finishedSession := uuid.New()

	runningHandle, _ := makeHandle()
	runningRunID, err := m.StartRun(runningSession, func(uuid.UUID) (Handle, error) { return runningHandle, nil })
	require.NoError(t, err)

	finishedHandle, _ := makeHandle()
	finishedRunID, err := m.StartRun(finishedSession, func(uuid.UUID) (Handle, error) { return finishedHandle, nil })
	require.NoError(t, err)

	require.NoError(t, m.MarkRunFinished(finishedSession, finishedRunID, nil))

	running := m.RunningRuns()
	require.Len(t, running, 1)
	assert.Equal(t, RunningSession{SessionID: runningSession, RunID: runningRunID}, running[0])
}

func TestStartupFailureTransitionsToFailedState(t *testing.T) {
	m := New()
	sessionID := uuid.New()

	_, err := m.StartRun(sessionID, func(uuid.UUID) (Handle, error) {
		return Handle{}, errors.New("boom")
	})

	var startupErr *ActorStartupFailedError
	require.ErrorAs(t, err, &startupErr)

	state := m.State(sessionID)
	assert.Equal(t, Failed, state.Kind)
	assert.Equal(t, "boom", state.LastError)
}

func TestMarkRunFinishedRequiresActiveRunMatch(t *testing.T) {
	m := New()
	sessionID := uuid.New()

	handle, _ := makeHandle()
	runID, err := m.StartRun(sessionID, func(uuid.UUID) (Handle, error) { return handle, nil })
	require.NoError(t, err)

	wrongRunID := uuid.New()
	err = m.MarkRunFinished(sessionID, wrongRunID, nil)
	var mismatch *RunMismatchError
	require.ErrorAs(t, err, &mismatch)

	require.NoError(t, m.MarkRunFinished(sessionID, runID, nil))
	assert.Equal(t, Idle, m.State(sessionID).Kind)
}

func TestCancelRunRequiresActiveRunMatchAndCancelsHandle(t *testing.T) {
	m := New()
	sessionID := uuid.New()

	cancelled := false
	handle := Handle{
		Commands: make(chan any, 1),
		Cancel:   func() { cancelled = true },
	}

	runID, err := m.StartRun(sessionID, func(uuid.UUID) (Handle, error) { return handle, nil })
	require.NoError(t, err)

	require.NoError(t, m.CancelRun(sessionID, runID))
	assert.True(t, cancelled)
}

func TestCancelRunRejectsStaleRunID(t *testing.T) {
	m := New()
	sessionID := uuid.New()

	handle, _ := makeHandle()
	_, err := m.StartRun(sessionID, func(uuid.UUID) (Handle, error) { return handle, nil })
	require.NoError(t, err)

	err = m.CancelRun(sessionID, uuid.New())
	var mismatch *RunMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestSendCommandToIdleSessionReturnsNotRunning(t *testing.T) {
	m := New()
	err := m.SendCommand(context.Background(), uuid.New(), uuid.New(), "cancel")
	assert.ErrorIs(t, err, ErrSessionNotRunning)
}
