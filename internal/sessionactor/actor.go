// Package sessionactor launches the per-run goroutine that drives one
// session's turn loop: it resumes from the last checkpoint, runs
// agentloop.Loop to completion or cancellation, flushes progress
// periodically, and reports back to runmanager.Manager when the run ends.
package sessionactor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgewright/agentcore/internal/agentloop"
	"github.com/forgewright/agentcore/internal/checkpoint"
	"github.com/forgewright/agentcore/internal/eventbus"
	"github.com/forgewright/agentcore/internal/observability"
	"github.com/forgewright/agentcore/internal/pendingtools"
	"github.com/forgewright/agentcore/internal/runmanager"
	"github.com/forgewright/agentcore/internal/toolexec"
	"github.com/forgewright/agentcore/pkg/models"
)

// commandBuffer sizes the raw inbound command channel handed to
// runmanager.Handle; it only needs enough slack to absorb a burst of
// tool-decision or steering commands between loop turns.
const commandBuffer = 16

// Deps are the actor's collaborators. They are shared across every run the
// Actor spawns; per-run state (history, command channel, checkpoint
// runtime) is built fresh inside Launch.
type Deps struct {
	Bus           *eventbus.Bus
	Checkpoints   *checkpoint.Store
	Manager       *runmanager.Manager
	Pending       *pendingtools.Registry
	Provider      agentloop.LLMProvider
	Executor      *toolexec.Executor
	Logger        *observability.Logger
	Metrics       *observability.Metrics
	LoopConfig    agentloop.Config
	FlushInterval time.Duration
}

// Actor launches session-runtime actors: one goroutine per run, wired to
// checkpoint persistence, the turn loop, and the run manager's lifecycle.
type Actor struct {
	deps Deps
}

// New builds an Actor, applying the platform default flush interval when
// the caller leaves it unset.
func New(deps Deps) *Actor {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = checkpoint.DefaultFlushInterval
	}
	return &Actor{deps: deps}
}

// Launch builds a runmanager.SpawnFunc for one session run. The returned
// func loads the session's prior checkpoint (if any) as baseline history,
// appends triggering, and drives the turn loop in a background goroutine,
// returning immediately with a Handle. Pass the result directly to
// runmanager.Manager.StartRun.
func (a *Actor) Launch(parent context.Context, sessionID uuid.UUID, triggering models.Message) runmanager.SpawnFunc {
	return func(runID uuid.UUID) (runmanager.Handle, error) {
		baseline, metadata, err := a.loadBaseline(sessionID)
		if err != nil {
			return runmanager.Handle{}, err
		}

		runtime := checkpoint.NewRuntime(a.deps.Checkpoints, sessionID.String(), runID, baseline, metadata)

		runCtx, cancel := context.WithCancel(parent)
		rawCommands := make(chan any, commandBuffer)
		loopCommands := make(chan agentloop.Command, commandBuffer)

		go forwardCommands(runCtx, rawCommands, loopCommands)
		go a.run(runCtx, cancel, runtime, sessionID, runID, baseline, triggering, loopCommands)

		return runmanager.Handle{Commands: rawCommands, Cancel: cancel}, nil
	}
}

// loadBaseline resolves the history a new run resumes from. A missing
// checkpoint is a fresh session, not an error; a corrupt one is logged and
// discarded rather than blocking the run from starting at all.
func (a *Actor) loadBaseline(sessionID uuid.UUID) ([]models.Message, map[string]any, error) {
	env, err := a.deps.Checkpoints.LoadLatest(sessionID.String())
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		return nil, nil, nil
	case err == nil:
		return env.Messages, env.Metadata, nil
	}

	var corrupt *checkpoint.ErrCorrupt
	if errors.As(err, &corrupt) {
		if a.deps.Logger != nil {
			a.deps.Logger.Warn(context.Background(), "discarding corrupt checkpoint", "session_id", sessionID.String(), "error", err)
		}
		return nil, nil, nil
	}
	return nil, nil, err
}

// forwardCommands drains the any-typed channel runmanager routes external
// commands through and republishes only well-typed agentloop.Command
// values to the loop, so a malformed or stale command can never panic the
// run goroutine.
func forwardCommands(ctx context.Context, raw <-chan any, out chan<- agentloop.Command) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-raw:
			if !ok {
				return
			}
			c, ok := cmd.(agentloop.Command)
			if !ok {
				continue
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (a *Actor) run(ctx context.Context, cancel context.CancelFunc, runtime *checkpoint.Runtime, sessionID, runID uuid.UUID, baseline []models.Message, triggering models.Message, commands <-chan agentloop.Command) {
	defer cancel()

	flushCtx, stopFlush := context.WithCancel(context.Background())
	defer stopFlush()
	go runtime.RunPeriodicFlush(flushCtx, a.deps.FlushInterval, func(err error) {
		if a.deps.Logger != nil {
			a.deps.Logger.Error(ctx, "checkpoint flush failed", "session_id", sessionID.String(), "run_id", runID.String(), "error", err)
		}
	})

	loop := agentloop.NewLoop(a.deps.Provider, a.deps.Executor, a.deps.Bus, a.deps.Pending, a.hooks(sessionID, runID, runtime), a.deps.LoopConfig)
	run := agentloop.RunContext{SessionID: sessionID, RunID: runID}

	outcome := loop.Run(ctx, run, baseline, triggering, commands)

	runtime.UpdateMessages(outcome.History)
	if err := runtime.PersistSnapshot(); err != nil && a.deps.Logger != nil {
		a.deps.Logger.Error(ctx, "final checkpoint persist failed", "session_id", sessionID.String(), "run_id", runID.String(), "error", err)
	}
	if a.deps.Pending != nil {
		a.deps.Pending.Clear(runID)
	}
	if a.deps.Metrics != nil {
		a.deps.Metrics.RecordRunAttempt(string(outcome.Phase))
	}

	var outcomeErr error
	if outcome.Phase == agentloop.PhaseFailed {
		outcomeErr = outcome.Err
	}
	if err := a.deps.Manager.MarkRunFinished(sessionID, runID, outcomeErr); err != nil && a.deps.Logger != nil {
		a.deps.Logger.Error(ctx, "mark run finished failed", "session_id", sessionID.String(), "run_id", runID.String(), "error", err)
	}
}

// hooks builds the agentloop.Hooks that shadow the loop's internal history
// into the checkpoint runtime turn by turn, so the periodic flush ticker
// has something fresher than the run's starting baseline to persist if the
// process dies mid-run. The authoritative final snapshot is still written
// from outcome.History once Run returns.
func (a *Actor) hooks(sessionID, runID uuid.UUID, runtime *checkpoint.Runtime) agentloop.Hooks {
	var mu sync.Mutex
	var shadow []models.Message

	appendAndPersist := func(msg models.Message) {
		mu.Lock()
		shadow = append(shadow, msg)
		snapshot := append([]models.Message(nil), shadow...)
		mu.Unlock()
		runtime.UpdateMessages(snapshot)
	}

	return agentloop.Hooks{
		AfterInference: func(ctx context.Context, text string, toolCalls []agentloop.ProposedToolCall) error {
			parts := make([]models.Part, 0, len(toolCalls)+1)
			if text != "" {
				parts = append(parts, models.TextPart(text))
			}
			for _, tc := range toolCalls {
				parts = append(parts, models.ToolCallPart(tc.ID, tc.Name, tc.Arguments, nil))
			}
			if len(parts) > 0 {
				appendAndPersist(models.Message{SessionID: sessionID.String(), Role: models.RoleAssistant, Parts: parts, CreatedAt: time.Now()})
			}
			return nil
		},
		AfterToolExecution: func(ctx context.Context, call agentloop.ProposedToolCall, result toolexec.Result) {
			body := result.Output
			if result.Outcome == toolexec.Cancelled {
				body = "TOOL_CALL_CANCELLED"
			}
			raw, _ := json.Marshal(body)
			appendAndPersist(models.Message{
				SessionID: sessionID.String(),
				Role:      models.RoleTool,
				Parts:     []models.Part{models.ToolResultPart(call.ID, raw, result.IsError)},
				CreatedAt: time.Now(),
			})
			if a.deps.Metrics != nil {
				a.deps.Metrics.RecordToolExecution(call.Name, toolOutcomeLabel(result), result.Duration.Seconds())
			}
		},
		OnError: func(ctx context.Context, phase agentloop.Phase, turn int, err error) {
			if a.deps.Logger != nil {
				a.deps.Logger.Error(ctx, "run failed", "session_id", sessionID.String(), "run_id", runID.String(), "phase", string(phase), "turn", turn, "error", err)
			}
			if a.deps.Metrics != nil {
				a.deps.Metrics.RecordError("sessionactor", string(phase))
			}
		},
	}
}

func toolOutcomeLabel(r toolexec.Result) string {
	switch {
	case r.Outcome == toolexec.Cancelled:
		return "cancelled"
	case r.IsError:
		return "error"
	default:
		return "ok"
	}
}
