// Package agentloop implements the turn-by-turn state machine that drives
// one run: inference, tool-call proposal, suspension for approval
// decisions, tool execution, and repeat until the model stops calling
// tools or the turn budget is exhausted.
package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forgewright/agentcore/internal/backoff"
	"github.com/forgewright/agentcore/internal/eventbus"
	"github.com/forgewright/agentcore/internal/pendingtools"
	"github.com/forgewright/agentcore/internal/reducer"
	"github.com/forgewright/agentcore/internal/toolexec"
	"github.com/forgewright/agentcore/pkg/models"
)

// RunContext identifies the session/run a Loop invocation belongs to, for
// event publication and pending-tool registry scoping.
type RunContext struct {
	SessionID uuid.UUID
	RunID     uuid.UUID
}

// Outcome is the terminal result of a Loop run.
type Outcome struct {
	Phase      Phase
	History    []models.Message
	TotalTurns int
	Err        error
}

// Loop runs the turn algorithm for one run, emitting events to bus and
// tracking proposed tool calls in pending. Provider and executor are
// supplied by the caller (session actor) so a Loop has no lifecycle of
// its own beyond one Run call.
type Loop struct {
	Provider LLMProvider
	Executor *toolexec.Executor
	Bus      *eventbus.Bus
	Pending  *pendingtools.Registry
	Hooks    Hooks
	Config   Config
}

// NewLoop builds a Loop from its collaborators. Hooks and Config may be
// zero-valued; Config is sanitized to platform defaults.
func NewLoop(provider LLMProvider, executor *toolexec.Executor, bus *eventbus.Bus, pending *pendingtools.Registry, hooks Hooks, cfg Config) *Loop {
	return &Loop{
		Provider: provider,
		Executor: executor,
		Bus:      bus,
		Pending:  pending,
		Hooks:    hooks,
		Config:   sanitizeConfig(cfg),
	}
}

// Run drives one run to completion, cancellation, or failure. baseline is
// the working history before the triggering message (e.g. the session's
// checkpointed history); triggering is appended once, at turn 0. commands
// delivers Cancel/SwitchModel/InjectSteeringMessage/ResolveTools messages
// for the duration of the run.
func (l *Loop) Run(ctx context.Context, run RunContext, baseline []models.Message, triggering models.Message, commands <-chan Command) Outcome {
	if l.Provider == nil {
		return Outcome{Phase: PhaseFailed, Err: ErrNoProvider}
	}

	history := append(cloneHistory(baseline), triggering)
	model := l.Config.Model()
	steering := NewSteeringQueue()

	l.publish(run, eventbus.KindRunStarted, nil)

	turn := 0
	for {
		if turn >= l.Config.MaxTurns {
			return l.fail(ctx, run, PhaseInferring, turn, history, ErrMaxTurns)
		}

		select {
		case <-ctx.Done():
			l.publish(run, eventbus.KindRunCancelled, nil)
			return Outcome{Phase: PhaseCancelled, History: history, TotalTurns: turn, Err: ctx.Err()}
		default:
		}

		l.publish(run, eventbus.KindTurnStarted, map[string]any{"turn": turn})

		reduced := reducer.Reduce(history, reducer.DefaultConfig())
		completionMessages := buildCompletionMessages(reduced)

		if l.Hooks.BeforeInference != nil {
			if err := l.Hooks.BeforeInference(ctx, completionMessages, model); err != nil {
				return l.fail(ctx, run, PhasePreparing, turn, history, err)
			}
		}

		text, toolCalls, switchedModel, cancelled, err := l.inferenceTurn(ctx, run, model, completionMessages, commands, steering)
		if cancelled {
			l.publish(run, eventbus.KindRunCancelled, nil)
			return Outcome{Phase: PhaseCancelled, History: history, TotalTurns: turn, Err: ctx.Err()}
		}
		if err != nil {
			return l.fail(ctx, run, PhaseInferring, turn, history, err)
		}
		if switchedModel != "" {
			model = switchedModel
		}

		if l.Hooks.AfterInference != nil {
			if err := l.Hooks.AfterInference(ctx, text, toolCalls); err != nil {
				return l.fail(ctx, run, PhaseInferring, turn, history, err)
			}
		}

		assistantMsg := buildAssistantMessage(run.SessionID.String(), text, toolCalls)
		history = append(history, assistantMsg)

		if len(toolCalls) == 0 {
			if followUps := steering.DrainFollowUps(); len(followUps) > 0 {
				history = appendUserMessages(history, run.SessionID.String(), followUps)
				turn++
				continue
			}
			l.publish(run, eventbus.KindTurnFinished, map[string]any{"turn": turn})
			l.publish(run, eventbus.KindRunFinished, map[string]any{"total_turns": turn + 1})
			return Outcome{Phase: PhaseCompleted, History: history, TotalTurns: turn + 1}
		}

		decisions, cancelled := l.awaitToolDecisions(ctx, run, toolCalls, commands, steering)
		if cancelled {
			history = l.recordCancelledTools(history, run.SessionID.String(), toolCalls, decisions)
			l.publish(run, eventbus.KindRunCancelled, nil)
			return Outcome{Phase: PhaseCancelled, History: history, TotalTurns: turn, Err: ctx.Err()}
		}

		history = l.executeTools(ctx, run, history, toolCalls, decisions)

		if steeringMsgs := steering.DrainSteering(); len(steeringMsgs) > 0 {
			skipRest := false
			for _, s := range steeringMsgs {
				role := s.Role
				if role == "" {
					role = "user"
				}
				history = append(history, models.Message{
					SessionID: run.SessionID.String(),
					Role:      models.Role(role),
					Parts:     []models.Part{models.TextPart(s.Content)},
					CreatedAt: time.Now(),
				})
				l.publish(run, eventbus.KindSteeringInjected, map[string]any{"content": s.Content})
				if s.SkipRemainingTools {
					skipRest = true
				}
			}
			// skipRest has no further effect: by the time steering is
			// drained every proposed tool call for this turn has already
			// been resolved and executed, so there is nothing left to skip.
			_ = skipRest
		}

		l.publish(run, eventbus.KindTurnFinished, map[string]any{"turn": turn})
		turn++
	}
}

// Model returns the configured default model, if any.
func (c Config) Model() string {
	return c.model
}

// fail publishes a run.error event, invokes Hooks.OnError if set, and
// returns the terminal Failed outcome. Every failure path in Run goes
// through this so OnError always fires alongside the event.
func (l *Loop) fail(ctx context.Context, run RunContext, phase Phase, turn int, history []models.Message, err error) Outcome {
	l.publish(run, eventbus.KindRunError, map[string]any{"error": err.Error()})
	if l.Hooks.OnError != nil {
		l.Hooks.OnError(ctx, phase, turn, err)
	}
	return Outcome{Phase: PhaseFailed, History: history, TotalTurns: turn, Err: err}
}

func (l *Loop) publish(run RunContext, kind eventbus.Kind, data map[string]any) {
	if l.Bus == nil {
		return
	}
	runID := run.RunID
	l.Bus.Publish(run.SessionID.String(), &runID, kind, data)
}

func cloneHistory(messages []models.Message) []models.Message {
	out := make([]models.Message, len(messages))
	copy(out, messages)
	return out
}

func buildCompletionMessages(messages []models.Message) []CompletionMessage {
	out := make([]CompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, CompletionMessage{Role: string(m.Role), Content: renderParts(m.Parts)})
	}
	return out
}

func renderParts(parts []models.Part) string {
	var text string
	for _, p := range parts {
		switch p.Type {
		case models.PartText:
			if text != "" {
				text += "\n"
			}
			text += p.Text
		case models.PartToolCall:
			if text != "" {
				text += "\n"
			}
			text += fmt.Sprintf("[tool_call %s %s %s]", p.ToolCallID, p.ToolName, string(p.ToolArgs))
		case models.PartToolResult:
			if text != "" {
				text += "\n"
			}
			text += fmt.Sprintf("[tool_result %s %s]", p.ToolResultForID, string(p.ToolResultBody))
		}
	}
	return text
}

func buildAssistantMessage(sessionID, text string, toolCalls []ProposedToolCall) models.Message {
	var parts []models.Part
	if text != "" {
		parts = append(parts, models.TextPart(text))
	}
	for _, tc := range toolCalls {
		parts = append(parts, models.ToolCallPart(tc.ID, tc.Name, json.RawMessage(tc.Arguments), nil))
	}
	return models.Message{SessionID: sessionID, Role: models.RoleAssistant, Parts: parts, CreatedAt: time.Now()}
}

func appendUserMessages(history []models.Message, sessionID string, followUps []FollowUpMessage) []models.Message {
	for _, f := range followUps {
		role := f.Role
		if role == "" {
			role = "user"
		}
		history = append(history, models.Message{
			SessionID: sessionID,
			Role:      models.Role(role),
			Parts:     []models.Part{models.TextPart(f.Content)},
			CreatedAt: time.Now(),
		})
	}
	return history
}

// inferenceTurn streams one inference to completion while servicing
// inbound commands: Cancel aborts the stream, SwitchModel is recorded for
// the next turn, InjectSteeringMessage is buffered on steering.
func (l *Loop) inferenceTurn(ctx context.Context, run RunContext, model string, messages []CompletionMessage, commands <-chan Command, steering *SteeringQueue) (text string, toolCalls []ProposedToolCall, switchedModel string, cancelled bool, err error) {
	req := &CompletionRequest{Model: model, System: l.Config.System, Messages: messages, Tools: l.Config.Tools, MaxTokens: l.Config.MaxTokens}

	var chunks <-chan *CompletionChunk
	retryPolicy := l.Config.Retry
	if (retryPolicy == backoff.BackoffPolicy{}) {
		retryPolicy = backoff.DefaultPolicy()
	}

	for attempt := 1; ; attempt++ {
		chunks, err = l.Provider.Complete(ctx, req)
		if err == nil {
			break
		}
		if !isRetriableProviderError(err) || attempt > 3 {
			return "", nil, "", false, err
		}
		select {
		case <-time.After(backoff.ComputeBackoff(retryPolicy, attempt)):
		case <-ctx.Done():
			return "", nil, "", true, nil
		}
	}

	var textBuf string
	var calls []ProposedToolCall

	for {
		select {
		case <-ctx.Done():
			return "", nil, "", true, nil
		case cmd, ok := <-commands:
			if !ok {
				commands = nil // channel closed: stop selecting it, avoid a busy spin
				continue
			}
			switch c := cmd.(type) {
			case CancelCommand:
				return "", nil, "", true, nil
			case SwitchModelCommand:
				switchedModel = c.Model
			case InjectSteeringMessageCommand:
				steering.Steer(c.Message)
			}
		case chunk, ok := <-chunks:
			if !ok {
				return textBuf, calls, switchedModel, false, nil
			}
			if chunk.Error != nil {
				return "", nil, "", false, chunk.Error
			}
			if chunk.Text != "" {
				textBuf += chunk.Text
				l.publish(run, eventbus.KindModelDelta, map[string]any{"delta": chunk.Text})
			}
			if chunk.ToolCall != nil {
				calls = append(calls, *chunk.ToolCall)
			}
			if chunk.Done {
				return textBuf, calls, switchedModel, false, nil
			}
		}
	}
}

func isRetriableProviderError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sub := range []string{"rate limit", "timeout", "connection reset", "temporarily unavailable"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
