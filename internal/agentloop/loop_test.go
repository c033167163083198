package agentloop

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgewright/agentcore/internal/eventbus"
	"github.com/forgewright/agentcore/internal/pendingtools"
	"github.com/forgewright/agentcore/internal/toolexec"
	"github.com/forgewright/agentcore/pkg/models"
)

type fakeProvider struct {
	complete func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
}

func (p *fakeProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	return p.complete(ctx, req)
}
func (p *fakeProvider) Name() string        { return "fake" }
func (p *fakeProvider) Models() []Model     { return nil }
func (p *fakeProvider) SupportsTools() bool { return true }

func textOnlyProvider(text string) *fakeProvider {
	return &fakeProvider{complete: func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
		ch := make(chan *CompletionChunk, 2)
		ch <- &CompletionChunk{Text: text}
		ch <- &CompletionChunk{Done: true}
		close(ch)
		return ch, nil
	}}
}

func toolCallThenTextProvider(callID, toolName string) *fakeProvider {
	turn := 0
	return &fakeProvider{complete: func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
		ch := make(chan *CompletionChunk, 3)
		if turn == 0 {
			turn++
			ch <- &CompletionChunk{ToolCall: &ProposedToolCall{ID: callID, Name: toolName, Arguments: []byte(`{}`)}}
			ch <- &CompletionChunk{Done: true}
		} else {
			ch <- &CompletionChunk{Text: "done"}
			ch <- &CompletionChunk{Done: true}
		}
		close(ch)
		return ch, nil
	}}
}

func alwaysToolCallProvider(toolName string) *fakeProvider {
	return &fakeProvider{complete: func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
		ch := make(chan *CompletionChunk, 2)
		ch <- &CompletionChunk{ToolCall: &ProposedToolCall{ID: uuid.NewString(), Name: toolName, Arguments: []byte(`{}`)}}
		ch <- &CompletionChunk{Done: true}
		close(ch)
		return ch, nil
	}}
}

func newRunContext() RunContext {
	return RunContext{SessionID: uuid.New(), RunID: uuid.New()}
}

func triggeringMessage(sessionID string, content string) models.Message {
	return models.Message{SessionID: sessionID, Role: models.RoleUser, Parts: []models.Part{models.TextPart(content)}, CreatedAt: time.Now()}
}

func TestRunCompletesWithNoToolCalls(t *testing.T) {
	bus := eventbus.New(eventbus.DefaultRingSize, eventbus.DefaultSubscriberBuffer)
	run := newRunContext()
	loop := NewLoop(textOnlyProvider("hi there"), nil, bus, pendingtools.New(), Hooks{}, DefaultConfig())

	sub, cancel := bus.Subscribe(run.SessionID.String(), nil)
	defer cancel()

	outcome := loop.Run(context.Background(), run, nil, triggeringMessage(run.SessionID.String(), "say hi"), nil)

	require.Equal(t, PhaseCompleted, outcome.Phase)
	assert.Equal(t, 1, outcome.TotalTurns)
	require.Len(t, outcome.History, 2)
	assert.Equal(t, models.RoleUser, outcome.History[0].Role)
	assert.Equal(t, models.RoleAssistant, outcome.History[1].Role)

	var kinds []eventbus.Kind
	for i := 0; i < 5; i++ {
		select {
		case ev := <-sub:
			kinds = append(kinds, ev.Kind)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	assert.Equal(t, []eventbus.Kind{
		eventbus.KindRunStarted,
		eventbus.KindTurnStarted,
		eventbus.KindTurnFinished,
		eventbus.KindRunFinished,
	}, kinds[:4])
}

func TestRunToolCallRejectedSynthesizesResult(t *testing.T) {
	bus := eventbus.New(eventbus.DefaultRingSize, eventbus.DefaultSubscriberBuffer)
	run := newRunContext()
	loop := NewLoop(toolCallThenTextProvider("c1", "echo"), nil, bus, pendingtools.New(), Hooks{}, DefaultConfig())

	commands := make(chan Command, 1)
	go func() {
		commands <- ResolveToolsCommand{RunID: run.RunID, Decisions: map[string]ToolDecision{"c1": {Action: ActionReject}}}
	}()

	outcome := loop.Run(context.Background(), run, nil, triggeringMessage(run.SessionID.String(), "call echo"), commands)

	require.Equal(t, PhaseCompleted, outcome.Phase)
	var toolResultBody string
	for _, m := range outcome.History {
		for _, p := range m.Parts {
			if p.Type == models.PartToolResult && p.ToolResultForID == "c1" {
				toolResultBody = string(p.ToolResultBody)
			}
		}
	}
	assert.Contains(t, toolResultBody, "Tool call rejected by user")
}

func TestRunAutoApprovalAcceptDispatchesToExecutor(t *testing.T) {
	bus := eventbus.New(eventbus.DefaultRingSize, eventbus.DefaultSubscriberBuffer)
	run := newRunContext()

	pool := toolexec.NewClientPool(nil)
	executor := toolexec.NewExecutor(pool, toolexec.DefaultConfig())

	cfg := DefaultConfig()
	cfg.AutoApproval = &AutoApprovalPolicy{Policy: pendingtools.Policy{Default: pendingtools.Allow}}

	loop := NewLoop(toolCallThenTextProvider("c1", "echo"), executor, bus, pendingtools.New(), Hooks{}, cfg)

	outcome := loop.Run(context.Background(), run, nil, triggeringMessage(run.SessionID.String(), "call echo"), nil)

	require.Equal(t, PhaseCompleted, outcome.Phase)
	var toolResultBody string
	for _, m := range outcome.History {
		for _, p := range m.Parts {
			if p.Type == models.PartToolResult && p.ToolResultForID == "c1" {
				toolResultBody = string(p.ToolResultBody)
			}
		}
	}
	assert.Contains(t, toolResultBody, "unknown MCP server")
}

func TestRunCancelDuringAwaitingToolDecisions(t *testing.T) {
	bus := eventbus.New(eventbus.DefaultRingSize, eventbus.DefaultSubscriberBuffer)
	run := newRunContext()
	loop := NewLoop(toolCallThenTextProvider("c1", "echo"), nil, bus, pendingtools.New(), Hooks{}, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	commands := make(chan Command)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	outcome := loop.Run(ctx, run, nil, triggeringMessage(run.SessionID.String(), "call echo"), commands)

	require.Equal(t, PhaseCancelled, outcome.Phase)
	var foundCancelMarker bool
	for _, m := range outcome.History {
		for _, p := range m.Parts {
			if p.Type == models.PartToolResult && string(p.ToolResultBody) == `"TOOL_CALL_CANCELLED"` {
				foundCancelMarker = true
			}
		}
	}
	assert.True(t, foundCancelMarker)
}

func TestRunEnforcesMaxTurns(t *testing.T) {
	bus := eventbus.New(eventbus.DefaultRingSize, eventbus.DefaultSubscriberBuffer)
	run := newRunContext()

	cfg := Config{MaxTurns: 2, MaxTokens: 1024}
	cfg.AutoApproval = &AutoApprovalPolicy{Policy: pendingtools.Policy{Denylist: []string{"*"}}}

	loop := NewLoop(alwaysToolCallProvider("loopy"), nil, bus, pendingtools.New(), Hooks{}, cfg)

	outcome := loop.Run(context.Background(), run, nil, triggeringMessage(run.SessionID.String(), "go"), nil)

	require.Equal(t, PhaseFailed, outcome.Phase)
	assert.ErrorIs(t, outcome.Err, ErrMaxTurns)
}

func TestRunInvokesOnErrorHookOnFailure(t *testing.T) {
	bus := eventbus.New(eventbus.DefaultRingSize, eventbus.DefaultSubscriberBuffer)
	run := newRunContext()

	hookErr := assert.AnError
	var gotPhase Phase
	var gotErr error
	hooks := Hooks{
		BeforeInference: func(ctx context.Context, messages []CompletionMessage, model string) error {
			return hookErr
		},
		OnError: func(ctx context.Context, phase Phase, turn int, err error) {
			gotPhase = phase
			gotErr = err
		},
	}

	loop := NewLoop(textOnlyProvider("unused"), nil, bus, pendingtools.New(), hooks, DefaultConfig())
	outcome := loop.Run(context.Background(), run, nil, triggeringMessage(run.SessionID.String(), "hi"), nil)

	require.Equal(t, PhaseFailed, outcome.Phase)
	assert.ErrorIs(t, gotErr, hookErr)
	assert.Equal(t, PhasePreparing, gotPhase)
}

func TestRunAbortsOnBeforeInferenceHookError(t *testing.T) {
	bus := eventbus.New(eventbus.DefaultRingSize, eventbus.DefaultSubscriberBuffer)
	run := newRunContext()

	hookErr := assert.AnError
	hooks := Hooks{BeforeInference: func(ctx context.Context, messages []CompletionMessage, model string) error {
		return hookErr
	}}

	loop := NewLoop(textOnlyProvider("unused"), nil, bus, pendingtools.New(), hooks, DefaultConfig())
	outcome := loop.Run(context.Background(), run, nil, triggeringMessage(run.SessionID.String(), "hi"), nil)

	require.Equal(t, PhaseFailed, outcome.Phase)
	assert.ErrorIs(t, outcome.Err, hookErr)
}
