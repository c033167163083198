package agentloop

import (
	"context"

	"github.com/google/uuid"

	"github.com/forgewright/agentcore/internal/backoff"
	"github.com/forgewright/agentcore/internal/pendingtools"
	"github.com/forgewright/agentcore/internal/toolexec"
)

// Phase names a state in a run's state machine:
// Preparing -> Inferring <-> AwaitingToolDecisions -> ExecutingTools -> Inferring ... -> Completed|Cancelled|Failed.
type Phase string

const (
	PhasePreparing             Phase = "preparing"
	PhaseInferring             Phase = "inferring"
	PhaseAwaitingToolDecisions Phase = "awaiting_tool_decisions"
	PhaseExecutingTools        Phase = "executing_tools"
	PhaseCompleted             Phase = "completed"
	PhaseCancelled             Phase = "cancelled"
	PhaseFailed                Phase = "failed"
)

// DefaultMaxTurns matches the platform's turn budget; the teacher's own
// default of 10 iterations is too small for multi-tool coding sessions.
const DefaultMaxTurns = 64

// ToolAction is the disposition a command applies to one proposed tool call.
type ToolAction string

const (
	ActionAccept       ToolAction = "accept"
	ActionReject       ToolAction = "reject"
	ActionCustomResult ToolAction = "custom_result"
)

// ToolDecision resolves one proposed tool call.
type ToolDecision struct {
	Action ToolAction
	Result string // used when Action == ActionCustomResult
}

// Command is the union of messages a caller may send to a running loop
// through its inbound command channel.
type Command interface isCommand()

type baseCommand struct{}

func (baseCommand) isCommand() {}

// CancelCommand aborts the run at the next cooperative checkpoint.
type CancelCommand struct{ baseCommand }

// SwitchModelCommand records a new model to take effect on the next turn;
// the in-flight inference (if any) is not interrupted.
type SwitchModelCommand struct {
	baseCommand
	Model string
}

// InjectSteeringMessageCommand enqueues a message to be appended once the
// current turn's tool batch (or inference) completes.
type InjectSteeringMessageCommand struct {
	baseCommand
	Message SteeringMessage
}

// ResolveToolsCommand resolves some or all of the currently pending tool
// calls for a run. The loop only resumes once every proposed id has been
// resolved, whether by this command, cumulative prior ones, or an
// auto-approval policy.
type ResolveToolsCommand struct {
	baseCommand
	RunID     uuid.UUID
	Decisions map[string]ToolDecision // tool call id -> decision
}

// Hooks are optional callbacks invoked at fixed points in the turn
// algorithm. A nil hook is skipped. Returning an error from
// BeforeInference or OnError aborts the run with that error.
type Hooks struct {
	BeforeInference    func(ctx context.Context, messages []CompletionMessage, model string) error
	AfterInference     func(ctx context.Context, text string, toolCalls []ProposedToolCall) error
	AfterToolExecution func(ctx context.Context, call ProposedToolCall, result toolexec.Result)
	OnError            func(ctx context.Context, phase Phase, turn int, err error)
}

// AutoApprovalPolicy lets a run resolve proposed tool calls without
// waiting on an inbound command, e.g. a configured allow/deny policy.
type AutoApprovalPolicy struct {
	Policy pendingtools.Policy
}

// Config configures one Loop invocation.
type Config struct {
	System       string
	model        string
	MaxTurns     int
	MaxTokens    int
	Tools        []ToolDefinition
	Retry        backoff.BackoffPolicy
	AutoApproval *AutoApprovalPolicy
}

// WithModel returns a copy of cfg with its default model set. The model
// named here is used for the first turn; SwitchModelCommand overrides it
// for subsequent turns.
func (c Config) WithModel(model string) Config {
	c.model = model
	return c
}

// DefaultConfig returns the platform's turn/inference defaults.
func DefaultConfig() Config {
	return Config{
		MaxTurns:  DefaultMaxTurns,
		MaxTokens: 4096,
		Retry:     backoff.DefaultPolicy(),
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return cfg
}
