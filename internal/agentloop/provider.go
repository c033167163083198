package agentloop

import (
	"context"
	"errors"
)

// ErrNoProvider is returned when a Loop is run without an LLMProvider.
var ErrNoProvider = errors.New("agentloop: no provider configured")

// ErrMaxTurns is wrapped into a RunError event when a run exceeds its
// configured turn budget.
var ErrMaxTurns = errors.New("turn limit exceeded")

// Model describes a selectable backend model.
type Model struct {
	ID             string
	Name           string
	ContextSize    int
	SupportsVision bool
}

// ToolDefinition describes a tool the provider may call, independent of
// any concrete MCP server wiring.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      []byte
}

// ProposedToolCall is a tool invocation the model asked for during one
// inference.
type ProposedToolCall struct {
	ID        string
	Name      string
	Arguments []byte
}

// CompletionMessage is one entry of the flattened history sent to a
// provider for inference, independent of the richer models.Message/Part
// representation kept in session history.
type CompletionMessage struct {
	Role    string
	Content string
}

// CompletionRequest is one inference request.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []CompletionMessage
	Tools     []ToolDefinition
	MaxTokens int
}

// CompletionChunk is one unit of a streamed inference response.
type CompletionChunk struct {
	Text         string
	ToolCall     *ProposedToolCall
	Done         bool
	Error        error
	InputTokens  int
	OutputTokens int
}

// LLMProvider is the streaming completion backend the Loop drives.
// Implementations must be safe for concurrent use across runs.
type LLMProvider interface {
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
	Name() string
	Models() []Model
	SupportsTools() bool
}
