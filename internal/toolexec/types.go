// Package toolexec dispatches proposed tool calls to MCP servers with
// bounded concurrency, retry with backoff, cancellation, and output
// sanitization before the result re-enters conversation history.
package toolexec

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ProposedToolCall is a tool invocation an agent turn has asked for.
type ProposedToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// RunContext identifies which session and run a tool call belongs to, for
// MCP request metadata and event correlation.
type RunContext struct {
	SessionID uuid.UUID
	RunID     uuid.UUID
}

// Outcome discriminates how a tool execution ended.
type Outcome int

const (
	Completed Outcome = iota
	Cancelled
)

// Result is the outcome of dispatching one tool call.
type Result struct {
	ToolCallID string
	Outcome    Outcome
	Output     string
	IsError    bool
	Attempts   int
	Duration   time.Duration
}
