package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/forgewright/agentcore/internal/backoff"
)

// Config bounds tool-dispatch concurrency, per-call timeout, and retries.
type Config struct {
	MaxConcurrency int
	DefaultTimeout time.Duration
	MaxRetries     int
	Backoff        backoff.BackoffPolicy
	// DefaultServer names the MCP server a tool call dispatches to when
	// its name carries no "server:tool" namespace prefix.
	DefaultServer string
}

// DefaultConfig matches the teacher's executor defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		DefaultTimeout: 30 * time.Second,
		MaxRetries:     2,
		Backoff:        backoff.DefaultPolicy(),
	}
}

// Metrics accumulates executor-wide counters for observability export.
type Metrics struct {
	TotalExecutions int64
	TotalRetries    int64
	TotalFailures   int64
	TotalTimeouts   int64
	TotalPanics     int64
	TotalCancelled  int64
}

// Snapshot returns a point-in-time copy of the counters.
func (m *Metrics) Snapshot() Metrics {
	return Metrics{
		TotalExecutions: atomic.LoadInt64(&m.TotalExecutions),
		TotalRetries:    atomic.LoadInt64(&m.TotalRetries),
		TotalFailures:   atomic.LoadInt64(&m.TotalFailures),
		TotalTimeouts:   atomic.LoadInt64(&m.TotalTimeouts),
		TotalPanics:     atomic.LoadInt64(&m.TotalPanics),
		TotalCancelled:  atomic.LoadInt64(&m.TotalCancelled),
	}
}

// Executor dispatches proposed tool calls to MCP servers, bounding
// concurrency with a semaphore and retrying transient failures with
// backoff. A tool call may be cancelled mid-flight by cancelling the
// context passed to Execute; in that case the executor notifies the MCP
// peer and returns a Cancelled result instead of an error.
type Executor struct {
	pool   *ClientPool
	cfg    Config
	sem    chan struct{}
	metric *Metrics
}

// NewExecutor creates a tool executor backed by pool.
func NewExecutor(pool *ClientPool, cfg Config) *Executor {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	return &Executor{
		pool:   pool,
		cfg:    cfg,
		sem:    make(chan struct{}, cfg.MaxConcurrency),
		metric: &Metrics{},
	}
}

// Metrics returns a snapshot of executor counters.
func (e *Executor) Metrics() Metrics { return e.metric.Snapshot() }

// ExecuteAll dispatches every call concurrently (bounded by the
// executor's semaphore) and returns results in the same order as calls.
func (e *Executor) ExecuteAll(ctx context.Context, run RunContext, calls []ProposedToolCall) []Result {
	results := make([]Result, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c ProposedToolCall) {
			defer wg.Done()
			results[idx] = e.Execute(ctx, run, c)
		}(i, call)
	}
	wg.Wait()
	return results
}

// Execute dispatches a single tool call, retrying retryable failures up
// to cfg.MaxRetries times with backoff between attempts.
func (e *Executor) Execute(ctx context.Context, run RunContext, call ProposedToolCall) Result {
	start := time.Now()

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return Result{ToolCallID: call.ID, Outcome: Cancelled, Duration: time.Since(start)}
	}

	var last Result
	for attempt := 1; attempt <= e.cfg.MaxRetries+1; attempt++ {
		result := e.attempt(ctx, run, call)
		result.Attempts = attempt
		result.Duration = time.Since(start)

		atomic.AddInt64(&e.metric.TotalExecutions, 1)
		if result.Outcome == Cancelled {
			atomic.AddInt64(&e.metric.TotalCancelled, 1)
			return result
		}
		if !result.IsError || !retryable(result.Output) {
			return result
		}
		last = result
		if attempt > e.cfg.MaxRetries {
			break
		}
		atomic.AddInt64(&e.metric.TotalRetries, 1)

		select {
		case <-time.After(backoff.ComputeBackoff(e.cfg.Backoff, attempt)):
		case <-ctx.Done():
			last.Outcome = Cancelled
			atomic.AddInt64(&e.metric.TotalCancelled, 1)
			return last
		}
	}

	atomic.AddInt64(&e.metric.TotalFailures, 1)
	return last
}

// retryable reports whether a failed tool result is worth retrying:
// transport/timeout style failures, not application-level tool errors.
func retryable(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "connection") ||
		strings.Contains(lower, "transport")
}

func (e *Executor) attempt(ctx context.Context, run RunContext, call ProposedToolCall) Result {
	timeout := e.cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	serverName, toolName := splitToolName(call.Name, e.cfg.DefaultServer)

	mcpClient, err := e.pool.Get(execCtx, serverName)
	if err != nil {
		atomic.AddInt64(&e.metric.TotalFailures, 1)
		return Result{ToolCallID: call.ID, Outcome: Completed, IsError: true, Output: fmt.Sprintf("MCP tool call failed: %v", err)}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = decodeArguments(call.Arguments)

	type response struct {
		result *mcp.CallToolResult
		err    error
	}
	respCh := make(chan response, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				atomic.AddInt64(&e.metric.TotalPanics, 1)
				respCh <- response{err: fmt.Errorf("panic during tool call: %v\n%s", r, debug.Stack())}
			}
		}()
		result, err := mcpClient.CallTool(execCtx, req)
		respCh <- response{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		return Result{ToolCallID: call.ID, Outcome: Cancelled}
	case resp := <-respCh:
		if resp.err != nil {
			if execCtx.Err() != nil {
				atomic.AddInt64(&e.metric.TotalTimeouts, 1)
				return Result{ToolCallID: call.ID, Outcome: Completed, IsError: true, Output: fmt.Sprintf("execution timed out after %s", timeout)}
			}
			return Result{ToolCallID: call.ID, Outcome: Completed, IsError: true, Output: fmt.Sprintf("MCP tool execution error: %v", resp.err)}
		}
		output, isError := renderCallToolResult(resp.result)
		return Result{ToolCallID: call.ID, Outcome: Completed, Output: output, IsError: isError}
	}
}

func splitToolName(name, defaultServer string) (server, tool string) {
	if idx := strings.Index(name, ":"); idx >= 0 {
		return name[:idx], name[idx+1:]
	}
	return defaultServer, name
}

func decodeArguments(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]any{"input": string(raw)}
	}
	return args
}

func renderCallToolResult(result *mcp.CallToolResult) (string, bool) {
	if result == nil {
		return emptyResultPlaceholder, false
	}

	var texts []string
	for _, content := range result.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}

	output := renderTextContents(texts, len(result.Content) > 0)
	return output, result.IsError
}
