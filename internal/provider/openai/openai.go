// Package openai adapts OpenAI's chat completions API to agentloop.LLMProvider.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/forgewright/agentcore/internal/agentloop"
	"github.com/forgewright/agentcore/internal/providerutil"
)

// Config holds construction parameters for a Provider.
type Config struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// Provider implements agentloop.LLMProvider against OpenAI's chat completions API.
type Provider struct {
	client       *openai.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// New builds a Provider, applying defaults for any zero-valued optional field.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client:       openai.NewClientWithConfig(clientCfg),
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Models() []agentloop.Model {
	return []agentloop.Model{
		{ID: "gpt-4o", Name: "GPT-4o", ContextSize: 128000, SupportsVision: true},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextSize: 128000, SupportsVision: true},
		{ID: "gpt-4", Name: "GPT-4", ContextSize: 8192, SupportsVision: false},
		{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", ContextSize: 16385, SupportsVision: false},
	}
}

func (p *Provider) SupportsTools() bool { return true }

// Complete streams one completion, retrying stream creation on retriable
// errors with linear backoff before giving up.
func (p *Provider) Complete(ctx context.Context, req *agentloop.CompletionRequest) (<-chan *agentloop.CompletionChunk, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    p.model(req.Model),
		Messages: convertMessages(req.Messages, req.System),
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("openai: failed to convert tools: %w", err)
		}
		chatReq.Tools = tools
	}

	var stream *openai.ChatCompletionStream
	var lastErr error

	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay * time.Duration(attempt)):
			}
		}
		stream, lastErr = p.client.CreateChatCompletionStream(ctx, chatReq)
		if lastErr == nil {
			break
		}
		if !providerutil.IsRetryable(p.wrapError(lastErr, chatReq.Model)) {
			return nil, p.wrapError(lastErr, chatReq.Model)
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("openai: max retries exceeded: %w", p.wrapError(lastErr, chatReq.Model))
	}

	chunks := make(chan *agentloop.CompletionChunk)
	go p.processStream(stream, chunks, chatReq.Model)
	return chunks, nil
}

func (p *Provider) processStream(stream *openai.ChatCompletionStream, chunks chan<- *agentloop.CompletionChunk, model string) {
	defer close(chunks)
	defer stream.Close()

	toolCalls := make(map[int]*agentloop.ProposedToolCall)
	emit := func() {
		for _, tc := range toolCalls {
			if tc.ID != "" && tc.Name != "" {
				chunks <- &agentloop.CompletionChunk{ToolCall: tc}
			}
		}
	}

	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				emit()
				chunks <- &agentloop.CompletionChunk{Done: true}
				return
			}
			chunks <- &agentloop.CompletionChunk{Error: p.wrapError(err, model)}
			return
		}

		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			chunks <- &agentloop.CompletionChunk{Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if toolCalls[index] == nil {
				toolCalls[index] = &agentloop.ProposedToolCall{}
			}
			if tc.ID != "" {
				toolCalls[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[index].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[index].Arguments = append(toolCalls[index].Arguments, []byte(tc.Function.Arguments)...)
			}
		}

		if choice.FinishReason == "tool_calls" {
			emit()
			toolCalls = make(map[int]*agentloop.ProposedToolCall)
		}
	}
}

func convertMessages(messages []agentloop.CompletionMessage, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, msg := range messages {
		role := msg.Role
		if role == "tool" {
			role = openai.ChatMessageRoleUser
		}
		result = append(result, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return result
}

func convertTools(tools []agentloop.ToolDefinition) ([]openai.Tool, error) {
	result := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		var schema map[string]any
		if err := json.Unmarshal(tool.Schema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			},
		})
	}
	return result, nil
}

func (p *Provider) model(requested string) string {
	if requested == "" {
		return p.defaultModel
	}
	return requested
}

func (p *Provider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if providerutil.IsProviderError(err) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		providerErr := (&providerutil.ProviderError{Provider: "openai", Model: model, Cause: err, Message: apiErr.Message, Code: fmt.Sprint(apiErr.Code)}).WithStatus(apiErr.HTTPStatusCode)
		return providerErr
	}
	return providerutil.NewProviderError("openai", model, err)
}
