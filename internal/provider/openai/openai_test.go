package openai

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/forgewright/agentcore/internal/agentloop"
)

func TestNewValidatesAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	p, err := New(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.maxRetries <= 0 {
		t.Error("expected default maxRetries")
	}
	if p.retryDelay <= 0 {
		t.Error("expected default retryDelay")
	}
	if p.defaultModel != "gpt-4o" {
		t.Errorf("expected default model gpt-4o, got %s", p.defaultModel)
	}
}

func TestNewRespectsOverrides(t *testing.T) {
	p, err := New(Config{APIKey: "test-key", MaxRetries: 5, RetryDelay: 3 * time.Second, DefaultModel: "gpt-4-turbo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.maxRetries != 5 || p.retryDelay != 3*time.Second || p.defaultModel != "gpt-4-turbo" {
		t.Errorf("overrides not applied: %+v", p)
	}
}

func TestProviderMethods(t *testing.T) {
	p, _ := New(Config{APIKey: "test-key"})
	if p.Name() != "openai" {
		t.Errorf("expected name openai, got %s", p.Name())
	}
	if !p.SupportsTools() {
		t.Error("expected SupportsTools true")
	}
	if len(p.Models()) == 0 {
		t.Error("expected at least one model")
	}
}

func TestModelResolvesDefault(t *testing.T) {
	p, _ := New(Config{APIKey: "key", DefaultModel: "gpt-4-turbo"})
	if got := p.model(""); got != "gpt-4-turbo" {
		t.Errorf("expected default model, got %s", got)
	}
	if got := p.model("gpt-4o"); got != "gpt-4o" {
		t.Errorf("expected requested model to win, got %s", got)
	}
}

func TestConvertMessagesPrependsSystemPrompt(t *testing.T) {
	msgs := convertMessages([]agentloop.CompletionMessage{{Role: "user", Content: "hi"}}, "be concise")
	if len(msgs) != 2 {
		t.Fatalf("expected system + user message, got %d", len(msgs))
	}
	if msgs[0].Content != "be concise" {
		t.Errorf("expected system prompt first, got %q", msgs[0].Content)
	}
}

func TestConvertMessagesMapsToolRoleToUser(t *testing.T) {
	msgs := convertMessages([]agentloop.CompletionMessage{{Role: "tool", Content: "result"}}, "")
	if len(msgs) != 1 || msgs[0].Role != "user" {
		t.Errorf("expected tool role mapped to user, got %+v", msgs)
	}
}

func TestConvertToolsRejectsInvalidSchema(t *testing.T) {
	_, err := convertTools([]agentloop.ToolDefinition{{Name: "broken", Schema: json.RawMessage(`not json`)}})
	if err == nil {
		t.Fatal("expected error for invalid schema")
	}
}

func TestConvertToolsBuildsFunctionDefinition(t *testing.T) {
	tools, err := convertTools([]agentloop.ToolDefinition{
		{Name: "search", Description: "search the web", Schema: json.RawMessage(`{"type":"object"}`)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tools) != 1 || tools[0].Function.Name != "search" {
		t.Errorf("expected one search tool, got %+v", tools)
	}
}

func TestWrapErrorNil(t *testing.T) {
	p, _ := New(Config{APIKey: "key"})
	if err := p.wrapError(nil, "gpt-4o"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestWrapErrorGeneric(t *testing.T) {
	p, _ := New(Config{APIKey: "key"})
	err := p.wrapError(errors.New("503 service unavailable"), "gpt-4o")
	if err == nil {
		t.Fatal("expected wrapped error")
	}
}
