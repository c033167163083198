// Package models provides domain types shared across the session runtime.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Visibility controls whether a session's history is exposed to
// external collaborators (chat gateways, UI) or kept internal.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Session is a single conversation thread bound to a working directory.
type Session struct {
	ID         string     `json:"id"`
	Title      string     `json:"title,omitempty"`
	WorkingDir string     `json:"working_dir"`
	Visibility Visibility `json:"visibility"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// PartType discriminates the union of content parts a Message can carry.
type PartType string

const (
	PartText       PartType = "text"
	PartImage      PartType = "image"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
)

// Part is one element of a Message's ordered content. Exactly the field
// matching Type is populated; the others are zero values.
type Part struct {
	Type PartType `json:"type"`

	// PartText
	Text string `json:"text,omitempty"`

	// PartImage
	ImageURL    string `json:"image_url,omitempty"`
	ImageDetail string `json:"image_detail,omitempty"`

	// PartToolCall
	ToolCallID     string          `json:"tool_call_id,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	ToolArgs       json.RawMessage `json:"tool_args,omitempty"`
	ProviderMeta   json.RawMessage `json:"provider_meta,omitempty"`

	// PartToolResult
	ToolResultForID string          `json:"tool_result_for_id,omitempty"`
	ToolResultBody  json.RawMessage `json:"tool_result_body,omitempty"`
	ToolResultError bool            `json:"tool_result_error,omitempty"`
}

// TextPart builds a plain-text content part.
func TextPart(text string) Part { return Part{Type: PartText, Text: text} }

// ImagePart builds an image content part.
func ImagePart(url, detail string) Part {
	return Part{Type: PartImage, ImageURL: url, ImageDetail: detail}
}

// ToolCallPart builds a proposed tool-call content part.
func ToolCallPart(id, name string, args, providerMeta json.RawMessage) Part {
	return Part{Type: PartToolCall, ToolCallID: id, ToolName: name, ToolArgs: args, ProviderMeta: providerMeta}
}

// ToolResultPart builds a tool-result content part.
func ToolResultPart(toolCallID string, body json.RawMessage, isError bool) Part {
	return Part{Type: PartToolResult, ToolResultForID: toolCallID, ToolResultBody: body, ToolResultError: isError}
}

// Message is one turn of conversation history, persisted inside a
// CheckpointEnvelope and reconstructed on session resume.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Parts     []Part    `json:"parts"`
	CreatedAt time.Time `json:"created_at"`
}

// ToolCallIDs returns the ids of every tool_call part in the message, in order.
func (m Message) ToolCallIDs() []string {
	var ids []string
	for _, p := range m.Parts {
		if p.Type == PartToolCall {
			ids = append(ids, p.ToolCallID)
		}
	}
	return ids
}

// IsEmpty reports whether the message has no content parts left, meaning
// it should be dropped entirely by the context reducer.
func (m Message) IsEmpty() bool {
	return len(m.Parts) == 0
}
