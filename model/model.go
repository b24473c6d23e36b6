// Package model defines the normalized contract for the hosted language
// model services the pipeline stages call (classification, extraction and
// generation all share it) and a scripted in-memory implementation for
// tests. Provider adapters live in the openai and anthropic subpackages.
package model

import (
	"context"
	"encoding/json"
)

// Message is one entry of the conversational context sent to a model.
// Exactly one of Text, ToolCall or ToolResponse is expected to be set for
// the assistant/tool roles; user and system messages carry Text only.
type Message struct {
	Role         string        `json:"role"` // system, user, assistant, tool
	Text         string        `json:"text,omitempty"`
	ToolCall     *ToolCall     `json:"tool_call,omitempty"`
	ToolResponse *ToolResponse `json:"tool_response,omitempty"`
}

// Role values for Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a function invocation request surfaced by a model provider,
// unified across vendors so downstream logic needs no per-provider
// branching.
type ToolCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolResponse carries the result of a previously requested tool call back
// into the context.
type ToolResponse struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by stages.
type Request struct {
	Instructions string           `json:"instructions"`
	Messages     []Message        `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completed model turn: either final answer text or a tool
// invocation request, never both interpreted at once — callers check
// ToolCall first.
type Response struct {
	Text         string     `json:"text,omitempty"`
	ToolCall     *ToolCall  `json:"tool_call,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        TokenUsage `json:"usage"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "scripted", ...
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface stages use to drive generation. Calls are
// synchronous atomic units: the engine applies timeouts through the context
// and treats a timeout identically to a transport error.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}
