package model

import (
	"context"
	"sync"
)

// ScriptedModel is a lightweight in-memory Model useful for tests and
// examples. It returns a queued sequence of responses (or errors) in order;
// once the script is exhausted it keeps returning the configured fallback.
type ScriptedModel struct {
	mu       sync.Mutex
	script   []scriptEntry
	fallback Response
	requests []Request
}

type scriptEntry struct {
	resp Response
	err  error
}

// NewScriptedModel constructs an empty ScriptedModel whose fallback response
// is a plain text answer.
func NewScriptedModel() *ScriptedModel {
	return &ScriptedModel{fallback: Response{Text: "ok", FinishReason: "stop"}}
}

// Enqueue appends a response to the script.
func (m *ScriptedModel) Enqueue(resp Response) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptEntry{resp: resp})
	return m
}

// EnqueueText appends a final text response with the given token usage.
func (m *ScriptedModel) EnqueueText(text string, tokens int) *ScriptedModel {
	return m.Enqueue(Response{
		Text:         text,
		FinishReason: "stop",
		Usage:        TokenUsage{CompletionTokens: tokens, TotalTokens: tokens},
	})
}

// EnqueueToolCall appends a tool invocation response.
func (m *ScriptedModel) EnqueueToolCall(name string, args string) *ScriptedModel {
	return m.Enqueue(Response{
		ToolCall:     &ToolCall{ID: "call-" + name, Name: name, Arguments: []byte(args)},
		FinishReason: "tool_calls",
	})
}

// EnqueueError appends an error entry simulating a transport failure.
func (m *ScriptedModel) EnqueueError(err error) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptEntry{err: err})
	return m
}

// SetFallback replaces the response returned after the script is exhausted.
func (m *ScriptedModel) SetFallback(resp Response) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = resp
	return m
}

// Requests returns a copy of every request seen so far, in order.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// CallCount returns the number of Generate invocations so far.
func (m *ScriptedModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Generate implements Model, replaying the script in order.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.script) == 0 {
		resp := m.fallback
		return &resp, nil
	}
	entry := m.script[0]
	m.script = m.script[1:]
	if entry.err != nil {
		return nil, entry.err
	}
	resp := entry.resp
	return &resp, nil
}

// Info implements Model.
func (m *ScriptedModel) Info() Info {
	return Info{Name: "scripted", Provider: "scripted", SupportsTools: true}
}
