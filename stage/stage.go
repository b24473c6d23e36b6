// Package stage implements the pipeline stages. Each stage consumes an
// immutable snapshot of the conversation state and returns a partial patch;
// the engine owns applying patches and routing between stages.
//
// Degradation policy: stages that can produce a usable default on provider
// failure (router, sync, escalate) absorb the failure and return a degraded
// patch rather than an error. Stages that cannot (extraction, generation
// transport errors) return the error and leave retry policy to the engine.
package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/convomesh/core"
	"github.com/hupe1980/convomesh/logging"
	"github.com/hupe1980/convomesh/model"
)

// generate runs one model call, recording its latency and token usage.
func generate(ctx context.Context, m model.Model, req model.Request, log *logging.PipelineLogger) (*model.Response, error) {
	start := time.Now()
	resp, err := m.Generate(ctx, req)
	tokens := 0
	if resp != nil {
		tokens = resp.Usage.TotalTokens
	}
	log.LogModelCall(m.Info().Name, tokens, time.Since(start), err)
	return resp, err
}

// historyMessages converts the most recent turns into model messages,
// bounded by window.
func historyMessages(state *core.ConversationState, window int) []model.Message {
	turns := state.HistoryTail(window)
	msgs := make([]model.Message, 0, len(turns)+1)
	for _, t := range turns {
		role := model.RoleUser
		if t.Role == "assistant" {
			role = model.RoleAssistant
		}
		msgs = append(msgs, model.Message{Role: role, Text: t.Text})
	}
	msgs = append(msgs, model.Message{Role: model.RoleUser, Text: state.Content})
	return msgs
}

// decodeJSON unmarshals a model completion into v, tolerating surrounding
// prose and markdown code fences.
func decodeJSON(text string, v any) error {
	raw := strings.TrimSpace(text)
	if i := strings.Index(raw, "```"); i >= 0 {
		raw = raw[i+3:]
		raw = strings.TrimPrefix(raw, "json")
		if j := strings.Index(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return fmt.Errorf("no JSON object in completion")
	}
	return json.Unmarshal([]byte(raw[start:end+1]), v)
}

// tokenUsage converts a model response's usage into the state's
// accumulating representation.
func tokenUsage(resp *model.Response) core.TokenUsage {
	return core.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
}

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func usagePtr(u core.TokenUsage) *core.TokenUsage {
	return &u
}
