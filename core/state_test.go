package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewState_Defaults(t *testing.T) {
	turn := InboundTurn{
		ConversationID: "conv-1",
		ContactID:      "contact-1",
		Channel:        ChannelWeb,
		Content:        "hello",
		ReceivedAt:     time.Now(),
	}

	state := NewState(turn)

	assert.Equal(t, "conv-1", state.ConversationID)
	assert.Equal(t, "contact-1", state.ContactID)
	assert.Equal(t, ChannelWeb, state.Channel)
	assert.Equal(t, "hello", state.Content)
	assert.Equal(t, IntentGeneral, state.Intent)
	assert.Equal(t, PriorityLow, state.Priority)
	assert.NotEmpty(t, state.MessageID)
	assert.Zero(t, state.RetrievalIterations)
	assert.False(t, state.NeedsEscalation)
	assert.Nil(t, state.ResponseText)
}

func TestStatePatch_Apply_Overwrites(t *testing.T) {
	state := NewState(InboundTurn{ConversationID: "conv-1", Content: "hi"})

	intent := IntentSales
	priority := PriorityHigh
	sentiment := 0.4
	state.Apply(&StatePatch{Intent: &intent, Priority: &priority, Sentiment: &sentiment})

	assert.Equal(t, IntentSales, state.Intent)
	assert.Equal(t, PriorityHigh, state.Priority)
	assert.Equal(t, 0.4, state.Sentiment)
}

func TestStatePatch_Apply_ClampsSentiment(t *testing.T) {
	state := NewState(InboundTurn{ConversationID: "conv-1"})

	over := 3.5
	state.Apply(&StatePatch{Sentiment: &over})
	assert.Equal(t, 1.0, state.Sentiment)

	under := -2.0
	state.Apply(&StatePatch{Sentiment: &under})
	assert.Equal(t, -1.0, state.Sentiment)
}

func TestStatePatch_Apply_RecordMergesMonotonically(t *testing.T) {
	state := NewState(InboundTurn{ConversationID: "conv-1"})

	name := "Dana"
	state.Apply(&StatePatch{Record: &ExtractedRecord{Name: &name}})

	email := "dana@example.com"
	state.Apply(&StatePatch{Record: &ExtractedRecord{Email: &email}})

	// Applying a patch without Name must keep the earlier value.
	require.NotNil(t, state.Record.Name)
	assert.Equal(t, "Dana", *state.Record.Name)
	require.NotNil(t, state.Record.Email)
	assert.Equal(t, "dana@example.com", *state.Record.Email)
}

func TestStatePatch_Apply_AppendsRetrievalResults(t *testing.T) {
	state := NewState(InboundTurn{ConversationID: "conv-1"})

	state.Apply(&StatePatch{RetrievalResults: []RetrievalResult{{DocID: "a"}}})
	state.Apply(&StatePatch{RetrievalResults: []RetrievalResult{{DocID: "b"}, {DocID: "c"}}})

	require.Len(t, state.RetrievalResults, 3)
	assert.Equal(t, "a", state.RetrievalResults[0].DocID)
	assert.Equal(t, "c", state.RetrievalResults[2].DocID)
}

func TestStatePatch_Apply_AccumulatesUsageAndCost(t *testing.T) {
	state := NewState(InboundTurn{ConversationID: "conv-1"})

	cost1, cost2 := 0.01, 0.02
	state.Apply(&StatePatch{
		Usage: &TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		Cost:  &cost1,
	})
	state.Apply(&StatePatch{
		Usage: &TokenUsage{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30},
		Cost:  &cost2,
	})

	assert.Equal(t, 30, state.Usage.PromptTokens)
	assert.Equal(t, 15, state.Usage.CompletionTokens)
	assert.Equal(t, 45, state.Usage.TotalTokens)
	assert.InDelta(t, 0.03, state.CostEstimate, 1e-9)
}

func TestStatePatch_Apply_NilPatchIsNoOp(t *testing.T) {
	state := NewState(InboundTurn{ConversationID: "conv-1", Content: "hi"})
	before := *state.Clone()

	state.Apply(nil)

	assert.Equal(t, before.Content, state.Content)
	assert.Equal(t, before.Intent, state.Intent)
}

func TestConversationState_Clone_IsIndependent(t *testing.T) {
	name := "Dana"
	resp := "hello"
	state := NewState(InboundTurn{ConversationID: "conv-1"})
	state.History = []Turn{{Role: "user", Text: "earlier"}}
	state.Record.Name = &name
	state.ResponseText = &resp
	state.RetrievalResults = []RetrievalResult{{DocID: "a", Metadata: map[string]string{"k": "v"}}}
	state.Tags = []string{"x"}

	clone := state.Clone()
	clone.History[0].Text = "mutated"
	*clone.Record.Name = "mutated"
	*clone.ResponseText = "mutated"
	clone.RetrievalResults[0].Metadata["k"] = "mutated"
	clone.Tags[0] = "mutated"

	assert.Equal(t, "earlier", state.History[0].Text)
	assert.Equal(t, "Dana", *state.Record.Name)
	assert.Equal(t, "hello", *state.ResponseText)
	assert.Equal(t, "v", state.RetrievalResults[0].Metadata["k"])
	assert.Equal(t, "x", state.Tags[0])
}

func TestConversationState_HistoryTail(t *testing.T) {
	state := &ConversationState{History: []Turn{
		{Text: "1"}, {Text: "2"}, {Text: "3"}, {Text: "4"},
	}}

	tail := state.HistoryTail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, "3", tail[0].Text)
	assert.Equal(t, "4", tail[1].Text)

	assert.Len(t, state.HistoryTail(10), 4)
	assert.Len(t, state.HistoryTail(0), 4)
}
