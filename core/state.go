package core

import (
	"time"

	"github.com/google/uuid"
)

// Turn is a single prior exchange entry in the conversation history.
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// TokenUsage accumulates token counts across every model call made during a
// turn. Counts are only ever added to, never reset within a turn.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage sample into the receiver.
func (u *TokenUsage) Add(in TokenUsage) {
	u.PromptTokens += in.PromptTokens
	u.CompletionTokens += in.CompletionTokens
	u.TotalTokens += in.TotalTokens
}

// RetrievalResult is one ranked candidate returned by the knowledge
// retrieval service and appended to the generation context.
type RetrievalResult struct {
	DocID      string            `json:"doc_id"`
	Content    string            `json:"content"`
	Similarity float64           `json:"similarity"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ConversationState is the unit of work threaded through every pipeline
// stage. A fresh state is created per inbound turn (seeded with persisted
// history from the previous turn's checkpoint), mutated exclusively through
// StatePatch application under the orchestrator's lease, and superseded by
// the next turn's state once a terminal stage completes.
//
// The struct is fully JSON-serializable so checkpoints can round-trip it.
type ConversationState struct {
	// Identity.
	ConversationID string  `json:"conversation_id"`
	MessageID      string  `json:"message_id"`
	ContactID      string  `json:"contact_id"`
	Channel        Channel `json:"channel"`

	// Input.
	Content string `json:"content"`
	History []Turn `json:"history,omitempty"` // oldest first, append-only

	// Classification (Router output).
	Intent    Intent   `json:"intent"`
	Priority  Priority `json:"priority"`
	Sentiment float64  `json:"sentiment"` // [-1, 1]

	// Extraction output. Monotonically filled within a turn.
	Record ExtractedRecord `json:"record"`

	// Generation working state. RetrievalIterations is resumed across
	// checkpoint restarts, never reset mid-turn.
	RetrievalIterations int               `json:"retrieval_iterations"`
	RetrievalResults    []RetrievalResult `json:"retrieval_results,omitempty"`
	ResponseText        *string           `json:"response_text,omitempty"`
	ResponseDegraded    bool              `json:"response_degraded"`

	// Control flags.
	NeedsEscalation  bool    `json:"needs_escalation"`
	EscalationReason *string `json:"escalation_reason,omitempty"`
	SyncCompleted    bool    `json:"sync_completed"`
	SyncDeferred     bool    `json:"sync_deferred"`

	// Synchronization outputs.
	Tags    []string `json:"tags,omitempty"`
	Score   int      `json:"score"`
	Summary string   `json:"summary,omitempty"`

	// Accounting. Accumulated, never reset within a turn.
	Usage        TokenUsage `json:"token_usage"`
	CostEstimate float64    `json:"cost_estimate"`
}

// NewState constructs the default state for an inbound turn. History seeding
// from the previous checkpoint is the admission layer's responsibility.
func NewState(turn InboundTurn) *ConversationState {
	return &ConversationState{
		ConversationID: turn.ConversationID,
		MessageID:      NewID(),
		ContactID:      turn.ContactID,
		Channel:        turn.Channel,
		Content:        turn.Content,
		Intent:         IntentGeneral,
		Priority:       PriorityLow,
	}
}

// StatePatch is the partial-state update a stage returns. Nil pointer fields
// leave the corresponding state field untouched; slice fields are appended.
// The orchestrator applies patches between stage executions so stages stay
// free of direct state mutation.
type StatePatch struct {
	Intent    *Intent
	Priority  *Priority
	Sentiment *float64

	Record *ExtractedRecord // merged, monotonic

	RetrievalIterations *int
	RetrievalResults    []RetrievalResult // appended
	ResponseText        *string
	ResponseDegraded    *bool

	NeedsEscalation  *bool
	EscalationReason *string
	SyncCompleted    *bool
	SyncDeferred     *bool

	Tags    []string // replaced (recomputed deterministically by sync)
	Score   *int
	Summary *string

	Usage *TokenUsage // accumulated
	Cost  *float64    // accumulated
}

// Apply merges a patch into the state. Record fields merge monotonically,
// retrieval results append, usage and cost accumulate; everything else is a
// plain overwrite when the patch field is set.
func (s *ConversationState) Apply(p *StatePatch) {
	if p == nil {
		return
	}
	if p.Intent != nil {
		s.Intent = *p.Intent
	}
	if p.Priority != nil {
		s.Priority = *p.Priority
	}
	if p.Sentiment != nil {
		s.Sentiment = ClampSentiment(*p.Sentiment)
	}
	if p.Record != nil {
		s.Record = s.Record.Merge(*p.Record)
	}
	if p.RetrievalIterations != nil {
		s.RetrievalIterations = *p.RetrievalIterations
	}
	if len(p.RetrievalResults) > 0 {
		s.RetrievalResults = append(s.RetrievalResults, p.RetrievalResults...)
	}
	if p.ResponseText != nil {
		s.ResponseText = p.ResponseText
	}
	if p.ResponseDegraded != nil {
		s.ResponseDegraded = *p.ResponseDegraded
	}
	if p.NeedsEscalation != nil {
		s.NeedsEscalation = *p.NeedsEscalation
	}
	if p.EscalationReason != nil {
		s.EscalationReason = p.EscalationReason
	}
	if p.SyncCompleted != nil {
		s.SyncCompleted = *p.SyncCompleted
	}
	if p.SyncDeferred != nil {
		s.SyncDeferred = *p.SyncDeferred
	}
	if len(p.Tags) > 0 {
		s.Tags = append([]string(nil), p.Tags...)
	}
	if p.Score != nil {
		s.Score = *p.Score
	}
	if p.Summary != nil {
		s.Summary = *p.Summary
	}
	if p.Usage != nil {
		s.Usage.Add(*p.Usage)
	}
	if p.Cost != nil {
		s.CostEstimate += *p.Cost
	}
}

// HistoryTail returns the most recent n history turns (all of them when the
// window exceeds the history length). The returned slice aliases the
// underlying history; callers must not mutate it.
func (s *ConversationState) HistoryTail(n int) []Turn {
	if n <= 0 || len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// Clone returns a deep copy safe for independent mutation, used by
// checkpoint stores to hand out defensive copies.
func (s *ConversationState) Clone() *ConversationState {
	out := *s
	out.History = append([]Turn(nil), s.History...)
	out.RetrievalResults = make([]RetrievalResult, len(s.RetrievalResults))
	for i, r := range s.RetrievalResults {
		rc := r
		if r.Metadata != nil {
			rc.Metadata = make(map[string]string, len(r.Metadata))
			for k, v := range r.Metadata {
				rc.Metadata[k] = v
			}
		}
		out.RetrievalResults[i] = rc
	}
	out.Tags = append([]string(nil), s.Tags...)
	if s.ResponseText != nil {
		v := *s.ResponseText
		out.ResponseText = &v
	}
	if s.EscalationReason != nil {
		v := *s.EscalationReason
		out.EscalationReason = &v
	}
	out.Record = cloneRecord(s.Record)
	return &out
}

func cloneRecord(r ExtractedRecord) ExtractedRecord {
	out := r
	if r.Name != nil {
		v := *r.Name
		out.Name = &v
	}
	if r.Email != nil {
		v := *r.Email
		out.Email = &v
	}
	if r.Phone != nil {
		v := *r.Phone
		out.Phone = &v
	}
	if r.Company != nil {
		v := *r.Company
		out.Company = &v
	}
	if r.Budget != nil {
		v := *r.Budget
		out.Budget = &v
	}
	if r.ProductInterest != nil {
		v := *r.ProductInterest
		out.ProductInterest = &v
	}
	if r.Timeline != nil {
		v := *r.Timeline
		out.Timeline = &v
	}
	return out
}

// NewID generates a unique identifier for messages and lease owners.
func NewID() string { return uuid.NewString() }
