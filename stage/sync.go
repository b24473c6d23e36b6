package stage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/convomesh/core"
	"github.com/hupe1980/convomesh/internal/backoff"
	"github.com/hupe1980/convomesh/logging"
)

// Budget bucket boundaries for tagging and scoring.
const (
	budgetMedium = 1000
	budgetLarge  = 10000
)

// SyncOptions configures the CRM synchronization stage.
type SyncOptions struct {
	// MaxAttempts bounds upsert attempts before deferring the sync.
	MaxAttempts int

	// BaseDelay seeds the backoff between attempts.
	BaseDelay time.Duration

	// Logger observes deferrals.
	Logger logging.Logger
}

// Sync derives tags, a lead score and a summary from the accumulated state
// and upserts the contact into the CRM. The derivation is a pure function of
// the state, so re-running the stage after a crash writes the same values.
// When the CRM stays unreachable the stage defers the sync instead of
// failing the turn.
type Sync struct {
	crm  core.CRMClient
	opts SyncOptions
	log  *logging.PipelineLogger
}

// NewSync creates the synchronization stage.
func NewSync(crm core.CRMClient, optFns ...func(o *SyncOptions)) *Sync {
	opts := SyncOptions{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Sync{
		crm:  crm,
		opts: opts,
		log:  logging.NewPipelineLogger(opts.Logger).WithComponent("sync"),
	}
}

// Name implements core.Stage.
func (s *Sync) Name() core.StageName {
	return core.StageSync
}

// Execute implements core.Stage. It never returns an error: an unreachable
// CRM marks the state deferred so a later reconciliation can replay it.
func (s *Sync) Execute(ctx context.Context, state *core.ConversationState) (*core.StatePatch, error) {
	tags := DeriveTags(state)
	score := LeadScore(state)
	summary := Summarize(state)

	patch := &core.StatePatch{
		Tags:    tags,
		Score:   intPtr(score),
		Summary: strPtr(summary),
	}

	upsert := buildUpsert(state, tags, score, summary)

	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		lastErr = s.crm.Upsert(ctx, upsert)
		if lastErr == nil {
			patch.SyncCompleted = boolPtr(true)
			return patch, nil
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < s.opts.MaxAttempts {
			select {
			case <-ctx.Done():
			case <-time.After(backoff.Delay(s.opts.BaseDelay, attempt)):
			}
		}
	}

	s.log.Warn("crm unreachable, deferring sync",
		"conversation_id", state.ConversationID, "error", lastErr)

	patch.SyncDeferred = boolPtr(true)
	return patch, nil
}

func buildUpsert(state *core.ConversationState, tags []string, score int, summary string) core.ContactUpsert {
	attrs := map[string]string{
		"last_intent":   string(state.Intent),
		"last_priority": string(state.Priority),
		"lead_score":    strconv.Itoa(score),
		"summary":       summary,
	}
	setAttr := func(key string, v *string) {
		if v != nil && *v != "" {
			attrs[key] = *v
		}
	}
	setAttr("name", state.Record.Name)
	setAttr("email", state.Record.Email)
	setAttr("phone", state.Record.Phone)
	setAttr("company", state.Record.Company)
	setAttr("product_interest", state.Record.ProductInterest)
	setAttr("timeline", state.Record.Timeline)
	if state.Record.Budget != nil {
		attrs["budget"] = strconv.FormatFloat(*state.Record.Budget, 'f', 2, 64)
	}

	return core.ContactUpsert{
		ContactID:  state.ContactID,
		Attributes: attrs,
		Labels:     tags,
	}
}

// DeriveTags computes the deterministic tag set for a state. Sorted so the
// same state always yields the same slice.
func DeriveTags(state *core.ConversationState) []string {
	tags := []string{
		"intent:" + string(state.Intent),
		"priority:" + string(state.Priority),
		"budget:" + budgetBucket(state.Record.Budget),
	}
	if state.NeedsEscalation {
		tags = append(tags, "escalated")
	}
	if state.Record.LowConfidence {
		tags = append(tags, "low-confidence")
	}
	if state.ResponseDegraded {
		tags = append(tags, "degraded-response")
	}
	sort.Strings(tags)
	return tags
}

func budgetBucket(budget *float64) string {
	switch {
	case budget == nil:
		return "unknown"
	case *budget >= budgetLarge:
		return "large"
	case *budget >= budgetMedium:
		return "medium"
	default:
		return "small"
	}
}

// LeadScore computes a 0-100 lead score from a fixed weighted rule table.
func LeadScore(state *core.ConversationState) int {
	score := 10

	switch state.Priority {
	case core.PriorityHigh:
		score += 30
	case core.PriorityMedium:
		score += 15
	}

	switch {
	case state.Record.Budget == nil:
	case *state.Record.Budget >= budgetLarge:
		score += 25
	case *state.Record.Budget >= budgetMedium:
		score += 15
	default:
		score += 5
	}

	if state.Record.Email != nil && *state.Record.Email != "" {
		score += 10
	}
	if state.Record.Phone != nil && *state.Record.Phone != "" {
		score += 5
	}
	if state.Intent == core.IntentSales {
		score += 10
	}
	if state.Sentiment > 0.3 {
		score += 5
	}

	if score > 100 {
		score = 100
	}
	return score
}

// Summarize renders a one-line deterministic summary of the turn.
func Summarize(state *core.ConversationState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Intent %s, priority %s", state.Intent, state.Priority)
	if state.Record.Budget != nil {
		fmt.Fprintf(&b, ", budget %.0f", *state.Record.Budget)
	}
	if state.Record.ProductInterest != nil && *state.Record.ProductInterest != "" {
		fmt.Fprintf(&b, ", interested in %s", *state.Record.ProductInterest)
	}
	if state.NeedsEscalation {
		b.WriteString(", escalated to a human agent")
	}
	return b.String()
}

var _ core.Stage = (*Sync)(nil)
