package stage

import (
	"context"
	"strings"
	"time"

	"github.com/hupe1980/convomesh/core"
	"github.com/hupe1980/convomesh/internal/backoff"
	"github.com/hupe1980/convomesh/logging"
	"github.com/hupe1980/convomesh/model"
)

const routerInstructions = `You classify inbound customer messages for a support pipeline.
Respond with a single JSON object and nothing else:
{"intent": "<general|question|support|sales|billing|complaint|cancellation>", "priority": "<low|medium|high>", "sentiment": <number between -1 and 1>}`

// RouterOptions configures the router stage.
type RouterOptions struct {
	// MaxAttempts bounds classification attempts before falling back to
	// the default triple. Never surfaces as a stage error.
	MaxAttempts int

	// BaseDelay seeds the backoff between attempts.
	BaseDelay time.Duration

	// HistoryWindow bounds prior turns included in the prompt.
	HistoryWindow int

	// Logger observes fallbacks.
	Logger logging.Logger
}

// Router classifies a turn into intent, priority, and sentiment. It never
// fails: on provider errors or unparseable output it falls back to the
// default classification so the turn keeps flowing.
type Router struct {
	model model.Model
	opts  RouterOptions
	log   *logging.PipelineLogger
}

// NewRouter creates the classification stage.
func NewRouter(m model.Model, optFns ...func(o *RouterOptions)) *Router {
	opts := RouterOptions{
		MaxAttempts:   2,
		BaseDelay:     100 * time.Millisecond,
		HistoryWindow: 20,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Router{
		model: m,
		opts:  opts,
		log:   logging.NewPipelineLogger(opts.Logger).WithComponent("router"),
	}
}

// Name implements core.Stage.
func (r *Router) Name() core.StageName {
	return core.StageRouter
}

type routerOutput struct {
	Intent    string  `json:"intent"`
	Priority  string  `json:"priority"`
	Sentiment float64 `json:"sentiment"`
}

// Execute implements core.Stage.
func (r *Router) Execute(ctx context.Context, state *core.ConversationState) (*core.StatePatch, error) {
	// An empty or whitespace-only turn still needs a valid classification,
	// but there is nothing to send to the model.
	if strings.TrimSpace(state.Content) == "" {
		return r.fallbackPatch(core.TokenUsage{}), nil
	}

	req := model.Request{
		Instructions: routerInstructions,
		Messages:     historyMessages(state, r.opts.HistoryWindow),
	}

	usage := core.TokenUsage{}

	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		resp, err := generate(ctx, r.model, req, r.log)
		if err != nil {
			r.log.Warn("classification attempt failed", "attempt", attempt, "error", err)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.sleep(ctx, attempt)
			continue
		}

		usage.Add(tokenUsage(resp))

		var out routerOutput
		if err := decodeJSON(resp.Text, &out); err != nil {
			r.log.Warn("classification output unparseable", "attempt", attempt, "error", err)
			continue
		}

		intent := core.NormalizeIntent(out.Intent)
		priority := core.NormalizePriority(out.Priority)
		sentiment := core.ClampSentiment(out.Sentiment)

		return &core.StatePatch{
			Intent:    &intent,
			Priority:  &priority,
			Sentiment: &sentiment,
			Usage:     usagePtr(usage),
		}, nil
	}

	r.log.Warn("classification exhausted attempts, using defaults",
		"conversation_id", state.ConversationID)

	return r.fallbackPatch(usage), nil
}

func (r *Router) fallbackPatch(usage core.TokenUsage) *core.StatePatch {
	intent := core.IntentGeneral
	priority := core.PriorityLow
	sentiment := 0.0
	return &core.StatePatch{
		Intent:    &intent,
		Priority:  &priority,
		Sentiment: &sentiment,
		Usage:     usagePtr(usage),
	}
}

func (r *Router) sleep(ctx context.Context, attempt int) {
	select {
	case <-ctx.Done():
	case <-time.After(backoff.Delay(r.opts.BaseDelay, attempt)):
	}
}

var _ core.Stage = (*Router)(nil)
