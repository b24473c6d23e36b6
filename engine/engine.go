// Package engine implements the pipeline orchestrator: a fixed stage graph
// walked under a per-conversation lease, with a durable checkpoint written
// after every stage completion and before the next stage is invoked. A crash
// at any point replays at most the interrupted stage on resume.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/convomesh/config"
	"github.com/hupe1980/convomesh/core"
	"github.com/hupe1980/convomesh/internal/backoff"
	"github.com/hupe1980/convomesh/lease"
	"github.com/hupe1980/convomesh/logging"
)

var (
	// ErrConversationBusy is returned when another worker holds the
	// conversation's lease.
	ErrConversationBusy = errors.New("conversation is being processed by another worker")

	// ErrLeaseRevoked is returned when a worker observes that its lease was
	// reclaimed mid-turn; it declines to run the next stage.
	ErrLeaseRevoked = errors.New("conversation lease revoked")

	// ErrNoCheckpoint is returned by Resume when the conversation has no
	// persisted checkpoint.
	ErrNoCheckpoint = errors.New("no checkpoint to resume")
)

// Stages collects the five stage implementations the graph is built from.
type Stages struct {
	Router     core.Stage
	Extraction core.Stage
	Generation core.Stage
	Sync       core.Stage
	Escalate   core.Stage
}

// Options configures the engine.
type Options struct {
	// Checkpoints persists turn state between stages.
	Checkpoints core.CheckpointStore

	// Leases guards per-conversation mutual exclusion.
	Leases *lease.Registry

	// Config carries the retry policies and escalation thresholds.
	Config config.Config

	// Logger observes stage executions and checkpoint writes.
	Logger logging.Logger

	// Clock stamps checkpoints; overridable in tests.
	Clock func() time.Time
}

// Engine walks the pipeline graph for one turn at a time.
type Engine struct {
	stages map[core.StageName]core.Stage
	edges  map[core.StageName]core.Decision
	opts   Options
	log    *logging.PipelineLogger
}

// New creates an engine over the given stages.
func New(stages Stages, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: config.Default(),
		Clock:  time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Leases == nil {
		opts.Leases = lease.NewRegistry(opts.Config.LeaseTTL)
	}

	e := &Engine{
		stages: map[core.StageName]core.Stage{
			core.StageRouter:     stages.Router,
			core.StageExtraction: stages.Extraction,
			core.StageGeneration: stages.Generation,
			core.StageSync:       stages.Sync,
			core.StageEscalate:   stages.Escalate,
		},
		opts: opts,
		log:  logging.NewPipelineLogger(opts.Logger).WithComponent("engine"),
	}
	e.edges = map[core.StageName]core.Decision{
		core.StageRouter:     e.escalateOr(core.StageExtraction),
		core.StageExtraction: e.escalateOr(core.StageGeneration),
		core.StageGeneration: static(core.StageSync),
		core.StageSync:       static(core.StageEnd),
		core.StageEscalate:   static(core.StageEnd),
	}
	return e
}

// Invoke runs a fresh turn through the pipeline starting at the router.
// The seed state is not mutated; the completed state is returned.
func (e *Engine) Invoke(ctx context.Context, seed *core.ConversationState) (*core.ConversationState, error) {
	owner := core.NewID()
	if err := e.opts.Leases.Acquire(seed.ConversationID, owner); err != nil {
		if errors.Is(err, lease.ErrHeld) {
			return nil, fmt.Errorf("%w: %s", ErrConversationBusy, seed.ConversationID)
		}
		return nil, err
	}
	defer e.opts.Leases.Release(seed.ConversationID, owner) //nolint:errcheck

	return e.run(ctx, seed.Clone(), core.StageRouter, owner)
}

// Resume continues an interrupted turn from its last checkpoint. The
// interrupted stage re-executes in full; stages completed before the crash
// never re-run.
func (e *Engine) Resume(ctx context.Context, conversationID string) (*core.ConversationState, error) {
	cp, err := e.opts.Checkpoints.Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, core.ErrCheckpointNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoCheckpoint, conversationID)
		}
		return nil, err
	}
	if cp.NextStage == core.StageEnd {
		return cp.State.Clone(), nil
	}

	owner := core.NewID()
	if err := e.opts.Leases.Acquire(conversationID, owner); err != nil {
		if errors.Is(err, lease.ErrHeld) {
			return nil, fmt.Errorf("%w: %s", ErrConversationBusy, conversationID)
		}
		return nil, err
	}
	defer e.opts.Leases.Release(conversationID, owner) //nolint:errcheck

	return e.run(ctx, cp.State.Clone(), cp.NextStage, owner)
}

func (e *Engine) run(ctx context.Context, state *core.ConversationState, next core.StageName, owner string) (*core.ConversationState, error) {
	log := e.log.WithConversation(state.ConversationID, state.MessageID)

	if err := e.checkpoint(ctx, state, next, owner); err != nil {
		return nil, err
	}

	for next != core.StageEnd {
		// A reclaimed lease means another worker took over; writing any
		// further state would race with it.
		if holder, ok := e.opts.Leases.Holder(state.ConversationID); !ok || holder != owner {
			return nil, fmt.Errorf("%w: %s", ErrLeaseRevoked, state.ConversationID)
		}

		stg, ok := e.stages[next]
		if !ok || stg == nil {
			return nil, fmt.Errorf("no stage registered for %q", next)
		}

		patch, err := e.executeWithRetry(ctx, stg, state, log)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if next == core.StageEscalate {
				// Escalation is terminal even when the notifier is down;
				// the state already carries the escalation flags.
				log.Error("escalation stage failed, ending turn", "error", err)
				break
			}
			log.Error("stage retries exhausted, escalating",
				"stage", string(next), "error", err)
			state.Apply(escalationPatch(core.EscalationReasonPipelineFailure))
			next = core.StageEscalate
			if cerr := e.checkpoint(ctx, state, next, owner); cerr != nil {
				return nil, cerr
			}
			continue
		}

		state.Apply(patch)

		next = e.edges[stg.Name()](state)
		if next == core.StageEscalate && !state.NeedsEscalation {
			reason, _ := e.escalationReason(state)
			state.Apply(escalationPatch(reason))
		}

		if err := e.checkpoint(ctx, state, next, owner); err != nil {
			return nil, err
		}
	}

	return state, nil
}

// checkpoint persists state plus the next stage name and renews the lease.
// The write happens strictly before the next stage is invoked.
func (e *Engine) checkpoint(ctx context.Context, state *core.ConversationState, next core.StageName, owner string) error {
	cp := core.Checkpoint{
		State:     *state.Clone(),
		NextStage: next,
		UpdatedAt: e.opts.Clock(),
	}
	if err := e.opts.Checkpoints.Put(ctx, state.ConversationID, cp); err != nil {
		return fmt.Errorf("checkpoint write: %w", err)
	}
	e.log.WithConversation(state.ConversationID, state.MessageID).LogCheckpoint(string(next))

	if err := e.opts.Leases.Renew(state.ConversationID, owner); err != nil {
		return fmt.Errorf("%w: %s", ErrLeaseRevoked, state.ConversationID)
	}
	return nil
}

func (e *Engine) executeWithRetry(ctx context.Context, stg core.Stage, state *core.ConversationState, log *logging.PipelineLogger) (*core.StatePatch, error) {
	policy := e.opts.Config.RetryFor(string(stg.Name()))

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		start := e.opts.Clock()
		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if d := e.opts.Config.StageTimeout; d > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, d)
		}
		// Stages receive a copy so a misbehaving implementation cannot
		// bypass patch application.
		patch, err := stg.Execute(attemptCtx, state.Clone())
		cancel()
		log.LogStage(string(stg.Name()), attempt, time.Since(start), err)
		if err == nil {
			return patch, nil
		}
		lastErr = err
		// Expiry of the per-attempt timeout is retried like any transport
		// error; only cancellation of the caller's context aborts the turn.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < policy.MaxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff.Delay(policy.BaseDelay, attempt)):
			}
		}
	}
	return nil, lastErr
}

// escalateOr routes to the escalation stage when any trigger fires,
// otherwise to next.
func (e *Engine) escalateOr(next core.StageName) core.Decision {
	return func(state *core.ConversationState) core.StageName {
		if state.NeedsEscalation {
			return core.StageEscalate
		}
		if _, ok := e.escalationReason(state); ok {
			return core.StageEscalate
		}
		return next
	}
}

// escalationReason evaluates the trigger set. Triggers combine with OR;
// when several fire at once the reported reason follows the fixed order
// high priority, negative sentiment, intent trigger.
func (e *Engine) escalationReason(state *core.ConversationState) (string, bool) {
	if state.Priority == core.PriorityHigh {
		return core.EscalationReasonHighPriority, true
	}
	if state.Sentiment < e.opts.Config.SentimentThreshold {
		return core.EscalationReasonNegativeSentiment, true
	}
	if e.opts.Config.IsEscalationIntent(string(state.Intent)) {
		return core.EscalationReasonIntentTrigger, true
	}
	return "", false
}

func escalationPatch(reason string) *core.StatePatch {
	t := true
	r := reason
	return &core.StatePatch{NeedsEscalation: &t, EscalationReason: &r}
}

func static(next core.StageName) core.Decision {
	return func(*core.ConversationState) core.StageName { return next }
}
