// Package convomesh provides a high-level façade over the pipeline engine
// and its service abstractions (model providers, retrieval, CRM, notifier,
// checkpoints & logging) for running a conversation orchestration pipeline.
// Most applications interact with this package by:
//  1. Creating a ConvoMesh via New() with a model (optionally overriding the
//     default in-memory services)
//  2. Submitting inbound turns with Process() or Submit()
//  3. Resuming interrupted turns with Resume()
//
// The façade delegates orchestration to engine.Engine and admission to
// admission.Queue while keeping setup ergonomics concise. All defaults are
// safe for local development and testing; production deployments typically
// supply a durable checkpoint store and a structured logger.
package convomesh

import (
	"context"

	"github.com/hupe1980/convomesh/admission"
	"github.com/hupe1980/convomesh/checkpoint"
	"github.com/hupe1980/convomesh/config"
	"github.com/hupe1980/convomesh/core"
	"github.com/hupe1980/convomesh/crm"
	"github.com/hupe1980/convomesh/engine"
	"github.com/hupe1980/convomesh/lease"
	"github.com/hupe1980/convomesh/logging"
	"github.com/hupe1980/convomesh/model"
	"github.com/hupe1980/convomesh/notify"
	"github.com/hupe1980/convomesh/retrieval"
	"github.com/hupe1980/convomesh/stage"
)

// Options configures the ConvoMesh instance.
type Options struct {
	// Config carries pipeline tuning: iteration caps, escalation
	// thresholds, retry policies, worker pool sizing.
	Config config.Config

	// Services (default to in-memory implementations if not provided).
	Retrieval   core.RetrievalService
	CRM         core.CRMClient
	Notifier    core.Notifier
	Checkpoints core.CheckpointStore

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// ConvoMesh is the high-level façade aggregating the engine and the
// admission queue.
type ConvoMesh struct {
	opts   Options
	engine *engine.Engine
	queue  *admission.Queue
}

// New creates a ConvoMesh over the given model. Any unset service is
// initialized with an in-memory implementation.
func New(m model.Model, optFns ...func(o *Options)) *ConvoMesh {
	opts := Options{
		Config:      config.Default(),
		Retrieval:   retrieval.NewInMemoryIndex(),
		CRM:         crm.NewInMemoryClient(),
		Checkpoints: checkpoint.NewInMemoryStore(),
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLogNotifier(opts.Logger)
	}

	cfg := opts.Config

	stages := engine.Stages{
		Router: stage.NewRouter(m, func(o *stage.RouterOptions) {
			o.HistoryWindow = cfg.HistoryWindow
			o.Logger = opts.Logger
		}),
		Extraction: stage.NewExtraction(m, func(o *stage.ExtractionOptions) {
			o.HistoryWindow = cfg.HistoryWindow
			o.Logger = opts.Logger
		}),
		Generation: stage.NewGeneration(m, opts.Retrieval, func(o *stage.GenerationOptions) {
			o.MaxIterations = cfg.MaxRetrievalIterations
			o.TopK = cfg.RetrievalTopK
			o.SimilarityThreshold = cfg.SimilarityThreshold
			o.HistoryWindow = cfg.HistoryWindow
			o.Logger = opts.Logger
		}),
		Sync: stage.NewSync(opts.CRM, func(o *stage.SyncOptions) {
			o.Logger = opts.Logger
		}),
		Escalate: stage.NewEscalate(opts.Notifier, func(o *stage.EscalateOptions) {
			o.Logger = opts.Logger
		}),
	}

	eng := engine.New(stages, func(o *engine.Options) {
		o.Checkpoints = opts.Checkpoints
		o.Leases = lease.NewRegistry(cfg.LeaseTTL)
		o.Config = cfg
		o.Logger = opts.Logger
	})

	queue := admission.New(eng, opts.Checkpoints, func(o *admission.Options) {
		o.Workers = cfg.Workers
		o.Capacity = cfg.QueueCapacity
		o.HistoryWindow = cfg.HistoryWindow
		o.Logger = opts.Logger
	})

	return &ConvoMesh{opts: opts, engine: eng, queue: queue}
}

// Submit admits a turn asynchronously; the returned channel receives exactly
// one result when the turn completes.
func (c *ConvoMesh) Submit(ctx context.Context, turn core.InboundTurn) (<-chan admission.Result, error) {
	return c.queue.Submit(ctx, turn)
}

// Process admits a turn and waits for its completion.
func (c *ConvoMesh) Process(ctx context.Context, turn core.InboundTurn) (*core.ConversationState, error) {
	out, err := c.queue.Submit(ctx, turn)
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-out:
		return res.State, res.Err
	}
}

// Resume continues an interrupted turn from its last checkpoint.
func (c *ConvoMesh) Resume(ctx context.Context, conversationID string) (*core.ConversationState, error) {
	return c.engine.Resume(ctx, conversationID)
}

// Checkpoint returns the last persisted checkpoint for a conversation.
func (c *ConvoMesh) Checkpoint(ctx context.Context, conversationID string) (core.Checkpoint, error) {
	return c.opts.Checkpoints.Get(ctx, conversationID)
}

// Close drains the admission queue and waits for in-flight turns.
func (c *ConvoMesh) Close() {
	c.queue.Close()
}
