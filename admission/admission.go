// Package admission sits in front of the engine: it admits inbound turns,
// rejects work beyond a global capacity, serializes turns of the same
// conversation in arrival order, and lets distinct conversations run in
// parallel across a fixed worker pool. It also seeds each new turn's state
// with the conversation history persisted by the previous turn's checkpoint.
package admission

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/convomesh/core"
	"github.com/hupe1980/convomesh/logging"
)

var (
	// ErrQueueFull is returned when the global capacity is exhausted;
	// callers are expected to retry later or shed the turn upstream.
	ErrQueueFull = errors.New("admission queue full")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("admission queue closed")
)

// Invoker runs one seeded turn to completion. Satisfied by *engine.Engine.
type Invoker interface {
	Invoke(ctx context.Context, seed *core.ConversationState) (*core.ConversationState, error)
}

// Result delivers a completed turn to the submitter.
type Result struct {
	State *core.ConversationState
	Err   error
}

type work struct {
	turn core.InboundTurn
	out  chan Result
}

// Options configures the admission queue.
type Options struct {
	// Workers sets the processing pool size.
	Workers int

	// Capacity bounds turns admitted but not yet completed.
	Capacity int

	// HistoryWindow bounds the seeded conversation history.
	HistoryWindow int

	// Logger observes rejections and completions.
	Logger logging.Logger

	// BaseContext is the parent context for turn processing; defaults to
	// context.Background so processing outlives the submit call.
	BaseContext context.Context
}

// Queue is the admission front of the pipeline.
type Queue struct {
	engine      Invoker
	checkpoints core.CheckpointStore
	opts        Options
	log         *logging.PipelineLogger

	mu       sync.Mutex
	pending  map[string][]work
	inFlight map[string]bool
	total    int
	closed   bool

	ready chan string
	wg    sync.WaitGroup
}

// New creates the queue and starts its workers.
func New(engine Invoker, checkpoints core.CheckpointStore, optFns ...func(o *Options)) *Queue {
	opts := Options{
		Workers:       4,
		Capacity:      256,
		HistoryWindow: 20,
		BaseContext:   context.Background(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Capacity < 1 {
		opts.Capacity = 1
	}

	q := &Queue{
		engine:      engine,
		checkpoints: checkpoints,
		opts:        opts,
		log:         logging.NewPipelineLogger(opts.Logger).WithComponent("admission"),
		pending:     make(map[string][]work),
		inFlight:    make(map[string]bool),
		ready:       make(chan string, opts.Capacity),
	}
	for i := 0; i < opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Submit admits one inbound turn. It returns immediately with a channel that
// receives exactly one Result when the turn completes. Turns of the same
// conversation are processed strictly in submission order; a turn beyond the
// global capacity is rejected with ErrQueueFull.
func (q *Queue) Submit(ctx context.Context, turn core.InboundTurn) (<-chan Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrClosed
	}
	if q.total >= q.opts.Capacity {
		q.log.Warn("turn rejected, queue at capacity",
			"conversation_id", turn.ConversationID, "capacity", q.opts.Capacity)
		return nil, ErrQueueFull
	}

	out := make(chan Result, 1)
	q.total++
	q.pending[turn.ConversationID] = append(q.pending[turn.ConversationID], work{turn: turn, out: out})

	if !q.inFlight[turn.ConversationID] {
		q.inFlight[turn.ConversationID] = true
		// Capacity bounds the number of buffered signals, so this send
		// never blocks while the mutex is held.
		q.ready <- turn.ConversationID
	}

	return out, nil
}

// Close stops accepting turns and waits for admitted turns to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ready)
	q.mu.Unlock()

	q.wg.Wait()
}

// worker drains one conversation at a time, preserving per-conversation
// arrival order.
func (q *Queue) worker() {
	defer q.wg.Done()
	for conversationID := range q.ready {
		for {
			q.mu.Lock()
			queue := q.pending[conversationID]
			if len(queue) == 0 {
				delete(q.pending, conversationID)
				delete(q.inFlight, conversationID)
				q.mu.Unlock()
				break
			}
			w := queue[0]
			q.pending[conversationID] = queue[1:]
			q.mu.Unlock()

			q.process(w)

			q.mu.Lock()
			q.total--
			q.mu.Unlock()
		}
	}
}

func (q *Queue) process(w work) {
	ctx := q.opts.BaseContext
	seed := q.seedState(ctx, w.turn)

	state, err := q.engine.Invoke(ctx, seed)
	if err != nil {
		q.log.Error("turn processing failed",
			"conversation_id", w.turn.ConversationID, "error", err)
	}
	w.out <- Result{State: state, Err: err}
	close(w.out)
}

// seedState builds the fresh turn state, carrying over the persisted history
// of the previous completed turn together with that turn's own exchange.
func (q *Queue) seedState(ctx context.Context, turn core.InboundTurn) *core.ConversationState {
	state := core.NewState(turn)

	cp, err := q.checkpoints.Get(ctx, turn.ConversationID)
	if err != nil {
		if !errors.Is(err, core.ErrCheckpointNotFound) {
			q.log.Warn("history seed unavailable",
				"conversation_id", turn.ConversationID, "error", err)
		}
		return state
	}

	history := append([]core.Turn(nil), cp.State.History...)
	ts := cp.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	if cp.State.Content != "" {
		history = append(history, core.Turn{Role: "user", Text: cp.State.Content, Timestamp: ts})
	}
	if cp.State.ResponseText != nil && *cp.State.ResponseText != "" {
		history = append(history, core.Turn{Role: "assistant", Text: *cp.State.ResponseText, Timestamp: ts})
	}
	if n := q.opts.HistoryWindow; n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	state.History = history
	return state
}
