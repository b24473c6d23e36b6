package admission

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/convomesh/checkpoint"
	"github.com/hupe1980/convomesh/core"
)

// scriptedInvoker records seeds in completion order and can block to widen
// race windows in ordering tests.
type scriptedInvoker struct {
	mu    sync.Mutex
	seeds []*core.ConversationState
	delay time.Duration
	block chan struct{}
}

func (s *scriptedInvoker) Invoke(ctx context.Context, seed *core.ConversationState) (*core.ConversationState, error) {
	if s.block != nil {
		<-s.block
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	s.seeds = append(s.seeds, seed)
	s.mu.Unlock()

	out := seed.Clone()
	resp := "reply to " + seed.Content
	out.ResponseText = &resp
	return out, nil
}

func (s *scriptedInvoker) Seeds() []*core.ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*core.ConversationState(nil), s.seeds...)
}

func newTurn(conversationID, content string) core.InboundTurn {
	return core.InboundTurn{
		ConversationID: conversationID,
		ContactID:      "contact-" + conversationID,
		Channel:        core.ChannelWeb,
		Content:        content,
		ReceivedAt:     time.Now(),
	}
}

func TestQueue_Submit_DeliversResult(t *testing.T) {
	invoker := &scriptedInvoker{}
	q := New(invoker, checkpoint.NewInMemoryStore())
	defer q.Close()

	out, err := q.Submit(context.Background(), newTurn("conv-1", "hello"))
	require.NoError(t, err)

	res := <-out
	require.NoError(t, res.Err)
	require.NotNil(t, res.State)
	assert.Equal(t, "reply to hello", *res.State.ResponseText)
}

func TestQueue_Submit_SameConversationRunsInOrder(t *testing.T) {
	invoker := &scriptedInvoker{delay: 5 * time.Millisecond}
	q := New(invoker, checkpoint.NewInMemoryStore(), func(o *Options) {
		o.Workers = 4
	})
	defer q.Close()

	var outs []<-chan Result
	for _, content := range []string{"first", "second", "third"} {
		out, err := q.Submit(context.Background(), newTurn("conv-1", content))
		require.NoError(t, err)
		outs = append(outs, out)
	}
	for _, out := range outs {
		res := <-out
		require.NoError(t, res.Err)
	}

	seeds := invoker.Seeds()
	require.Len(t, seeds, 3)
	assert.Equal(t, "first", seeds[0].Content)
	assert.Equal(t, "second", seeds[1].Content)
	assert.Equal(t, "third", seeds[2].Content)
}

func TestQueue_Submit_DistinctConversationsRunInParallel(t *testing.T) {
	block := make(chan struct{})
	invoker := &scriptedInvoker{block: block}
	q := New(invoker, checkpoint.NewInMemoryStore(), func(o *Options) {
		o.Workers = 2
	})
	defer q.Close()

	out1, err := q.Submit(context.Background(), newTurn("conv-1", "a"))
	require.NoError(t, err)
	out2, err := q.Submit(context.Background(), newTurn("conv-2", "b"))
	require.NoError(t, err)

	// Both turns are in flight while blocked; releasing them lets both
	// complete even though neither yielded its worker.
	close(block)

	res1 := <-out1
	res2 := <-out2
	assert.NoError(t, res1.Err)
	assert.NoError(t, res2.Err)
}

func TestQueue_Submit_BackpressureRejectsBeyondCapacity(t *testing.T) {
	block := make(chan struct{})
	invoker := &scriptedInvoker{block: block}
	q := New(invoker, checkpoint.NewInMemoryStore(), func(o *Options) {
		o.Workers = 1
		o.Capacity = 2
	})
	defer q.Close()

	_, err := q.Submit(context.Background(), newTurn("conv-1", "a"))
	require.NoError(t, err)
	_, err = q.Submit(context.Background(), newTurn("conv-2", "b"))
	require.NoError(t, err)

	_, err = q.Submit(context.Background(), newTurn("conv-3", "c"))
	assert.ErrorIs(t, err, ErrQueueFull)

	close(block)
}

func TestQueue_Submit_AfterCloseFails(t *testing.T) {
	q := New(&scriptedInvoker{}, checkpoint.NewInMemoryStore())
	q.Close()

	_, err := q.Submit(context.Background(), newTurn("conv-1", "a"))

	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueue_SeedState_CarriesCheckpointHistory(t *testing.T) {
	store := checkpoint.NewInMemoryStore()

	// The previous turn left a completed checkpoint with its own exchange.
	prevResp := "it costs 49 dollars"
	prev := core.NewState(core.InboundTurn{ConversationID: "conv-1", Content: "how much is the pro plan?"})
	prev.History = []core.Turn{{Role: "user", Text: "hi", Timestamp: time.Now()}}
	prev.ResponseText = &prevResp
	require.NoError(t, store.Put(context.Background(), "conv-1", core.Checkpoint{
		State:     *prev,
		NextStage: core.StageEnd,
		UpdatedAt: time.Now(),
	}))

	invoker := &scriptedInvoker{}
	q := New(invoker, store)
	defer q.Close()

	out, err := q.Submit(context.Background(), newTurn("conv-1", "does it include SSO?"))
	require.NoError(t, err)
	<-out

	seeds := invoker.Seeds()
	require.Len(t, seeds, 1)
	history := seeds[0].History
	require.Len(t, history, 3)
	assert.Equal(t, "hi", history[0].Text)
	assert.Equal(t, "how much is the pro plan?", history[1].Text)
	assert.Equal(t, "user", history[1].Role)
	assert.Equal(t, "it costs 49 dollars", history[2].Text)
	assert.Equal(t, "assistant", history[2].Role)
	assert.Equal(t, "does it include SSO?", seeds[0].Content)
}

func TestQueue_SeedState_BoundsHistoryWindow(t *testing.T) {
	store := checkpoint.NewInMemoryStore()

	prev := core.NewState(core.InboundTurn{ConversationID: "conv-1", Content: "latest question"})
	for i := 0; i < 30; i++ {
		prev.History = append(prev.History, core.Turn{Role: "user", Text: "old"})
	}
	require.NoError(t, store.Put(context.Background(), "conv-1", core.Checkpoint{
		State: *prev, NextStage: core.StageEnd, UpdatedAt: time.Now(),
	}))

	invoker := &scriptedInvoker{}
	q := New(invoker, store, func(o *Options) {
		o.HistoryWindow = 10
	})
	defer q.Close()

	out, err := q.Submit(context.Background(), newTurn("conv-1", "next"))
	require.NoError(t, err)
	<-out

	seeds := invoker.Seeds()
	require.Len(t, seeds, 1)
	assert.Len(t, seeds[0].History, 10)
	// The most recent exchange survives the trim.
	assert.Equal(t, "latest question", seeds[0].History[9].Text)
}

func TestQueue_SeedState_FreshConversationHasNoHistory(t *testing.T) {
	invoker := &scriptedInvoker{}
	q := New(invoker, checkpoint.NewInMemoryStore())
	defer q.Close()

	out, err := q.Submit(context.Background(), newTurn("conv-new", "hello"))
	require.NoError(t, err)
	<-out

	seeds := invoker.Seeds()
	require.Len(t, seeds, 1)
	assert.Empty(t, seeds[0].History)
}

func TestQueue_TrackingMapsDoNotGrowAcrossConversations(t *testing.T) {
	invoker := &scriptedInvoker{}
	q := New(invoker, checkpoint.NewInMemoryStore())
	defer q.Close()

	for i := 0; i < 5; i++ {
		out, err := q.Submit(context.Background(), newTurn(fmt.Sprintf("conv-%d", i), "hi"))
		require.NoError(t, err)
		<-out
	}

	// Workers release their per-conversation bookkeeping shortly after
	// delivering the last result.
	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.inFlight) == 0 && len(q.pending) == 0 && q.total == 0
	}, time.Second, 5*time.Millisecond)
}
