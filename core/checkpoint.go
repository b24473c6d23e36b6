package core

import (
	"context"
	"time"
)

// Checkpoint is a durable snapshot of a conversation turn: the state after
// the most recently completed stage plus the name of the next stage to
// execute. Writing the next-stage name before invoking it guarantees that a
// crash mid-stage replays only the interrupted stage on resume, never the
// whole pipeline.
type Checkpoint struct {
	State     ConversationState `json:"state"`
	NextStage StageName         `json:"next_stage"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// CheckpointStore persists the latest checkpoint per conversation. The store
// retains the last completed or interrupted state indefinitely for audit and
// resume; there is no expiry in this engine.
//
// Implementations must be safe for concurrent use across conversations; the
// per-conversation lease guarantees a single writer per conversation.
type CheckpointStore interface {
	// Put stores the checkpoint, replacing any previous one for the
	// conversation.
	Put(ctx context.Context, conversationID string, cp Checkpoint) error

	// Get returns the last checkpoint or ErrCheckpointNotFound.
	Get(ctx context.Context, conversationID string) (Checkpoint, error)
}
