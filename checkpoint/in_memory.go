// Package checkpoint contains concrete CheckpointStore implementations. The
// store interface and Checkpoint type reside in the core package; choose an
// implementation (volatile in-memory below, durable SQLite in the sqlite
// subpackage) at wiring time.
package checkpoint

import (
	"context"
	"sync"

	"github.com/hupe1980/convomesh/core"
)

// InMemoryStore is a volatile CheckpointStore storing checkpoints in a
// process local map. It is safe for concurrent access and best suited for
// tests or ephemeral demo servers. Each stored and returned checkpoint is
// deep-copied to prevent external mutation of internal state.
type InMemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]core.Checkpoint
}

// NewInMemoryStore constructs an empty in-memory checkpoint store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{checkpoints: make(map[string]core.Checkpoint)}
}

// Put implements core.CheckpointStore.
func (s *InMemoryStore) Put(ctx context.Context, conversationID string, cp core.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp.State = *cp.State.Clone()
	s.checkpoints[conversationID] = cp
	return nil
}

// Get implements core.CheckpointStore.
func (s *InMemoryStore) Get(ctx context.Context, conversationID string) (core.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return core.Checkpoint{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[conversationID]
	if !ok {
		return core.Checkpoint{}, core.ErrCheckpointNotFound
	}
	cp.State = *cp.State.Clone()
	return cp, nil
}

var _ core.CheckpointStore = (*InMemoryStore)(nil)
