// Package sqlite provides a durable, SQLite-backed CheckpointStore.
//
// Notes:
//   - One row per conversation; Put replaces the previous checkpoint.
//   - WAL is enabled to support concurrent readers while a turn is writing.
//   - State is stored as a JSON column so the schema survives state-model
//     additions without migrations.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/convomesh/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	conversation_id    TEXT PRIMARY KEY,
	state_json         TEXT NOT NULL,
	next_stage         TEXT NOT NULL,
	updated_at_unix_ms INTEGER NOT NULL
);
`

// Store is a local SQLite-backed persistence layer for conversation
// checkpoints. The per-conversation lease guarantees a single writer per
// conversation; the connection pool is capped at one open connection to
// keep SQLite write serialization trivial.
type Store struct {
	db *sql.DB
}

// Open creates (or reopens) the checkpoint database at path.
func Open(path string) (*Store, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" {
		return nil, errors.New("missing db path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("enable wal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put implements core.CheckpointStore.
func (s *Store) Put(ctx context.Context, conversationID string, cp core.Checkpoint) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return errors.New("missing conversation_id")
	}
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	updatedAt := cp.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO checkpoints (conversation_id, state_json, next_stage, updated_at_unix_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT(conversation_id) DO UPDATE SET
	state_json = excluded.state_json,
	next_stage = excluded.next_stage,
	updated_at_unix_ms = excluded.updated_at_unix_ms
`, conversationID, string(stateJSON), string(cp.NextStage), updatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("put checkpoint: %w", err)
	}
	return nil
}

// Get implements core.CheckpointStore.
func (s *Store) Get(ctx context.Context, conversationID string) (core.Checkpoint, error) {
	out := core.Checkpoint{}
	if s == nil || s.db == nil {
		return out, errors.New("store not initialized")
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return out, errors.New("missing conversation_id")
	}

	var stateJSON, nextStage string
	var updatedAtMs int64
	err := s.db.QueryRowContext(ctx, `
SELECT state_json, next_stage, updated_at_unix_ms
FROM checkpoints WHERE conversation_id = ?
`, conversationID).Scan(&stateJSON, &nextStage, &updatedAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return out, core.ErrCheckpointNotFound
	}
	if err != nil {
		return out, fmt.Errorf("get checkpoint: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &out.State); err != nil {
		return out, fmt.Errorf("unmarshal state: %w", err)
	}
	out.NextStage = core.StageName(nextStage)
	out.UpdatedAt = time.UnixMilli(updatedAtMs)
	return out, nil
}

var _ core.CheckpointStore = (*Store)(nil)
