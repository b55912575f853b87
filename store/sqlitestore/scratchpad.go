// Package sqlitestore backs store.ScratchpadStore and store.AgentStore with
// SQLite via modernc.org/sqlite, the pure-Go driver used throughout the
// example pack's CLI-style agents for local, dependency-free persistence.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/agentmesh/runtime/event"
)

// ScratchpadStore implements store.ScratchpadStore over a single SQLite
// table, append-only as the trait requires.
type ScratchpadStore struct {
	db *sql.DB
}

// OpenScratchpadStore opens (creating if needed) a SQLite database at path
// and ensures the scratchpad table exists.
func OpenScratchpadStore(path string) (*ScratchpadStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening scratchpad db: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS scratchpad_entries (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	thread_id  TEXT NOT NULL,
	task_id    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	timestamp  INTEGER NOT NULL,
	payload    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scratchpad_task ON scratchpad_entries(thread_id, task_id);
CREATE INDEX IF NOT EXISTS idx_scratchpad_thread ON scratchpad_entries(thread_id);
`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrating scratchpad db: %w", err)
	}
	return &ScratchpadStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *ScratchpadStore) Close() error { return s.db.Close() }

func (s *ScratchpadStore) AddEntry(ctx context.Context, threadID, taskID string, entry event.ScratchpadEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding scratchpad entry: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scratchpad_entries (thread_id, task_id, kind, timestamp, payload) VALUES (?, ?, ?, ?, ?)`,
		threadID, taskID, string(entry.Kind), entry.Timestamp, string(payload))
	return err
}

func (s *ScratchpadStore) ClearEntries(ctx context.Context, threadID, taskID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scratchpad_entries WHERE thread_id = ? AND task_id = ?`, threadID, taskID)
	return err
}

func (s *ScratchpadStore) GetEntries(ctx context.Context, threadID, taskID string, limit int) ([]event.ScratchpadEntry, error) {
	return s.query(ctx, `SELECT payload FROM scratchpad_entries WHERE thread_id = ? AND task_id = ? ORDER BY seq ASC`, []any{threadID, taskID}, limit)
}

func (s *ScratchpadStore) GetAllEntries(ctx context.Context, threadID string, limit int) ([]event.ScratchpadEntry, error) {
	return s.query(ctx, `SELECT payload FROM scratchpad_entries WHERE thread_id = ? ORDER BY seq ASC`, []any{threadID}, limit)
}

func (s *ScratchpadStore) query(ctx context.Context, q string, args []any, limit int) ([]event.ScratchpadEntry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []event.ScratchpadEntry
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var entry event.ScratchpadEntry
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			return nil, fmt.Errorf("decoding scratchpad entry: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
