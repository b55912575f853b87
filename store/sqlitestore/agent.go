package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/agentmesh/runtime/store"
)

// AgentStore implements store.AgentStore over a SQLite table, one row per
// agent name, the definition stored as a JSON blob.
type AgentStore struct {
	db *sql.DB
}

// OpenAgentStore opens (creating if needed) a SQLite database at path and
// ensures the agents table exists.
func OpenAgentStore(path string) (*AgentStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening agent catalog db: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS agents (
	name    TEXT PRIMARY KEY,
	payload TEXT NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrating agent catalog db: %w", err)
	}
	return &AgentStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *AgentStore) Close() error { return s.db.Close() }

func (s *AgentStore) Register(ctx context.Context, def store.AgentDefinition) error {
	payload, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encoding agent definition: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (name, payload) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET payload = excluded.payload`,
		def.Name, string(payload))
	return err
}

func (s *AgentStore) Update(ctx context.Context, def store.AgentDefinition) error {
	return s.Register(ctx, def)
}

func (s *AgentStore) Get(ctx context.Context, name string) (store.AgentDefinition, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM agents WHERE name = ?`, name).Scan(&payload)
	if err == sql.ErrNoRows {
		return store.AgentDefinition{}, store.ErrAgentNotFound
	}
	if err != nil {
		return store.AgentDefinition{}, err
	}
	var def store.AgentDefinition
	if err := json.Unmarshal([]byte(payload), &def); err != nil {
		return store.AgentDefinition{}, fmt.Errorf("decoding agent definition: %w", err)
	}
	return def, nil
}

func (s *AgentStore) List(ctx context.Context) ([]store.AgentDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM agents`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.AgentDefinition
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var def store.AgentDefinition
		if err := json.Unmarshal([]byte(payload), &def); err != nil {
			return nil, fmt.Errorf("decoding agent definition: %w", err)
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

func (s *AgentStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM agents`)
	return err
}

var _ store.AgentStore = (*AgentStore)(nil)
