// Package fsartifact implements tool.ArtifactStore over the local
// filesystem, following the session layout the tool package's doc comments
// already name: threads/{hashed thread_id}/tasks/{hashed task_id}/content/{filename}.
package fsartifact

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store persists artifact content under a workspace root directory.
type Store struct {
	root string
}

// New returns a Store rooted at root, creating it if necessary.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("fsartifact: creating workspace root: %w", err)
	}
	return &Store{root: root}, nil
}

// Put writes content under threads/{threadID}/tasks/{taskID}/content/{filename}
// and returns the path it was written to. threadID and taskID are expected
// to already be hashed by the caller (tool.ArtifactToolDefinition hashes
// them before calling Put, so raw identifiers never touch the filesystem).
func (s *Store) Put(threadID, taskID, filename string, content []byte) (string, error) {
	dir := filepath.Join(s.root, "threads", threadID, "tasks", taskID, "content")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("fsartifact: creating content dir: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(filename))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("fsartifact: writing %s: %w", path, err)
	}
	return path, nil
}
