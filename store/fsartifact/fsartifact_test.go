package fsartifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutWritesUnderSessionLayout(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	require.NoError(t, err)

	path, err := store.Put("thread-hash", "task-hash", "report.txt", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "threads", "thread-hash", "tasks", "task-hash", "content", "report.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestPutSanitizesFilenamePathTraversal(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	require.NoError(t, err)

	path, err := store.Put("t", "k", "../../etc/passwd", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "threads", "t", "tasks", "k", "content", "passwd"), path)
}
