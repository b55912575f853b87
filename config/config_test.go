package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadDecodesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentd.toml")
	const body = `
max_iterations = 25
tool_format = "xml"
agent_catalog_db = "./catalog.db"
listen_addr = ":9090"
scratchpad_db = "./scratchpad.db"
session_redis_addr = "localhost:6379"
session_redis_db = 2
thread_store_mongo_uri = "mongodb://localhost:27017"
thread_store_mongo_db = "agentd"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.MaxIterations)
	assert.Equal(t, "xml", cfg.ToolFormat)
	assert.Equal(t, "./catalog.db", cfg.AgentCatalogDB)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "./scratchpad.db", cfg.ScratchpadDB)
	assert.Equal(t, "localhost:6379", cfg.SessionRedisAddr)
	assert.Equal(t, 2, cfg.SessionRedisDB)
	assert.Equal(t, "mongodb://localhost:27017", cfg.ThreadStoreMongoURI)
	assert.Equal(t, "agentd", cfg.ThreadStoreMongoDB)
	// Fields left unset in the file keep their defaults.
	assert.Equal(t, Default().ExternalToolTimeoutSecs, cfg.ExternalToolTimeoutSecs)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("MAX_ITERATIONS", "7")
	t.Setenv("TOOL_FORMAT", "json")
	t.Setenv("AGENT_CATALOG_DB", "/tmp/agents.db")
	t.Setenv("SCRATCHPAD_DB", "/tmp/scratchpad.db")
	t.Setenv("SESSION_REDIS_ADDR", "redis:6379")
	t.Setenv("THREAD_STORE_MONGO_URI", "mongodb://mongo:27017")
	t.Setenv("THREAD_STORE_MONGO_DB", "agentd")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxIterations)
	assert.Equal(t, "json", cfg.ToolFormat)
	assert.Equal(t, "/tmp/agents.db", cfg.AgentCatalogDB)
	assert.Equal(t, "/tmp/scratchpad.db", cfg.ScratchpadDB)
	assert.Equal(t, "redis:6379", cfg.SessionRedisAddr)
	assert.Equal(t, "mongodb://mongo:27017", cfg.ThreadStoreMongoURI)
	assert.Equal(t, "agentd", cfg.ThreadStoreMongoDB)
}
