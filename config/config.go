// Package config loads runtime configuration from a TOML file, following the
// convention used throughout the example pack's CLI agents, with
// environment variable overrides applied afterward for values operators
// typically inject at deploy time (secrets, per-environment tunables).
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// ToolFormat is the planner's expected tool-call wire format.
type ToolFormat string

const (
	ToolFormatXML      ToolFormat = "xml"
	ToolFormatJSON     ToolFormat = "json"
	ToolFormatCode     ToolFormat = "code"
	ToolFormatProvider ToolFormat = "provider"
	ToolFormatNone     ToolFormat = "none"
)

// ReasoningDepth tunes how much the planner is asked to deliberate.
type ReasoningDepth string

const (
	ReasoningDeep     ReasoningDepth = "deep"
	ReasoningStandard ReasoningDepth = "standard"
	ReasoningShallow  ReasoningDepth = "shallow"
)

// ExecutionMode selects whether the executor expects ToolCalls or Code steps
// by default when the planner does not disambiguate.
type ExecutionMode string

const (
	ExecutionModeTools ExecutionMode = "tools"
	ExecutionModeCode  ExecutionMode = "code"
)

// Config holds the environment-readable settings named in the spec's
// external interfaces section.
type Config struct {
	MaxIterations           int    `toml:"max_iterations"`
	ExternalToolTimeoutSecs int    `toml:"external_tool_timeout_secs"`
	ToolFormat              string `toml:"tool_format"`
	ReasoningDepth          string `toml:"reasoning_depth"`
	ExecutionMode           string `toml:"execution_mode"`
	IncludeScratchpad       bool   `toml:"include_scratchpad"`
	ArtifactsEnabled        bool   `toml:"artifacts_enabled"`
	ArtifactThresholdBytes  int    `toml:"artifact_threshold_bytes"`
	ReflectionEnabled       bool   `toml:"reflection_enabled"`
	WorkspaceRoot           string `toml:"workspace_root"`
	ListenAddr              string `toml:"listen_addr"`
	AgentCatalogDB          string `toml:"agent_catalog_db"`

	// ScratchpadDB, when set, selects a SQLite-backed ScratchpadStore instead
	// of the default in-memory one, the same way AgentCatalogDB does for the
	// agent catalog.
	ScratchpadDB string `toml:"scratchpad_db"`

	// SessionRedisAddr, when set, selects a Redis-backed SessionStore
	// (host:port) instead of the default in-memory one.
	SessionRedisAddr string `toml:"session_redis_addr"`
	SessionRedisDB   int    `toml:"session_redis_db"`

	// ThreadStoreMongoURI/ThreadStoreMongoDB, when both set, select a
	// MongoDB-backed ThreadStore/TaskStore instead of the default in-memory
	// one.
	ThreadStoreMongoURI string `toml:"thread_store_mongo_uri"`
	ThreadStoreMongoDB  string `toml:"thread_store_mongo_db"`

	// MCPStdio names subprocess MCP servers available to every agent's tool
	// registry, keyed by suite name (the prefix a tool is addressed under).
	MCPStdio map[string]MCPStdioSuite `toml:"mcp_stdio"`
}

// MCPStdioSuite configures one subprocess MCP server launched over stdio,
// along with the tools it is expected to expose. Declaring tools up front
// (rather than discovering them from a live tools/list call at startup)
// keeps the set of tools an agent can reach for this suite an explicit,
// reviewable part of deployment configuration.
type MCPStdioSuite struct {
	Command string        `toml:"command"`
	Args    []string      `toml:"args"`
	Env     []string      `toml:"env"`
	Tools   []MCPToolSpec `toml:"tools"`
}

// MCPToolSpec declares one tool a suite is expected to expose.
type MCPToolSpec struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	InputSchema string `toml:"input_schema"`
}

// Default returns the built-in defaults from the spec (max_iterations=10,
// external tool timeout 120s, MCP tools/call 120s / tools/list 10s handled
// separately in the mcptransport package).
func Default() Config {
	return Config{
		MaxIterations:          10,
		ExternalToolTimeoutSecs: 120,
		ToolFormat:             string(ToolFormatProvider),
		ReasoningDepth:         string(ReasoningStandard),
		ExecutionMode:          string(ExecutionModeTools),
		IncludeScratchpad:      true,
		ArtifactsEnabled:       true,
		ArtifactThresholdBytes: 8192,
		WorkspaceRoot:          "./workspace",
		ListenAddr:             ":8080",
	}
}

// Load reads a TOML file at path into the defaults, then applies environment
// variable overrides. A missing file is not an error: defaults (plus env
// overrides) are used as-is, matching how the pack's CLIs behave in
// zero-config development mode.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("decoding config %s: %w", path, err)
			}
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("MAX_ITERATIONS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxIterations = n
		}
	}
	if v, ok := os.LookupEnv("EXTERNAL_TOOL_TIMEOUT_SECS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ExternalToolTimeoutSecs = n
		}
	}
	if v, ok := os.LookupEnv("TOOL_FORMAT"); ok {
		cfg.ToolFormat = v
	}
	if v, ok := os.LookupEnv("REASONING_DEPTH"); ok {
		cfg.ReasoningDepth = v
	}
	if v, ok := os.LookupEnv("EXECUTION_MODE"); ok {
		cfg.ExecutionMode = v
	}
	if v, ok := os.LookupEnv("LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("AGENT_CATALOG_DB"); ok {
		cfg.AgentCatalogDB = v
	}
	if v, ok := os.LookupEnv("SCRATCHPAD_DB"); ok {
		cfg.ScratchpadDB = v
	}
	if v, ok := os.LookupEnv("SESSION_REDIS_ADDR"); ok {
		cfg.SessionRedisAddr = v
	}
	if v, ok := os.LookupEnv("SESSION_REDIS_DB"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SessionRedisDB = n
		}
	}
	if v, ok := os.LookupEnv("THREAD_STORE_MONGO_URI"); ok {
		cfg.ThreadStoreMongoURI = v
	}
	if v, ok := os.LookupEnv("THREAD_STORE_MONGO_DB"); ok {
		cfg.ThreadStoreMongoDB = v
	}
}
