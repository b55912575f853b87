package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/config"
	"github.com/agentmesh/runtime/tool"
)

func TestNewMCPCallerNoSuitesReturnsNil(t *testing.T) {
	caller, defs, err := newMCPCaller(config.Config{})
	require.NoError(t, err)
	assert.Nil(t, caller)
	assert.Empty(t, defs)
}

func TestNewMCPCallerBuildsDefinitionsPerTool(t *testing.T) {
	cfg := config.Config{
		MCPStdio: map[string]config.MCPStdioSuite{
			"search": {
				Command: "mcp-search-server",
				Tools: []config.MCPToolSpec{
					{Name: "web_search", Description: "Search the web", InputSchema: `{"type":"object"}`},
				},
			},
		},
	}

	caller, defs, err := newMCPCaller(cfg)
	require.NoError(t, err)
	require.NotNil(t, caller)
	require.Len(t, defs, 1)

	def := defs[0]
	assert.Equal(t, "search.web_search", def.Name)
	assert.Equal(t, tool.KindMCP, def.Kind)
	assert.Equal(t, "search", def.MCPSuite)
	assert.Equal(t, "web_search", def.MCPTool)
	assert.JSONEq(t, `{"type":"object"}`, string(def.InputSchema))
}

func TestNewMCPCallerRejectsInvalidInputSchema(t *testing.T) {
	cfg := config.Config{
		MCPStdio: map[string]config.MCPStdioSuite{
			"search": {
				Command: "mcp-search-server",
				Tools: []config.MCPToolSpec{
					{Name: "web_search", InputSchema: "not json"},
				},
			},
		},
	}

	_, _, err := newMCPCaller(cfg)
	assert.Error(t, err)
}
