package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRootCmdHasServeSubcommand(t *testing.T) {
	root := buildRootCmd()
	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", serve.Name())
}

func TestBuildServeCmdDefaultFlags(t *testing.T) {
	cmd := buildServeCmd()
	config, err := cmd.Flags().GetString("config")
	require.NoError(t, err)
	assert.Equal(t, "agentd.toml", config)

	agents, err := cmd.Flags().GetString("agents")
	require.NoError(t, err)
	assert.Equal(t, "agents.toml", agents)

	debug, err := cmd.Flags().GetBool("debug")
	require.NoError(t, err)
	assert.False(t, debug)
}
