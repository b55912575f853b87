package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd builds the "serve" subcommand, the only subcommand agentd
// currently exposes.
func buildServeCmd() *cobra.Command {
	var (
		configPath  string
		catalogPath string
		debug       bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agentd HTTP server",
		Long: `Start the agentd HTTP server.

The server will:
1. Load configuration from the specified TOML file (or built-in defaults)
2. Bootstrap the agent catalog from the specified TOML file, if present
3. Initialize the LLM client, tool pipeline, and orchestrator
4. Serve the A2A JSON-RPC/SSE surface on the configured listen address

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with defaults
  agentd serve

  # Start with a custom config and agent catalog
  agentd serve --config ./agentd.toml --agents ./agents.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, catalogPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "agentd.toml", "Path to TOML configuration file")
	cmd.Flags().StringVarP(&catalogPath, "agents", "a", "agents.toml", "Path to the agent catalog bootstrap file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}
