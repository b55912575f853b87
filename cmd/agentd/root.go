package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// buildRootCmd assembles the command tree. Separated from main so tests can
// construct and inspect it without invoking os.Exit.
func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentd",
		Short: "agentd runs the A2A multi-agent execution runtime",
		Long: `agentd serves the A2A JSON-RPC/SSE protocol over HTTP: message/send,
message/stream, tasks/get, and tasks/cancel against a catalog of registered
agents, each running a plan/execute/replan loop against a configured LLM
provider and tool pipeline.`,
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}

	root.AddCommand(buildServeCmd())
	return root
}
