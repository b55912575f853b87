// Command agentd is the A2A runtime's entry point: it loads configuration,
// wires the store, LLM, tool, and orchestrator layers, and serves the
// JSON-RPC/SSE A2A surface over HTTP until asked to shut down.
package main

import (
	"fmt"
	"os"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
