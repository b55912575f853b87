package main

import (
	"encoding/json"
	"fmt"

	"github.com/agentmesh/runtime/config"
	"github.com/agentmesh/runtime/tool"
	"github.com/agentmesh/runtime/tool/mcptransport"
)

// newMCPCaller builds a process-wide MCP caller over stdio subprocesses for
// every suite named in cfg.MCPStdio, and the tool.Definition entries each
// suite's declared tools resolve to. A deployment with no MCP suites
// configured gets a nil caller and an empty slice, and every agent's
// registry simply has no KindMCP tools to offer.
func newMCPCaller(cfg config.Config) (tool.MCPCaller, []tool.Definition, error) {
	if len(cfg.MCPStdio) == 0 {
		return nil, nil, nil
	}

	suites := make(map[string]mcptransport.StdioSuite, len(cfg.MCPStdio))
	var defs []tool.Definition
	for name, suite := range cfg.MCPStdio {
		suites[name] = mcptransport.StdioSuite{
			Command: suite.Command,
			Args:    suite.Args,
			Env:     suite.Env,
		}
		for _, spec := range suite.Tools {
			def := tool.Definition{
				Name:        name + "." + spec.Name,
				Description: spec.Description,
				Kind:        tool.KindMCP,
				MCPSuite:    name,
				MCPTool:     spec.Name,
			}
			if spec.InputSchema != "" {
				if !json.Valid([]byte(spec.InputSchema)) {
					return nil, nil, fmt.Errorf("agentd: mcp suite %q tool %q: input_schema is not valid JSON", name, spec.Name)
				}
				def.InputSchema = json.RawMessage(spec.InputSchema)
			}
			defs = append(defs, def)
		}
	}

	return mcptransport.NewStdio("agentd", version, suites), defs, nil
}
