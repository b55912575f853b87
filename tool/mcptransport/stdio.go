// Package mcptransport implements the tool.MCPCaller interface over the
// transports an MCP server may be configured with: a subprocess speaking
// JSON-RPC over stdio, HTTP SSE, WebSocket, or an in-memory function call
// used for same-process tool servers and tests.
package mcptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// StdioSuite is one subprocess MCP server, launched lazily on first call and
// kept alive for the process lifetime of the runtime.
type StdioSuite struct {
	Command string
	Args    []string
	Env     []string
}

// Stdio dispatches tool calls to one or more subprocess MCP servers, keyed
// by suite name.
type Stdio struct {
	clientName, clientVersion string

	mu       sync.Mutex
	suites   map[string]StdioSuite
	sessions map[string]*mcp.ClientSession
}

// NewStdio constructs a Stdio caller over the given suite configuration.
func NewStdio(clientName, clientVersion string, suites map[string]StdioSuite) *Stdio {
	return &Stdio{
		clientName:    clientName,
		clientVersion: clientVersion,
		suites:        suites,
		sessions:      make(map[string]*mcp.ClientSession),
	}
}

// CallTool implements tool.MCPCaller.
func (s *Stdio) CallTool(ctx context.Context, suite, toolName string, input json.RawMessage) (json.RawMessage, error) {
	session, err := s.session(ctx, suite)
	if err != nil {
		return nil, err
	}

	var args map[string]any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, fmt.Errorf("mcptransport: decode arguments for %s/%s: %w", suite, toolName, err)
		}
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: toolName, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("mcptransport: call %s/%s: %w", suite, toolName, err)
	}
	return decodeContent(result)
}

func (s *Stdio) session(ctx context.Context, suite string) (*mcp.ClientSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[suite]; ok {
		return sess, nil
	}

	cfg, ok := s.suites[suite]
	if !ok {
		return nil, fmt.Errorf("mcptransport: unknown stdio suite %q", suite)
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		cmd.Env = append(cmd.Env, cfg.Env...)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: s.clientName, Version: s.clientVersion}, nil)
	session, err := client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return nil, fmt.Errorf("mcptransport: connect stdio suite %q: %w", suite, err)
	}
	s.sessions[suite] = session
	return session, nil
}

// decodeContent extracts the single text content frame per spec.md §4.2;
// structured content, when present, is returned instead when no text frame
// exists.
func decodeContent(result *mcp.CallToolResult) (json.RawMessage, error) {
	if result == nil {
		return json.RawMessage("null"), nil
	}
	if result.IsError {
		return nil, fmt.Errorf("mcptransport: tool returned an error result")
	}
	for _, c := range result.Content {
		if text, ok := c.(*mcp.TextContent); ok {
			return json.RawMessage(marshalString(text.Text)), nil
		}
	}
	if result.StructuredContent != nil {
		return json.Marshal(result.StructuredContent)
	}
	return json.RawMessage("null"), nil
}

func marshalString(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}
