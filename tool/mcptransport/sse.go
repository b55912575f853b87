package mcptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SSESuite is one remote MCP server reachable over HTTP SSE.
type SSESuite struct {
	Endpoint string
}

// SSE dispatches tool calls to MCP servers over HTTP Server-Sent Events,
// one persistent session per suite.
type SSE struct {
	clientName, clientVersion string

	mu       sync.Mutex
	suites   map[string]SSESuite
	sessions map[string]*mcp.ClientSession
}

// NewSSE constructs an SSE caller over the given suite configuration.
func NewSSE(clientName, clientVersion string, suites map[string]SSESuite) *SSE {
	return &SSE{
		clientName:    clientName,
		clientVersion: clientVersion,
		suites:        suites,
		sessions:      make(map[string]*mcp.ClientSession),
	}
}

// CallTool implements tool.MCPCaller.
func (s *SSE) CallTool(ctx context.Context, suite, toolName string, input json.RawMessage) (json.RawMessage, error) {
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

func (s *SSE) session(ctx context.Context, suite string) (*mcp.ClientSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[suite]; ok {
		return sess, nil
	}

	cfg, ok := s.suites[suite]
	if !ok {
		return nil, fmt.Errorf("mcptransport: unknown sse suite %q", suite)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: s.clientName, Version: s.clientVersion}, nil)
	transport := &mcp.SSEClientTransport{Endpoint: cfg.Endpoint}
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcptransport: connect sse suite %q: %w", suite, err)
	}
	s.sessions[suite] = session
	return session, nil
}
