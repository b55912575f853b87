package mcptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// InMemoryHandler serves one MCP tool directly, without a network hop.
// Used for same-process tool servers and tests.
type InMemoryHandler func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// InMemory dispatches tool calls to locally registered handlers, keyed by
// "suite/tool".
type InMemory struct {
	mu       sync.RWMutex
	handlers map[string]InMemoryHandler
}

// NewInMemory constructs an empty InMemory caller.
func NewInMemory() *InMemory {
	return &InMemory{handlers: make(map[string]InMemoryHandler)}
}

// Register installs a handler for suite/tool, replacing any prior handler.
func (m *InMemory) Register(suite, tool string, handler InMemoryHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[key(suite, tool)] = handler
}

// CallTool implements tool.MCPCaller.
func (m *InMemory) CallTool(ctx context.Context, suite, toolName string, input json.RawMessage) (json.RawMessage, error) {
	m.mu.RLock()
	handler, ok := m.handlers[key(suite, toolName)]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mcptransport: no in-memory handler for %s/%s", suite, toolName)
	}
	return handler(ctx, input)
}

func key(suite, tool string) string { return suite + "/" + tool }
