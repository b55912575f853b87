// Package tool implements the unified tool pipeline: resolving a requested
// tool name against dynamic, built-in, and MCP sources, executing a batch
// concurrently, and wrapping oversized responses as artifacts. Built-in
// tools that mutate run state (final, transfer_to_agent, artifact_tool) are
// invoked with a reference to the executor context rather than in isolation.
package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
	"github.com/agentmesh/runtime/toolerrors"
)

// Kind discriminates how a resolved tool must be invoked.
type Kind int

const (
	// KindInternal tools run synchronously (or async in-process) with no
	// access to the executor context.
	KindInternal Kind = iota
	// KindExternal tools return their result asynchronously from the
	// client, via the rendezvous store.
	KindExternal
	// KindExecutorContext tools are trusted built-ins that read/write run
	// state: final, transfer_to_agent, artifact_tool.
	KindExecutorContext
	// KindMCP tools are resolved against a configured MCP transport.
	KindMCP
)

// Handler is an internal or executor-context tool implementation. ec is nil
// for KindInternal tools.
type Handler func(ctx context.Context, ec *execctx.Context, input json.RawMessage) ([]event.Part, error)

// Definition describes one resolvable tool.
type Definition struct {
	Name        string
	Description string
	Kind        Kind
	InputSchema json.RawMessage
	Handler     Handler // set for KindInternal / KindExecutorContext
	MCPSuite    string  // set for KindMCP: the transport/suite this tool belongs to
	MCPTool     string  // MCP-local tool name, without suite prefix
}

// MCPCaller invokes a single MCP tool call against a configured transport.
// Implemented by the stdio/sse/websocket/inmemory clients in tool/mcptransport.
type MCPCaller interface {
	CallTool(ctx context.Context, suite, toolName string, input json.RawMessage) (json.RawMessage, error)
}

// Registry holds agent-registered tools: built-ins discovered at agent load
// plus MCP tools. Dynamic per-request tools are tracked separately on
// execctx.Context and always win ties.
type Registry struct {
	defs      map[string]Definition
	schemas   map[string]*jsonschema.Schema
	mcpCaller MCPCaller
}

// NewRegistry builds a Registry from agent-registered tool definitions.
// Definitions with a non-empty InputSchema are compiled eagerly so a bad
// schema fails at agent-load time, not mid-run.
func NewRegistry(defs []Definition, mcpCaller MCPCaller) (*Registry, error) {
	r := &Registry{
		defs:      make(map[string]Definition, len(defs)),
		schemas:   make(map[string]*jsonschema.Schema),
		mcpCaller: mcpCaller,
	}
	for _, d := range defs {
		// Built-ins registered before MCP tools of the same name keep
		// precedence per the tie-break policy; a later MCP definition with
		// the same name is simply dropped here, not overwritten.
		if existing, ok := r.defs[d.Name]; ok && existing.Kind != KindMCP {
			continue
		}
		r.defs[d.Name] = d
		if len(d.InputSchema) == 0 {
			continue
		}
		schema, err := compileSchema(d.Name, d.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool: compile schema for %q: %w", d.Name, err)
		}
		r.schemas[d.Name] = schema
	}
	return r, nil
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	resourceID := "tool://" + name
	if err := c.AddResource(resourceID, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(resourceID)
}

// lookup resolves name against dynamic tools (via ec) then the registry,
// returning the definition and its resolved Source for event tagging.
func (r *Registry) lookup(ec *execctx.Context, name string) (Definition, event.ToolSource, bool) {
	if ec != nil && ec.HasDynamicTool(name) {
		if d, ok := r.defs[name]; ok && d.Kind != KindMCP {
			return d, event.SourceDynamic, true
		}
		// A dynamic name with no local (non-MCP) definition falls through to
		// the registry lookup below, so it does not resolve as dynamic and,
		// with no definition at all, does not resolve.
	}
	d, ok := r.defs[name]
	if !ok {
		return Definition{}, "", false
	}
	src := event.SourceBuiltin
	if d.Kind == KindMCP {
		src = event.SourceMCP
	}
	return d, src, true
}

// validate checks input against the tool's compiled schema, if any.
func (r *Registry) validate(name string, input json.RawMessage) error {
	schema, ok := r.schemas[name]
	if !ok {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(input, &decoded); err != nil {
		return toolerrors.Errorf("decode input for %q: %v", name, err)
	}
	if err := schema.Validate(decoded); err != nil {
		return toolerrors.NewWithCause(fmt.Sprintf("input for %q failed validation", name), err)
	}
	return nil
}
