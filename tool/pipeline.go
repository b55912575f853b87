package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
	"github.com/agentmesh/runtime/store"
	"github.com/agentmesh/runtime/toolerrors"
)

// DefaultExternalTimeout is the rendezvous wait applied when an agent does
// not configure one explicitly.
const DefaultExternalTimeout = 120 * time.Second

// Pipeline executes batches of tool calls against a Registry, mediating
// external-tool rendezvous and artifact wrapping.
type Pipeline struct {
	registry        *Registry
	externalCalls   store.ExternalToolCallsStore
	artifacts       ArtifactStore
	externalTimeout time.Duration
}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

// WithArtifactStore enables artifact wrapping for oversized responses.
// Without one, responses are always inlined regardless of size.
func WithArtifactStore(s ArtifactStore) Option {
	return func(p *Pipeline) { p.artifacts = s }
}

// WithExternalTimeout overrides DefaultExternalTimeout for this pipeline.
func WithExternalTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.externalTimeout = d }
}

// NewPipeline constructs a Pipeline over registry, using externalCalls as
// the rendezvous store for KindExternal tools.
func NewPipeline(registry *Registry, externalCalls store.ExternalToolCallsStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry:        registry,
		externalCalls:   externalCalls,
		externalTimeout: DefaultExternalTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute runs calls concurrently against the registry, returning one
// ToolResponse per call plus whether any external call is still awaiting
// client input. The batch ToolCalls event always precedes every per-call
// ToolExecutionStart; the batch ToolResults event always follows every
// per-call ToolExecutionEnd.
func (p *Pipeline) Execute(ctx context.Context, ec *execctx.Context, calls []event.ToolCall, stepID string) ([]event.ToolResponse, bool, error) {
	if len(calls) == 0 {
		return nil, false, nil
	}

	ec.Emit(event.Event{Type: event.TypeToolCalls, StepID: stepID, Data: event.ToolCallsData{Calls: calls}})

	responses := make([]event.ToolResponse, len(calls))
	inputRequired := make([]bool, len(calls))

	var wg sync.WaitGroup
	wg.Add(len(calls))
	for i, call := range calls {
		i, call := i, call
		go func() {
			defer wg.Done()
			resp, needsInput := p.executeOne(ctx, ec, stepID, call)
			responses[i] = resp
			inputRequired[i] = needsInput
		}()
	}
	wg.Wait()

	anyInputRequired := false
	for _, v := range inputRequired {
		if v {
			anyInputRequired = true
			break
		}
	}

	wrapped := make([]event.ToolResponse, len(responses))
	for i, r := range responses {
		parts, err := wrapOversized(p.artifacts, ec.ThreadID, ec.TaskID, r.ToolName, r.Parts)
		if err != nil {
			return nil, false, err
		}
		r.Parts = parts
		wrapped[i] = r
	}

	ec.Emit(event.Event{Type: event.TypeToolResults, StepID: stepID, Data: event.ToolResultsData{Responses: wrapped}})
	return wrapped, anyInputRequired, nil
}

// executeOne resolves and invokes a single call, bracketing it with the
// ToolExecutionStart/ToolExecutionEnd events and recovering from panics in
// transport calls (MCP in particular) so one bad call cannot abort the run.
func (p *Pipeline) executeOne(ctx context.Context, ec *execctx.Context, stepID string, call event.ToolCall) (resp event.ToolResponse, inputRequired bool) {
	ec.Emit(event.Event{Type: event.TypeToolExecutionStart, StepID: stepID, Data: event.ToolExecutionStartData{
		ToolCallID: call.ToolCallID,
		ToolName:   call.ToolName,
	}})

	success := false
	defer func() {
		if r := recover(); r != nil {
			resp = errorResponse(call, fmt.Errorf("tool: panic: %v", r))
			success = false
		}
		ec.Emit(event.Event{Type: event.TypeToolExecutionEnd, StepID: stepID, Data: event.ToolExecutionEndData{
			ToolCallID: call.ToolCallID,
			ToolName:   call.ToolName,
			Success:    success,
		}})
	}()

	def, source, ok := p.registry.lookup(ec, call.ToolName)
	if !ok {
		resp = errorResponse(call, fmt.Errorf("tool: unknown tool %q", call.ToolName))
		return resp, false
	}
	call.Source = source

	if err := p.registry.validate(def.Name, call.Input); err != nil {
		resp = errorResponse(call, err)
		return resp, false
	}

	switch def.Kind {
	case KindExternal:
		parts, needsInput, err := p.awaitExternal(ctx, call)
		if err != nil {
			resp = errorResponse(call, err)
			return resp, false
		}
		if needsInput {
			resp = event.ToolResponse{ToolCallID: call.ToolCallID, ToolName: call.ToolName, Parts: parts, IsError: false}
			return resp, true
		}
		success = true
		resp = event.ToolResponse{ToolCallID: call.ToolCallID, ToolName: call.ToolName, Parts: parts}
		return resp, false

	case KindExecutorContext:
		parts, err := def.Handler(ctx, ec, call.Input)
		if err != nil {
			resp = errorResponse(call, err)
			return resp, false
		}
		success = true
		resp = event.ToolResponse{ToolCallID: call.ToolCallID, ToolName: call.ToolName, Parts: parts}
		return resp, false

	case KindMCP:
		parts, err := p.callMCP(ctx, def, call)
		if err != nil {
			resp = errorResponse(call, err)
			return resp, false
		}
		success = true
		resp = event.ToolResponse{ToolCallID: call.ToolCallID, ToolName: call.ToolName, Parts: parts}
		return resp, false

	default: // KindInternal
		parts, err := def.Handler(ctx, nil, call.Input)
		if err != nil {
			resp = errorResponse(call, err)
			return resp, false
		}
		success = true
		resp = event.ToolResponse{ToolCallID: call.ToolCallID, ToolName: call.ToolName, Parts: parts}
		return resp, false
	}
}

// awaitExternal registers a rendezvous slot and waits for the client's
// response, with a Skip{reason} produced on timeout or channel drop.
func (p *Pipeline) awaitExternal(ctx context.Context, call event.ToolCall) (parts []event.Part, skipped bool, err error) {
	if p.externalCalls == nil {
		return nil, false, fmt.Errorf("tool: external tool %q with no rendezvous store configured", call.ToolName)
	}

	respCh, err := p.externalCalls.RegisterExternalToolCall(ctx, call.ToolCallID)
	if err != nil {
		return nil, false, fmt.Errorf("tool: register external call: %w", err)
	}
	defer p.externalCalls.RemoveToolCall(ctx, call.ToolCallID)

	timeout := p.externalTimeout
	if timeout <= 0 {
		timeout = DefaultExternalTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-respCh:
		if !ok {
			return skipParts("external tool call channel closed before response"), true, nil
		}
		return resp.Parts, false, nil
	case <-timer.C:
		return skipParts(fmt.Sprintf("external tool %q timed out after %s", call.ToolName, timeout)), true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func skipParts(reason string) []event.Part {
	return []event.Part{event.TextPart{Text: "skip: " + reason}}
}

// callMCP invokes an MCP-resolved tool through the configured caller,
// decoding its single text content frame into a TextPart.
func (p *Pipeline) callMCP(ctx context.Context, def Definition, call event.ToolCall) ([]event.Part, error) {
	if p.registry.mcpCaller == nil {
		return nil, fmt.Errorf("tool: no MCP caller configured for suite %q", def.MCPSuite)
	}
	result, err := p.registry.mcpCaller.CallTool(ctx, def.MCPSuite, def.MCPTool, call.Input)
	if err != nil {
		return nil, fmt.Errorf("tool: mcp call %s/%s: %w", def.MCPSuite, def.MCPTool, err)
	}
	return []event.Part{event.TextPart{Text: string(result)}}, nil
}

func errorResponse(call event.ToolCall, err error) event.ToolResponse {
	te := toolerrors.FromError(err)
	return event.ToolResponse{
		ToolCallID: call.ToolCallID,
		ToolName:   call.ToolName,
		Parts:      []event.Part{event.TextPart{Text: te.Error()}},
		IsError:    true,
	}
}
