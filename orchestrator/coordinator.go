package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
)

// coordinatorKind discriminates the four request shapes spec.md §4.6 routes
// through the coordinator channel.
type coordinatorKind int

const (
	coordHandoverAgent coordinatorKind = iota
	coordExecuteTool
	coordExecute
	coordExecuteStream
)

// coordinatorMsg is the tagged union of requests the coordinator dispatch
// loop drains. Each is handed to its own goroutine, so a slow sub-agent run
// never blocks unrelated routing.
type coordinatorMsg struct {
	kind coordinatorKind

	ctx       context.Context
	agentName string
	message   event.Message
	ec        *execctx.Context
	overrides Overrides

	toolName  string
	toolInput json.RawMessage

	reply       chan coordinatorReply
	streamReply chan (<-chan error)
}

type coordinatorReply struct {
	result Result
	err    error
}

// Start begins draining the coordinator channel, spawning one goroutine per
// request. Call it once before issuing HandoverAgent, ExecuteTool, or
// ExecuteStreamAsync requests; Execute and ExecuteStream (the synchronous
// entry points used directly by the A2A handler) do not depend on it.
func (o *Orchestrator) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-o.coordinator:
				if !ok {
					return
				}
				go o.dispatchCoordinatorMsg(msg)
			}
		}
	}()
}

func (o *Orchestrator) dispatchCoordinatorMsg(msg coordinatorMsg) {
	switch msg.kind {
	case coordHandoverAgent, coordExecute:
		result, err := o.Execute(msg.ctx, msg.agentName, msg.message, msg.ec, msg.overrides)
		msg.reply <- coordinatorReply{result: result, err: err}
	case coordExecuteTool:
		result, err := o.executeToolAsAgent(msg.ctx, msg.agentName, msg.toolName, msg.toolInput, msg.ec, msg.overrides)
		msg.reply <- coordinatorReply{result: result, err: err}
	case coordExecuteStream:
		msg.streamReply <- o.ExecuteStream(msg.ctx, msg.agentName, msg.message, msg.ec, msg.overrides)
	}
}

// HandoverAgent routes control to targetAgent on the coordinator channel, per
// the `transfer_to_agent` built-in's TransferHandoff. It blocks until the
// handed-over agent finishes.
func (o *Orchestrator) HandoverAgent(ctx context.Context, targetAgent string, message event.Message, ec *execctx.Context, overrides Overrides) (Result, error) {
	reply := make(chan coordinatorReply, 1)
	o.coordinator <- coordinatorMsg{
		kind: coordHandoverAgent, ctx: ctx, agentName: targetAgent, message: message, ec: ec, overrides: overrides,
		reply: reply,
	}
	r := <-reply
	return r.result, r.err
}

// ExecuteToolViaAgent routes a single tool invocation through the coordinator
// channel to the agent registered to own it, wrapping the call as a one-part
// tool_call message. Used when a tool is only reachable through another
// agent's registry (cross-agent tool delegation).
func (o *Orchestrator) ExecuteToolViaAgent(ctx context.Context, agentName, toolName string, input json.RawMessage, ec *execctx.Context, overrides Overrides) (Result, error) {
	reply := make(chan coordinatorReply, 1)
	o.coordinator <- coordinatorMsg{
		kind: coordExecuteTool, ctx: ctx, agentName: agentName, toolName: toolName, toolInput: input, ec: ec, overrides: overrides,
		reply: reply,
	}
	r := <-reply
	return r.result, r.err
}

// ExecuteStreamAsync enqueues an Execute request on the coordinator channel
// and returns the <-chan error ExecuteStream would have, once the dispatch
// loop picks it up. Unlike ExecuteStream, the goroutine spawn itself is
// routed through the coordinator so callers can observe coordinator
// backpressure the same way HandoverAgent and ExecuteToolViaAgent do.
func (o *Orchestrator) ExecuteStreamAsync(ctx context.Context, agentName string, message event.Message, ec *execctx.Context, overrides Overrides) <-chan error {
	reply := make(chan (<-chan error), 1)
	o.coordinator <- coordinatorMsg{
		kind: coordExecuteStream, ctx: ctx, agentName: agentName, message: message, ec: ec, overrides: overrides,
		streamReply: reply,
	}
	return <-reply
}

func (o *Orchestrator) executeToolAsAgent(ctx context.Context, agentName, toolName string, input json.RawMessage, ec *execctx.Context, overrides Overrides) (Result, error) {
	if agentName == "" {
		return Result{}, fmt.Errorf("orchestrator: execute tool %q: no owning agent specified", toolName)
	}
	message := event.Message{
		Role: event.RoleTool,
		Parts: []event.Part{event.ToolCallPart{
			ToolCallID: toolName,
			ToolName:   toolName,
			Input:      input,
		}},
	}
	return o.Execute(ctx, agentName, message, ec, overrides)
}
