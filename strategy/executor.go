// Package strategy implements the execution strategy (spec.md §4.4): turning
// one planned step into an ExecutionResult, dispatching ToolCalls steps to
// the tool pipeline, Code steps to the sandbox, and free-form reasoning
// steps to a streamed LLM call whose deltas are aggregated into either more
// text or a fresh batch of tool calls.
package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
	"github.com/agentmesh/runtime/llm"
	"github.com/agentmesh/runtime/sandbox"
	"github.com/agentmesh/runtime/task"
	"github.com/agentmesh/runtime/tool"
)

// Executor is the strategy contract the loop drives each iteration against.
type Executor interface {
	// ExecuteStep runs one planned step to completion, streaming progress
	// events on execCtx's sink along the way.
	ExecuteStep(ctx context.Context, step event.PlanStep, execCtx *execctx.Context) (event.ExecutionResult, error)
	// ShouldContinue decides whether the loop advances to the next step.
	// Default: !has_final_result && status == Running.
	ShouldContinue(plan event.AgentPlan, index int, execCtx *execctx.Context) bool
}

// Config bundles the tunables a DefaultExecutor needs for its reasoning-step
// LLM calls.
type Config struct {
	Model       string
	MaxTokens   int
	Temperature float64
	ToolFormat  string // mirrors plan.ToolFormat without importing plan, avoiding a cycle
	SandboxRuntime string
	SandboxTimeout time.Duration
}

// ToolCallParser is the subset of plan.ToolCallParser the strategy needs to
// turn aggregated reasoning text into tool calls for non-native formats.
// Declared locally so this package doesn't depend on plan.
type ToolCallParser interface {
	Parse(text string) ([]event.ToolCall, error)
}

// DefaultExecutor is the default Executor, grounded on spec.md §4.4.
type DefaultExecutor struct {
	client   llm.Client
	pipeline *tool.Pipeline
	sandbox  *sandbox.Runner
	cfg      Config
	parser   ToolCallParser // nil when ToolFormat is "provider", "code", or "none"
	tools    []llm.ToolSchema
}

// NewDefaultExecutor constructs a DefaultExecutor. sandboxRunner may be nil
// when the deployment has no sandbox enabled; Code steps then fail fast.
func NewDefaultExecutor(client llm.Client, pipeline *tool.Pipeline, sandboxRunner *sandbox.Runner, cfg Config, parser ToolCallParser, tools []llm.ToolSchema) *DefaultExecutor {
	return &DefaultExecutor{client: client, pipeline: pipeline, sandbox: sandboxRunner, cfg: cfg, parser: parser, tools: tools}
}

// ExecuteStep implements Executor.
func (e *DefaultExecutor) ExecuteStep(ctx context.Context, step event.PlanStep, ec *execctx.Context) (event.ExecutionResult, error) {
	switch step.Action.Kind {
	case event.ActionToolCalls:
		return e.executeToolCalls(ctx, step, ec)
	case event.ActionCode:
		return e.executeCode(ctx, step, ec)
	case event.ActionReason:
		return e.executeReason(ctx, step, ec)
	default:
		return event.ExecutionResult{}, fmt.Errorf("strategy: unknown action kind %q", step.Action.Kind)
	}
}

// ShouldContinue implements Executor's default policy.
func (e *DefaultExecutor) ShouldContinue(plan event.AgentPlan, index int, ec *execctx.Context) bool {
	return ec.GetFinalResult() == nil && ec.GetStatus() == task.StatusRunning
}

func (e *DefaultExecutor) executeToolCalls(ctx context.Context, step event.PlanStep, ec *execctx.Context) (event.ExecutionResult, error) {
	responses, inputRequired, err := e.pipeline.Execute(ctx, ec, step.Action.ToolCalls, step.ID)
	if err != nil {
		return event.ExecutionResult{}, fmt.Errorf("strategy: execute tool calls: %w", err)
	}

	var parts []event.Part
	failed := false
	for _, r := range responses {
		parts = append(parts, r.Parts...)
		if r.IsError {
			failed = true
		}
	}

	status := event.ExecutionSuccess
	if inputRequired {
		status = event.ExecutionInputRequired
	} else if failed {
		status = event.ExecutionFailed
	}

	return event.ExecutionResult{StepID: step.ID, Status: status, Parts: parts}, nil
}

func (e *DefaultExecutor) executeCode(ctx context.Context, step event.PlanStep, ec *execctx.Context) (event.ExecutionResult, error) {
	if e.sandbox == nil {
		return event.ExecutionResult{StepID: step.ID, Status: event.ExecutionFailed, Reason: "sandbox disabled"}, nil
	}

	result, err := e.sandbox.Execute(ctx, step.ID, ec.TaskID, step.Action.Code, e.cfg.SandboxTimeout)
	if err != nil {
		return event.ExecutionResult{StepID: step.ID, Status: event.ExecutionFailed, Reason: err.Error()}, nil
	}

	status := event.ExecutionSuccess
	reason := ""
	if result.ExitCode != 0 || result.Err != "" {
		status = event.ExecutionFailed
		reason = result.Err
	}

	parts := []event.Part{event.TextPart{Text: result.Output}}
	if result.Logs != "" {
		parts = append(parts, event.TextPart{Text: result.Logs})
	}

	return event.ExecutionResult{StepID: step.ID, Status: status, Parts: parts, Reason: reason}, nil
}

// executeReason streams a fresh LLM call for a free-form reasoning step,
// forwarding text deltas as TextMessageContent events bracketed by
// TextMessageStart/End, and aggregating tool-call deltas by ToolCallID. Per
// spec.md §4.4: if any tool calls aggregated, the step resolves as
// ToolCalls and those calls enter the pipeline; otherwise the accumulated
// text completes the step. An empty stream (no text, no tool calls, no
// finish reason) is an error.
func (e *DefaultExecutor) executeReason(ctx context.Context, step event.PlanStep, ec *execctx.Context) (event.ExecutionResult, error) {
	messages := []event.Message{{Role: event.RoleUser, Parts: []event.Part{event.TextPart{Text: step.Thought}}}}
	params := llm.Params{Model: e.cfg.Model, MaxTokens: e.cfg.MaxTokens, Temperature: e.cfg.Temperature}
	if e.cfg.ToolFormat == "provider" {
		params.Tools = e.tools
	}

	agg := newStreamAggregator()
	err := e.client.ExecuteStream(ctx, messages, params, func(ev llm.StreamEvent) {
		agg.feed(ev, step.ID, ec)
	})
	if err != nil {
		return event.ExecutionResult{}, fmt.Errorf("strategy: stream reasoning step: %w", err)
	}
	if agg.started {
		ec.Emit(event.Event{Type: event.TypeTextMessageEnd, StepID: step.ID})
	}

	calls := agg.toolCalls()
	if len(calls) == 0 && e.cfg.ToolFormat != "provider" && e.parser != nil && agg.text.Len() > 0 {
		parsed, parseErr := e.parser.Parse(agg.text.String())
		if parseErr == nil {
			calls = parsed
		}
	}

	if len(calls) > 0 {
		return e.executeToolCalls(ctx, event.PlanStep{ID: step.ID, Action: event.Action{Kind: event.ActionToolCalls, ToolCalls: calls}}, ec)
	}

	if agg.text.Len() == 0 && !agg.sawFinish {
		return event.ExecutionResult{}, fmt.Errorf("strategy: empty reasoning stream for step %s", step.ID)
	}

	return event.ExecutionResult{
		StepID: step.ID,
		Status: event.ExecutionSuccess,
		Parts:  []event.Part{event.TextPart{Text: agg.text.String()}},
	}, nil
}
