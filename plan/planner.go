package plan

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
	"github.com/agentmesh/runtime/llm"
)

// Config is the agent-level configuration the planner needs to assemble
// prompts and decide plan shape.
type Config struct {
	Description       string
	Instructions      string
	ReasoningDepth     string
	ExecutionMode      string
	ToolFormat         ToolFormat
	MaxSteps           int
	ReplanEveryNSteps  int // 0 disables the periodic trigger
	Model              string
	MaxTokens          int
	Temperature        float64
}

// LLMPlanner is the default Planner: one LLM call per Plan/Replan,
// producing exactly one PlanStep per call. A multi-step plan therefore
// emerges across repeated replanning rounds rather than from a single LLM
// response encoding several steps at once — the tool-call text formats
// (Xml/JsonL) describe a flat batch of calls, not a sequence of discrete
// steps, so one parsed batch naturally maps to one step's Action.
type LLMPlanner struct {
	client    llm.Client
	formatter *MessageFormatter
	cfg       Config
	tools     []llm.ToolSchema
}

// NewLLMPlanner constructs an LLMPlanner.
func NewLLMPlanner(client llm.Client, formatter *MessageFormatter, cfg Config, tools []llm.ToolSchema) *LLMPlanner {
	return &LLMPlanner{client: client, formatter: formatter, cfg: cfg, tools: tools}
}

// Plan implements Planner.
func (p *LLMPlanner) Plan(ctx context.Context, message event.Message, ec *execctx.Context) (event.AgentPlan, error) {
	step, err := p.planOneStep(ctx, message, ec, 0)
	if err != nil {
		return event.AgentPlan{}, err
	}
	return event.AgentPlan{Steps: []event.PlanStep{step}, InitialPlan: true}, nil
}

// Replan implements Planner.
func (p *LLMPlanner) Replan(ctx context.Context, message event.Message, ec *execctx.Context, current event.AgentPlan) (event.AgentPlan, error) {
	step, err := p.planOneStep(ctx, message, ec, len(current.Steps))
	if err != nil {
		return event.AgentPlan{}, err
	}
	return event.AgentPlan{Steps: []event.PlanStep{step}, InitialPlan: false}, nil
}

// NeedsReplanning implements Planner: true every ReplanEveryNSteps completed
// steps, disabled when ReplanEveryNSteps is 0.
func (p *LLMPlanner) NeedsReplanning(history []event.ExecutionHistoryEntry) bool {
	if p.cfg.ReplanEveryNSteps <= 0 {
		return false
	}
	return len(history) > 0 && len(history)%p.cfg.ReplanEveryNSteps == 0
}

func (p *LLMPlanner) planOneStep(ctx context.Context, message event.Message, ec *execctx.Context, currentSteps int) (event.PlanStep, error) {
	scratchpad, err := ec.FormatAgentScratchpad(ctx, 50, ec.GetCurrentPlan() != nil)
	if err != nil {
		return event.PlanStep{}, fmt.Errorf("plan: format scratchpad: %w", err)
	}

	promptState := ec.HookPromptState()
	systemMsg, err := p.formatter.SystemMessage(SystemTemplateData{
		Description:     p.cfg.Description,
		Instructions:    p.cfg.Instructions,
		AvailableTools:  renderToolList(p.tools),
		Scratchpad:      scratchpad,
		DynamicSections: promptState.Sections,
		DynamicValues:   promptState.Values,
		ReasoningDepth:  p.cfg.ReasoningDepth,
		ExecutionMode:   p.cfg.ExecutionMode,
		ToolFormat:      p.cfg.ToolFormat,
		MaxSteps:        p.cfg.MaxSteps,
		CurrentSteps:    currentSteps,
		RemainingSteps:  formatMaxSteps(p.cfg.MaxSteps, currentSteps),
	})
	if err != nil {
		return event.PlanStep{}, err
	}

	userMsg, err := p.formatter.UserMessage(message, nil, nil, nil)
	if err != nil {
		return event.PlanStep{}, err
	}

	messages := []event.Message{systemMsg, userMsg}

	params := llm.Params{Model: p.cfg.Model, MaxTokens: p.cfg.MaxTokens, Temperature: p.cfg.Temperature}
	if p.cfg.ToolFormat == FormatProvider {
		params.Tools = p.tools
	}

	result, err := p.client.Execute(ctx, messages, params)
	if err != nil {
		return event.PlanStep{}, fmt.Errorf("plan: llm call: %w", err)
	}

	return p.toPlanStep(result)
}

func (p *LLMPlanner) toPlanStep(result llm.Result) (event.PlanStep, error) {
	var text string
	var nativeCalls []event.ToolCall
	for _, part := range result.Parts {
		switch v := part.(type) {
		case event.TextPart:
			text += v.Text
		case event.ToolCallPart:
			nativeCalls = append(nativeCalls, event.ToolCall{ToolCallID: v.ToolCallID, ToolName: v.ToolName, Input: v.Input})
		}
	}

	stepID := uuid.NewString()

	switch p.cfg.ToolFormat {
	case FormatProvider:
		if len(nativeCalls) > 0 {
			return event.PlanStep{ID: stepID, Thought: text, Action: event.Action{Kind: event.ActionToolCalls, ToolCalls: nativeCalls}}, nil
		}
		return event.PlanStep{ID: stepID, Thought: text, Action: event.Action{Kind: event.ActionReason}}, nil

	case FormatCode:
		code, ok := ExtractCode(text)
		if !ok {
			return event.PlanStep{}, fmt.Errorf("plan: code format produced no extractable fragment")
		}
		return event.PlanStep{ID: stepID, Thought: text, Action: event.Action{Kind: event.ActionCode, Code: code}}, nil

	case FormatXML, FormatJSONL:
		parser := ParserFor(p.cfg.ToolFormat)
		calls, err := parser.Parse(text)
		if err != nil {
			return event.PlanStep{}, fmt.Errorf("plan: parse tool calls: %w", err)
		}
		for i := range calls {
			if calls[i].ToolCallID == "" {
				calls[i].ToolCallID = uuid.NewString()
			}
		}
		if len(calls) == 0 {
			return event.PlanStep{ID: stepID, Thought: text, Action: event.Action{Kind: event.ActionReason}}, nil
		}
		return event.PlanStep{ID: stepID, Thought: text, Action: event.Action{Kind: event.ActionToolCalls, ToolCalls: calls}}, nil

	default: // FormatNone
		return event.PlanStep{ID: stepID, Thought: text, Action: event.Action{Kind: event.ActionReason}}, nil
	}
}

func renderToolList(tools []llm.ToolSchema) string {
	if len(tools) == 0 {
		return ""
	}
	var out string
	for _, t := range tools {
		out += fmt.Sprintf("- %s: %s\n", t.Name, t.Description)
	}
	return out
}
