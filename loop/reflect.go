package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
	"github.com/agentmesh/runtime/llm"
	"github.com/agentmesh/runtime/tool"
)

// NewLLMReflection builds the default ReflectionFunc: one non-streaming LLM
// call, forced toward the `reflect` tool via provider-native tool calling,
// summarizing the run's history so far and asking whether the run should
// continue. A response with no `reflect` tool call is treated as
// should_continue=false rather than an error, since an LLM that declines to
// call the tool is itself a signal the run is done.
func NewLLMReflection(client llm.Client, model string, maxTokens int) ReflectionFunc {
	return func(ctx context.Context, ec *execctx.Context, history []event.ExecutionHistoryEntry) (bool, event.ExecutionResult, error) {
		prompt := summarizeHistory(history)
		messages := []event.Message{
			{Role: event.RoleSystem, Parts: []event.Part{event.TextPart{Text: "You are reviewing an agent run's history. Call reflect with should_continue=true only if there is clearly unfinished work."}}},
			{Role: event.RoleUser, Parts: []event.Part{event.TextPart{Text: prompt}}},
		}
		result, err := client.Execute(ctx, messages, llm.Params{
			Model:     model,
			MaxTokens: maxTokens,
			Tools:     []llm.ToolSchema{{Name: "reflect", Description: "Decide whether the run should continue.", InputSchema: []byte(tool.ReflectSchema)}},
		})
		if err != nil {
			return false, event.ExecutionResult{}, fmt.Errorf("loop: reflection call: %w", err)
		}

		for _, p := range result.Parts {
			call, ok := p.(event.ToolCallPart)
			if !ok || call.ToolName != "reflect" {
				continue
			}
			var decision struct {
				ShouldContinue bool   `json:"should_continue"`
				Reason         string `json:"reason"`
			}
			if err := json.Unmarshal(call.Input, &decision); err != nil {
				return false, event.ExecutionResult{}, fmt.Errorf("loop: decode reflect verdict: %w", err)
			}
			return decision.ShouldContinue, event.ExecutionResult{
				StepID: "reflection",
				Status: event.ExecutionSuccess,
				Parts:  []event.Part{event.TextPart{Text: decision.Reason}},
				Reason: decision.Reason,
			}, nil
		}

		return false, event.ExecutionResult{StepID: "reflection", Status: event.ExecutionSuccess}, nil
	}
}

func summarizeHistory(history []event.ExecutionHistoryEntry) string {
	var b strings.Builder
	b.WriteString("Run history:\n")
	for _, h := range history {
		fmt.Fprintf(&b, "- step %s (%s): %s\n", h.Step.ID, h.Result.Status, h.Step.Thought)
	}
	return b.String()
}
