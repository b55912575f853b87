package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
	"github.com/agentmesh/runtime/llm"
	"github.com/agentmesh/runtime/plan"
	"github.com/agentmesh/runtime/tool"
)

// reflectVerdict mirrors the `reflect` built-in's input schema (tool.ReflectSchema),
// used here to decode the model's structured verdict rather than re-run it
// through the pipeline.
type reflectVerdict struct {
	ShouldContinue bool   `json:"should_continue"`
	Reason         string `json:"reason"`
}

// newReflectionFunc builds the loop's single reflection pass: one
// provider-native tool call against the `reflect` schema, asking the model
// whether the run's history justifies continuing past its current stopping
// point. A model that declines to call the tool (or errors) is treated as
// "stop" — reflection only ever extends a run, never blocks completion.
func newReflectionFunc(client llm.Client, cfg plan.Config) func(ctx context.Context, ec *execctx.Context, history []event.ExecutionHistoryEntry) (bool, event.ExecutionResult, error) {
	return func(ctx context.Context, ec *execctx.Context, history []event.ExecutionHistoryEntry) (bool, event.ExecutionResult, error) {
		summary := plan.FoldHistoryIntoScratchpad(history)
		prompt := fmt.Sprintf(
			"The run below may be complete. Review the history and call `reflect` with your verdict.\n\n%s",
			summary,
		)
		msg, err := event.NewMessage("", event.RoleUser, event.TextPart{Text: prompt})
		if err != nil {
			return false, event.ExecutionResult{}, fmt.Errorf("reflect: build prompt: %w", err)
		}

		result, err := client.Execute(ctx, []event.Message{msg}, llm.Params{
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Tools: []llm.ToolSchema{{
				Name:        "reflect",
				Description: "Decide whether the run should continue past its current stopping point.",
				InputSchema: []byte(tool.ReflectSchema),
			}},
		})
		if err != nil {
			return false, event.ExecutionResult{Status: event.ExecutionFailed, Reason: err.Error()}, nil
		}

		for _, p := range result.Parts {
			call, ok := p.(event.ToolCallPart)
			if !ok || call.ToolName != "reflect" {
				continue
			}
			var v reflectVerdict
			if err := json.Unmarshal(call.Input, &v); err != nil {
				continue
			}
			return v.ShouldContinue, event.ExecutionResult{Status: event.ExecutionSuccess, Reason: v.Reason}, nil
		}
		return false, event.ExecutionResult{Status: event.ExecutionSuccess, Reason: "no reflection verdict returned"}, nil
	}
}
