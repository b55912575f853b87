package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
)

// finalInput is the payload for the `final` built-in.
type finalInput struct {
	Result string `json:"result"`
}

// FinalDefinition is the `final` built-in: the only way a run's loop learns
// it has reached a terminal answer. Schema-less, since its single string
// field needs no validation beyond JSON decoding.
func FinalDefinition() Definition {
	return Definition{
		Name:        "final",
		Description: "Signal that the run has reached its final answer.",
		Kind:        KindExecutorContext,
		Handler: func(_ context.Context, ec *execctx.Context, input json.RawMessage) ([]event.Part, error) {
			var in finalInput
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, fmt.Errorf("tool: final: decode input: %w", err)
			}
			parts := []event.Part{event.TextPart{Text: in.Result}}
			ec.SetFinalResult(parts)
			return parts, nil
		},
	}
}

// transferInput is the payload for the `transfer_to_agent` built-in.
type transferInput struct {
	AgentName string `json:"agent_name"`
	Message   string `json:"message"`
}

// TransferHandoff is the channel of control a `transfer_to_agent` call
// requests. It reaches the orchestrator through the notify callback given to
// TransferToAgentDefinition rather than a return value, since the handler
// signature is shared with every other executor-context tool.
type TransferHandoff struct {
	AgentName string
	Message   string
}

// TransferToAgentDefinition is the `transfer_to_agent` built-in. It passes
// the requested handoff to notify from inside the tool call, and the call
// returns once notify does. notify receives the live ec for this run so it
// can call orchestrator.HandoverAgent directly instead of threading a side
// channel through the loop.
func TransferToAgentDefinition(notify func(ec *execctx.Context, h TransferHandoff)) Definition {
	return Definition{
		Name:        "transfer_to_agent",
		Description: "Hand control of this task to another registered agent.",
		Kind:        KindExecutorContext,
		Handler: func(_ context.Context, ec *execctx.Context, input json.RawMessage) ([]event.Part, error) {
			var in transferInput
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, fmt.Errorf("tool: transfer_to_agent: decode input: %w", err)
			}
			if in.AgentName == "" {
				return nil, fmt.Errorf("tool: transfer_to_agent: agent_name is required")
			}
			notify(ec, TransferHandoff{AgentName: in.AgentName, Message: in.Message})
			return []event.Part{event.TextPart{Text: fmt.Sprintf("transferring to %s", in.AgentName)}}, nil
		},
	}
}

// reflectInput is the payload for the `reflect` built-in.
type reflectInput struct {
	ShouldContinue bool   `json:"should_continue"`
	Reason         string `json:"reason"`
}

// ReflectSchema is the JSON Schema advertised for the `reflect` tool: the
// input schema of ReflectDefinition, and the tool schema of the one-shot
// reflection LLM calls in the loop package and cmd/agentd, so all of them
// agree on the same contract.
const ReflectSchema = `{"type":"object","properties":{"should_continue":{"type":"boolean"},"reason":{"type":"string"}},"required":["should_continue"]}`

// ReflectDefinition is the `reflect` built-in: the reflection subagent's
// structured verdict on whether the run should continue past a point where
// the executor would otherwise stop. notify receives the decoded verdict.
func ReflectDefinition(notify func(shouldContinue bool, reason string)) Definition {
	return Definition{
		Name:        "reflect",
		Description: "Decide whether the run should continue past its current stopping point.",
		Kind:        KindExecutorContext,
		InputSchema: json.RawMessage(ReflectSchema),
		Handler: func(_ context.Context, _ *execctx.Context, input json.RawMessage) ([]event.Part, error) {
			var in reflectInput
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, fmt.Errorf("tool: reflect: decode input: %w", err)
			}
			notify(in.ShouldContinue, in.Reason)
			return []event.Part{event.TextPart{Text: in.Reason}}, nil
		},
	}
}

// artifactToolInput is the payload for the `artifact_tool` built-in: an
// explicit request to persist content as an artifact regardless of size,
// rather than relying on the pipeline's size-threshold auto-wrap.
type artifactToolInput struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	MIMEType string `json:"mime_type"`
}

// ArtifactToolDefinition is the `artifact_tool` built-in, letting the model
// persist content to the session filesystem on demand.
func ArtifactToolDefinition(store ArtifactStore) Definition {
	return Definition{
		Name:        "artifact_tool",
		Description: "Persist content to the session filesystem and reference it as an artifact.",
		Kind:        KindExecutorContext,
		Handler: func(_ context.Context, ec *execctx.Context, input json.RawMessage) ([]event.Part, error) {
			var in artifactToolInput
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, fmt.Errorf("tool: artifact_tool: decode input: %w", err)
			}
			if store == nil {
				return nil, fmt.Errorf("tool: artifact_tool: no artifact store configured")
			}
			mime := in.MIMEType
			if mime == "" {
				mime = "text/plain"
			}
			path, err := store.Put(hashSegment(ec.ThreadID), hashSegment(ec.TaskID), in.Filename, []byte(in.Content))
			if err != nil {
				return nil, fmt.Errorf("tool: artifact_tool: persist: %w", err)
			}
			return []event.Part{event.ArtifactPart{
				ID:       in.Filename,
				Path:     path,
				MIMEType: mime,
				Size:     int64(len(in.Content)),
				Preview:  preview([]byte(in.Content)),
			}}, nil
		},
	}
}
