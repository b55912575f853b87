package a2a

import (
	"context"
	"fmt"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/store"
)

// checkRequiredSecrets fails fast, per spec.md §4.7's pre-execution
// validation, listing every missing key in one error rather than stopping at
// the first.
func checkRequiredSecrets(ctx context.Context, auth store.ToolAuthStore, def store.AgentDefinition) error {
	var missing []string
	for _, key := range def.RequiredSecrets {
		if !auth.HasSecret(ctx, key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required secrets: %v", missing)
	}
	return nil
}

// validateMessage enforces spec.md §8's boundary behaviors: at least one
// part, and any tool_result part requires a task_id on the request.
func validateMessage(msg event.Message, taskID string) error {
	if len(msg.Parts) == 0 {
		return event.ErrEmptyMessageParts
	}
	for _, p := range msg.Parts {
		if _, ok := p.(event.ToolResultPart); ok && taskID == "" {
			return event.ErrToolResultMissingTaskID
		}
	}
	return nil
}
