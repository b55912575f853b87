package orchestrator

import (
	"context"
	"fmt"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
	"github.com/agentmesh/runtime/store"
)

// executeSequential runs def.ChildAgentIDs in order, piping each child's
// final result into the next child's incoming message, per spec.md §4.6's
// SequentialWorkflow definition.
func (o *Orchestrator) executeSequential(ctx context.Context, def store.AgentDefinition, message event.Message, ec *execctx.Context, overrides Overrides) (Result, error) {
	if len(def.ChildAgentIDs) == 0 {
		return Result{}, fmt.Errorf("orchestrator: sequential workflow %q has no child agents", def.Name)
	}

	current := message
	var last Result
	for _, childName := range def.ChildAgentIDs {
		result, err := o.Execute(ctx, childName, current, ec, overrides)
		if err != nil {
			return Result{}, fmt.Errorf("orchestrator: sequential step %q: %w", childName, err)
		}
		last = result
		current = event.Message{Role: event.RoleUser, Parts: result.FinalParts}
	}
	return last, nil
}
