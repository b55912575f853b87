package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
	"github.com/agentmesh/runtime/store"
	"github.com/agentmesh/runtime/store/inmem"
)

func TestExecuteSequentialPipesResultsInOrder(t *testing.T) {
	o := New(inmem.NewAgentStore(), inmem.NewThreadTaskStore(), constResultFactory("hi"))
	ctx := context.Background()

	require.NoError(t, o.RegisterAgentDefinition(ctx, store.AgentDefinition{Name: "first", Kind: store.AgentCustom}))
	o.RegisterCustomHandler("first", func(ctx context.Context, message event.Message, ec *execctx.Context, overrides Overrides) (Result, error) {
		return Result{Success: true, FinalParts: []event.Part{event.TextPart{Text: "stage-1"}}}, nil
	})

	require.NoError(t, o.RegisterAgentDefinition(ctx, store.AgentDefinition{Name: "second", Kind: store.AgentCustom}))
	var secondSaw string
	o.RegisterCustomHandler("second", func(ctx context.Context, message event.Message, ec *execctx.Context, overrides Overrides) (Result, error) {
		if tp, ok := message.Parts[0].(event.TextPart); ok {
			secondSaw = tp.Text
		}
		return Result{Success: true, FinalParts: []event.Part{event.TextPart{Text: "stage-2"}}}, nil
	})

	require.NoError(t, o.RegisterAgentDefinition(ctx, store.AgentDefinition{
		Name: "pipeline", Kind: store.AgentSequentialWorkflow, ChildAgentIDs: []string{"first", "second"},
	}))

	ec := newTestContext(t)
	result, err := o.Execute(ctx, "pipeline", event.Message{Role: event.RoleUser, Parts: []event.Part{event.TextPart{Text: "start"}}}, ec, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "stage-1", secondSaw)
	require.Len(t, result.FinalParts, 1)
	assert.Equal(t, event.TextPart{Text: "stage-2"}, result.FinalParts[0])
}

func TestExecuteSequentialWithNoChildrenErrors(t *testing.T) {
	o := New(inmem.NewAgentStore(), inmem.NewThreadTaskStore(), constResultFactory("hi"))
	ctx := context.Background()
	require.NoError(t, o.RegisterAgentDefinition(ctx, store.AgentDefinition{Name: "empty-pipeline", Kind: store.AgentSequentialWorkflow}))

	ec := newTestContext(t)
	_, err := o.Execute(ctx, "empty-pipeline", event.Message{}, ec, Overrides{})
	assert.Error(t, err)
}
