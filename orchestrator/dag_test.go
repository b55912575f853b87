package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
	"github.com/agentmesh/runtime/store"
	"github.com/agentmesh/runtime/store/inmem"
)

// registerNode registers a Custom agent whose result text is its own name,
// and records the order the original message's text arrived in, so tests
// can assert dependency wiring without inspecting internal scheduling.
func registerNode(t *testing.T, o *Orchestrator, name string, mu *sync.Mutex, seen *[]string) {
	t.Helper()
	require.NoError(t, o.RegisterAgentDefinition(context.Background(), store.AgentDefinition{Name: name, Kind: store.AgentCustom}))
	o.RegisterCustomHandler(name, func(ctx context.Context, message event.Message, ec *execctx.Context, overrides Overrides) (Result, error) {
		mu.Lock()
		*seen = append(*seen, name)
		mu.Unlock()
		return Result{Success: true, FinalParts: []event.Part{event.TextPart{Text: name}}}, nil
	})
}

func TestExecuteDagRunsInTopologicalOrder(t *testing.T) {
	o := New(inmem.NewAgentStore(), inmem.NewThreadTaskStore(), constResultFactory("hi"))
	ctx := context.Background()

	var mu sync.Mutex
	var seen []string
	registerNode(t, o, "fetch", &mu, &seen)
	registerNode(t, o, "transform", &mu, &seen)
	registerNode(t, o, "publish", &mu, &seen)

	require.NoError(t, o.RegisterAgentDefinition(ctx, store.AgentDefinition{
		Name:          "pipeline",
		Kind:          store.AgentDagWorkflow,
		ChildAgentIDs: []string{"fetch", "transform", "publish"},
		DependsOn: map[string][]string{
			"transform": {"fetch"},
			"publish":   {"transform"},
		},
	}))

	ec := newTestContext(t)
	result, err := o.Execute(ctx, "pipeline", event.Message{Role: event.RoleUser, Parts: []event.Part{event.TextPart{Text: "go"}}}, ec, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, []string{"fetch", "transform", "publish"}, seen)
	require.Len(t, result.FinalParts, 1)
	assert.Equal(t, event.TextPart{Text: "publish"}, result.FinalParts[0])
}

func TestExecuteDagRunsIndependentNodesConcurrently(t *testing.T) {
	o := New(inmem.NewAgentStore(), inmem.NewThreadTaskStore(), constResultFactory("hi"))
	ctx := context.Background()

	var mu sync.Mutex
	var seen []string
	registerNode(t, o, "left", &mu, &seen)
	registerNode(t, o, "right", &mu, &seen)

	require.NoError(t, o.RegisterAgentDefinition(ctx, store.AgentDefinition{
		Name: "fanout", Kind: store.AgentDagWorkflow, ChildAgentIDs: []string{"left", "right"},
	}))

	ec := newTestContext(t)
	result, err := o.Execute(ctx, "fanout", event.Message{}, ec, Overrides{})
	require.NoError(t, err)
	assert.Len(t, seen, 2)
	assert.Len(t, result.FinalParts, 2)
}

func TestTopologicalLayersDetectsCycle(t *testing.T) {
	_, err := topologicalLayers([]string{"a", "b"}, map[string][]string{
		"a": {"b"},
		"b": {"a"},
	})
	assert.Error(t, err)
}

func TestExecuteDagWithNoChildrenErrors(t *testing.T) {
	o := New(inmem.NewAgentStore(), inmem.NewThreadTaskStore(), constResultFactory("hi"))
	ctx := context.Background()
	require.NoError(t, o.RegisterAgentDefinition(ctx, store.AgentDefinition{Name: "empty-dag", Kind: store.AgentDagWorkflow}))

	ec := newTestContext(t)
	_, err := o.Execute(ctx, "empty-dag", event.Message{}, ec, Overrides{})
	assert.Error(t, err)
}
