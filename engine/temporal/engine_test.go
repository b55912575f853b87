package temporal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/engine"
)

func TestRegisterWorkflowReusesWorkerPerQueue(t *testing.T) {
	e := New(nil)

	require.NoError(t, e.RegisterWorkflow(context.Background(), engine.WorkflowDefinition{
		Name:      "AgentWorkflow",
		TaskQueue: "agents",
		Handler:   func(engine.WorkflowContext, any) (any, error) { return nil, nil },
	}))
	require.NoError(t, e.RegisterWorkflow(context.Background(), engine.WorkflowDefinition{
		Name:      "AgentWorkflowV2",
		TaskQueue: "agents",
		Handler:   func(engine.WorkflowContext, any) (any, error) { return nil, nil },
	}))

	assert.Len(t, e.workers, 1, "both workflows share the same task queue's worker")
}

func TestRegisterWorkflowRequiresNameAndQueue(t *testing.T) {
	e := New(nil)
	err := e.RegisterWorkflow(context.Background(), engine.WorkflowDefinition{Name: "AgentWorkflow"})
	assert.Error(t, err)
}

func TestRegisterActivityRequiresExplicitQueue(t *testing.T) {
	e := New(nil)
	err := e.RegisterActivity(context.Background(), engine.ActivityDefinition{
		Name:    "ExecuteToolActivity",
		Handler: func(context.Context, any) (any, error) { return nil, nil },
	})
	assert.Error(t, err)
}
