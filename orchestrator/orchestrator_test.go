package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
	"github.com/agentmesh/runtime/loop"
	"github.com/agentmesh/runtime/store"
	"github.com/agentmesh/runtime/store/inmem"
	"github.com/agentmesh/runtime/task"
)

func newTestContext(t *testing.T) *execctx.Context {
	t.Helper()
	tasks := inmem.NewThreadTaskStore()
	_, err := tasks.CreateTask(context.Background(), task.Task{ID: "task-1", ThreadID: "thread-1", Status: task.StatusPending})
	require.NoError(t, err)
	sink := event.NewChanSink(64)
	return execctx.New("run-1", "task-1", "thread-1", sink, tasks, inmem.NewScratchpadStore(), inmem.NewThreadTaskStore())
}

// constResult builds a loopFactory that always produces a Loop whose Run
// immediately sets the given final text and returns nil, without touching
// the planner/executor machinery — enough to exercise dispatch, not the
// loop internals those packages already test directly.
func constResultFactory(text string) LoopFactory {
	return func(ctx context.Context, def store.AgentDefinition) (*loop.Loop, error) {
		planner := &stubPlanner{text: text}
		executor := &stubExecutor{}
		return loop.New(planner, executor, nil, nil, loop.Config{}), nil
	}
}

type stubPlanner struct{ text string }

func (p *stubPlanner) Plan(ctx context.Context, message event.Message, ec *execctx.Context) (event.AgentPlan, error) {
	return event.AgentPlan{InitialPlan: true, Steps: []event.PlanStep{{ID: "s1", Action: event.Action{Kind: event.ActionToolCalls}}}}, nil
}

func (p *stubPlanner) Replan(ctx context.Context, message event.Message, ec *execctx.Context, current event.AgentPlan) (event.AgentPlan, error) {
	return p.Plan(ctx, message, ec)
}

func (p *stubPlanner) NeedsReplanning(history []event.ExecutionHistoryEntry) bool { return false }

type stubExecutor struct{}

func (e *stubExecutor) ExecuteStep(ctx context.Context, step event.PlanStep, ec *execctx.Context) (event.ExecutionResult, error) {
	ec.SetFinalResult([]event.Part{event.TextPart{Text: "ok"}})
	return event.ExecutionResult{StepID: step.ID, Status: event.ExecutionSuccess}, nil
}

func (e *stubExecutor) ShouldContinue(plan event.AgentPlan, index int, ec *execctx.Context) bool {
	return false
}

func TestRegisterAndGetAgent(t *testing.T) {
	o := New(inmem.NewAgentStore(), inmem.NewThreadTaskStore(), constResultFactory("hi"))
	ctx := context.Background()

	require.NoError(t, o.RegisterAgentDefinition(ctx, store.AgentDefinition{Name: "greeter", Kind: store.AgentStandard}))

	def, err := o.GetAgent(ctx, "greeter")
	require.NoError(t, err)
	assert.Equal(t, store.AgentStandard, def.Kind)

	all, err := o.ListAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestExecuteDispatchesStandardAgentThroughLoop(t *testing.T) {
	o := New(inmem.NewAgentStore(), inmem.NewThreadTaskStore(), constResultFactory("hi"))
	ctx := context.Background()
	require.NoError(t, o.RegisterAgentDefinition(ctx, store.AgentDefinition{Name: "greeter", Kind: store.AgentStandard}))

	ec := newTestContext(t)
	result, err := o.Execute(ctx, "greeter", event.Message{Role: event.RoleUser, Parts: []event.Part{event.TextPart{Text: "hi"}}}, ec, Overrides{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.FinalParts, 1)
	assert.Equal(t, event.TextPart{Text: "ok"}, result.FinalParts[0])
}

func TestExecuteUnknownAgentErrors(t *testing.T) {
	o := New(inmem.NewAgentStore(), inmem.NewThreadTaskStore(), constResultFactory("hi"))
	ec := newTestContext(t)
	_, err := o.Execute(context.Background(), "nope", event.Message{}, ec, Overrides{})
	assert.Error(t, err)
}

func TestExecuteDispatchesCustomAgent(t *testing.T) {
	o := New(inmem.NewAgentStore(), inmem.NewThreadTaskStore(), constResultFactory("hi"))
	ctx := context.Background()
	require.NoError(t, o.RegisterAgentDefinition(ctx, store.AgentDefinition{Name: "custom-one", Kind: store.AgentCustom}))

	var called bool
	o.RegisterCustomHandler("custom-one", func(ctx context.Context, message event.Message, ec *execctx.Context, overrides Overrides) (Result, error) {
		called = true
		return Result{Success: true}, nil
	})

	ec := newTestContext(t)
	result, err := o.Execute(ctx, "custom-one", event.Message{}, ec, Overrides{})
	require.NoError(t, err)
	assert.True(t, called)
	assert.True(t, result.Success)
}

func TestExecuteCustomAgentWithoutHandlerErrors(t *testing.T) {
	o := New(inmem.NewAgentStore(), inmem.NewThreadTaskStore(), constResultFactory("hi"))
	ctx := context.Background()
	require.NoError(t, o.RegisterAgentDefinition(ctx, store.AgentDefinition{Name: "custom-two", Kind: store.AgentCustom}))

	ec := newTestContext(t)
	_, err := o.Execute(ctx, "custom-two", event.Message{}, ec, Overrides{})
	assert.Error(t, err)
}

func TestEnsureThreadExistsCreatesOnce(t *testing.T) {
	o := New(inmem.NewAgentStore(), inmem.NewThreadTaskStore(), constResultFactory("hi"))
	ctx := context.Background()

	th, err := o.EnsureThreadExists(ctx, "greeter", "", "chat", nil)
	require.NoError(t, err)
	require.NotEmpty(t, th.ID)

	again, err := o.EnsureThreadExists(ctx, "greeter", th.ID, "chat", nil)
	require.NoError(t, err)
	assert.Equal(t, th.ID, again.ID)
}

func TestExecuteStreamReportsCompletion(t *testing.T) {
	o := New(inmem.NewAgentStore(), inmem.NewThreadTaskStore(), constResultFactory("hi"))
	ctx := context.Background()
	require.NoError(t, o.RegisterAgentDefinition(ctx, store.AgentDefinition{Name: "greeter", Kind: store.AgentStandard}))

	ec := newTestContext(t)
	done := o.ExecuteStream(ctx, "greeter", event.Message{Role: event.RoleUser, Parts: []event.Part{event.TextPart{Text: "hi"}}}, ec, Overrides{})
	err := <-done
	assert.NoError(t, err)
}
