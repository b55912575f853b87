package loop

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
	"github.com/agentmesh/runtime/store/inmem"
	"github.com/agentmesh/runtime/task"
)

type fakePlanner struct {
	planFn           func() (event.AgentPlan, error)
	replanFn         func() (event.AgentPlan, error)
	needsReplanningFn func([]event.ExecutionHistoryEntry) bool
}

func (f *fakePlanner) Plan(ctx context.Context, message event.Message, ec *execctx.Context) (event.AgentPlan, error) {
	return f.planFn()
}

func (f *fakePlanner) Replan(ctx context.Context, message event.Message, ec *execctx.Context, current event.AgentPlan) (event.AgentPlan, error) {
	if f.replanFn != nil {
		return f.replanFn()
	}
	return f.planFn()
}

func (f *fakePlanner) NeedsReplanning(history []event.ExecutionHistoryEntry) bool {
	if f.needsReplanningFn == nil {
		return false
	}
	return f.needsReplanningFn(history)
}

type fakeExecutor struct {
	executeFn      func(step event.PlanStep, ec *execctx.Context) (event.ExecutionResult, error)
	shouldContinue bool
}

func (f *fakeExecutor) ExecuteStep(ctx context.Context, step event.PlanStep, ec *execctx.Context) (event.ExecutionResult, error) {
	return f.executeFn(step, ec)
}

func (f *fakeExecutor) ShouldContinue(plan event.AgentPlan, index int, ec *execctx.Context) bool {
	return f.shouldContinue
}

func newTestContext(t *testing.T) (*execctx.Context, *event.ChanSink) {
	t.Helper()
	tasks := inmem.NewThreadTaskStore()
	_, err := tasks.CreateTask(context.Background(), task.Task{ID: "task-1", ThreadID: "thread-1", Status: task.StatusPending})
	require.NoError(t, err)
	sink := event.NewChanSink(64)
	ec := execctx.New("run-1", "task-1", "thread-1", sink, tasks, inmem.NewScratchpadStore(), inmem.NewThreadTaskStore())
	return ec, sink
}

func drainEvents(sink *event.ChanSink) []event.Event {
	var out []event.Event
	for {
		select {
		case e := <-sink.C():
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestLoopRunsSingleStepAndFinishesSuccessfully(t *testing.T) {
	step := event.PlanStep{ID: "step-1", Action: event.Action{Kind: event.ActionToolCalls}}
	planner := &fakePlanner{planFn: func() (event.AgentPlan, error) {
		return event.AgentPlan{Steps: []event.PlanStep{step}, InitialPlan: true}, nil
	}}
	executor := &fakeExecutor{
		executeFn: func(s event.PlanStep, ec *execctx.Context) (event.ExecutionResult, error) {
			ec.SetFinalResult([]event.Part{event.TextPart{Text: "done"}})
			return event.ExecutionResult{StepID: s.ID, Status: event.ExecutionSuccess}, nil
		},
		shouldContinue: false,
	}

	l := New(planner, executor, nil, nil, Config{})
	ec, sink := newTestContext(t)

	err := l.Run(context.Background(), event.Message{Role: event.RoleUser, Parts: []event.Part{event.TextPart{Text: "hi"}}}, ec)
	require.NoError(t, err)

	events := drainEvents(sink)
	var finished *event.RunFinishedData
	for _, e := range events {
		if e.Type == event.TypeRunFinished {
			data := e.Data.(event.RunFinishedData)
			finished = &data
		}
	}
	require.NotNil(t, finished)
	assert.True(t, finished.Success)
	assert.Equal(t, 1, finished.TotalSteps)
}

func TestLoopIterationCapWithoutFinalYieldsUnsuccessfulFinish(t *testing.T) {
	planCalls := 0
	planner := &fakePlanner{planFn: func() (event.AgentPlan, error) {
		planCalls++
		steps := make([]event.PlanStep, 0, DefaultMaxIterations+2)
		for i := 0; i < DefaultMaxIterations+2; i++ {
			steps = append(steps, event.PlanStep{ID: "step", Action: event.Action{Kind: event.ActionToolCalls}})
		}
		return event.AgentPlan{Steps: steps, InitialPlan: planCalls == 1}, nil
	}}
	executor := &fakeExecutor{
		executeFn: func(s event.PlanStep, ec *execctx.Context) (event.ExecutionResult, error) {
			return event.ExecutionResult{StepID: s.ID, Status: event.ExecutionSuccess}, nil
		},
		shouldContinue: true,
	}

	l := New(planner, executor, nil, nil, Config{})
	ec, sink := newTestContext(t)

	err := l.Run(context.Background(), event.Message{Role: event.RoleUser, Parts: []event.Part{event.TextPart{Text: "hi"}}}, ec)
	require.NoError(t, err)

	events := drainEvents(sink)
	var finished *event.RunFinishedData
	for _, e := range events {
		if e.Type == event.TypeRunFinished {
			data := e.Data.(event.RunFinishedData)
			finished = &data
		}
	}
	require.NotNil(t, finished)
	assert.False(t, finished.Success)
	assert.Equal(t, DefaultMaxIterations, finished.TotalSteps)
}

func TestLoopTooManyPlanErrorsEndsWithRunError(t *testing.T) {
	planner := &fakePlanner{planFn: func() (event.AgentPlan, error) {
		return event.AgentPlan{}, errors.New("planner exploded")
	}}
	executor := &fakeExecutor{executeFn: func(s event.PlanStep, ec *execctx.Context) (event.ExecutionResult, error) {
		t.Fatal("executor should never run")
		return event.ExecutionResult{}, nil
	}}

	l := New(planner, executor, nil, nil, Config{})
	ec, sink := newTestContext(t)

	err := l.Run(context.Background(), event.Message{Role: event.RoleUser, Parts: []event.Part{event.TextPart{Text: "hi"}}}, ec)
	require.Error(t, err)

	events := drainEvents(sink)
	var sawRunError bool
	for _, e := range events {
		if e.Type == event.TypeRunError {
			sawRunError = true
		}
	}
	assert.True(t, sawRunError)
}

func TestLoopInputRequiredStopsAndMarksStatus(t *testing.T) {
	step := event.PlanStep{ID: "step-1", Action: event.Action{Kind: event.ActionToolCalls}}
	planner := &fakePlanner{planFn: func() (event.AgentPlan, error) {
		return event.AgentPlan{Steps: []event.PlanStep{step}, InitialPlan: true}, nil
	}}
	executor := &fakeExecutor{executeFn: func(s event.PlanStep, ec *execctx.Context) (event.ExecutionResult, error) {
		return event.ExecutionResult{StepID: s.ID, Status: event.ExecutionInputRequired}, nil
	}}

	l := New(planner, executor, nil, nil, Config{})
	ec, _ := newTestContext(t)

	err := l.Run(context.Background(), event.Message{Role: event.RoleUser, Parts: []event.Part{event.TextPart{Text: "hi"}}}, ec)
	require.NoError(t, err)
}

func TestLoopReplansMidRunWhenPlannerSignalsNeedsReplanning(t *testing.T) {
	stepA := event.PlanStep{ID: "a", Action: event.Action{Kind: event.ActionToolCalls}}
	stepB := event.PlanStep{ID: "b", Action: event.Action{Kind: event.ActionToolCalls}}
	replanCalled := false

	planner := &fakePlanner{
		planFn: func() (event.AgentPlan, error) {
			return event.AgentPlan{Steps: []event.PlanStep{stepA}, InitialPlan: true}, nil
		},
		replanFn: func() (event.AgentPlan, error) {
			replanCalled = true
			return event.AgentPlan{Steps: []event.PlanStep{stepB}, InitialPlan: false}, nil
		},
		needsReplanningFn: func(h []event.ExecutionHistoryEntry) bool {
			return len(h) == 1
		},
	}

	calls := 0
	executor := &fakeExecutor{executeFn: func(s event.PlanStep, ec *execctx.Context) (event.ExecutionResult, error) {
		calls++
		if s.ID == "b" {
			ec.SetFinalResult([]event.Part{event.TextPart{Text: "done"}})
		}
		return event.ExecutionResult{StepID: s.ID, Status: event.ExecutionSuccess}, nil
	}, shouldContinue: false}

	l := New(planner, executor, nil, nil, Config{})
	ec, _ := newTestContext(t)

	err := l.Run(context.Background(), event.Message{Role: event.RoleUser, Parts: []event.Part{event.TextPart{Text: "hi"}}}, ec)
	require.NoError(t, err)
	assert.True(t, replanCalled)
	assert.Equal(t, 2, calls)
}

func TestLoopReflectionContinuesRunOnce(t *testing.T) {
	step := event.PlanStep{ID: "step-1", Action: event.Action{Kind: event.ActionToolCalls}}
	planner := &fakePlanner{planFn: func() (event.AgentPlan, error) {
		return event.AgentPlan{Steps: []event.PlanStep{step}, InitialPlan: true}, nil
	}}
	executor := &fakeExecutor{executeFn: func(s event.PlanStep, ec *execctx.Context) (event.ExecutionResult, error) {
		ec.SetFinalResult([]event.Part{event.TextPart{Text: "done"}})
		return event.ExecutionResult{StepID: s.ID, Status: event.ExecutionSuccess}, nil
	}, shouldContinue: false}

	reflectCalls := 0
	reflectFn := func(ctx context.Context, ec *execctx.Context, history []event.ExecutionHistoryEntry) (bool, event.ExecutionResult, error) {
		reflectCalls++
		return true, event.ExecutionResult{StepID: "reflection", Status: event.ExecutionSuccess}, nil
	}

	l := New(planner, executor, nil, reflectFn, Config{ReflectionEnabled: true})
	ec, _ := newTestContext(t)

	err := l.Run(context.Background(), event.Message{Role: event.RoleUser, Parts: []event.Part{event.TextPart{Text: "hi"}}}, ec)
	require.NoError(t, err)
	assert.Equal(t, 1, reflectCalls)
}

func TestLoopPreprocessRoutesToolResultPartsToExecutionResult(t *testing.T) {
	step := event.PlanStep{ID: "step-1", Action: event.Action{Kind: event.ActionToolCalls}}
	planner := &fakePlanner{planFn: func() (event.AgentPlan, error) {
		return event.AgentPlan{Steps: []event.PlanStep{step}, InitialPlan: true}, nil
	}}
	executor := &fakeExecutor{executeFn: func(s event.PlanStep, ec *execctx.Context) (event.ExecutionResult, error) {
		ec.SetFinalResult([]event.Part{event.TextPart{Text: "done"}})
		return event.ExecutionResult{StepID: s.ID, Status: event.ExecutionSuccess}, nil
	}, shouldContinue: false}

	l := New(planner, executor, nil, nil, Config{})
	ec, _ := newTestContext(t)

	msg := event.Message{Role: event.RoleTool, Parts: []event.Part{
		event.ToolResultPart{ToolCallID: "call-1", ToolName: "search", Parts: []event.Part{event.TextPart{Text: "result"}}},
	}}
	err := l.Run(context.Background(), msg, ec)
	require.NoError(t, err)
}
