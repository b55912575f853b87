package strategy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
	"github.com/agentmesh/runtime/llm"
	"github.com/agentmesh/runtime/sandbox"
	"github.com/agentmesh/runtime/store/inmem"
	"github.com/agentmesh/runtime/task"
	"github.com/agentmesh/runtime/tool"
)

type streamClient struct {
	events []llm.StreamEvent
	err    error
}

func (c *streamClient) Execute(ctx context.Context, messages []event.Message, params llm.Params) (llm.Result, error) {
	return llm.Result{}, nil
}

func (c *streamClient) ExecuteStream(ctx context.Context, messages []event.Message, params llm.Params, fn func(llm.StreamEvent)) error {
	for _, ev := range c.events {
		fn(ev)
	}
	return c.err
}

func newTestContext(t *testing.T) *execctx.Context {
	t.Helper()
	tasks := inmem.NewThreadTaskStore()
	_, err := tasks.CreateTask(context.Background(), task.Task{ID: "task-1", ThreadID: "thread-1", Status: task.StatusPending})
	require.NoError(t, err)
	sink := event.NewChanSink(32)
	ec := execctx.New("run-1", "task-1", "thread-1", sink, tasks, inmem.NewScratchpadStore(), inmem.NewThreadTaskStore())
	require.NoError(t, ec.UpdateStatus(context.Background(), task.StatusRunning, ""))
	return ec
}

func newEchoPipeline(t *testing.T) *tool.Pipeline {
	t.Helper()
	defs := []tool.Definition{{
		Name: "echo",
		Kind: tool.KindInternal,
		Handler: func(ctx context.Context, ec *execctx.Context, input json.RawMessage) ([]event.Part, error) {
			return []event.Part{event.TextPart{Text: string(input)}}, nil
		},
	}}
	registry, err := tool.NewRegistry(defs, nil)
	require.NoError(t, err)
	return tool.NewPipeline(registry, inmem.NewRendezvousStore())
}

func TestExecuteStepToolCallsRunsThroughPipeline(t *testing.T) {
	pipeline := newEchoPipeline(t)
	exec := NewDefaultExecutor(nil, pipeline, nil, Config{}, nil, nil)

	step := event.PlanStep{ID: "step-1", Action: event.Action{Kind: event.ActionToolCalls, ToolCalls: []event.ToolCall{
		{ToolCallID: "call-1", ToolName: "echo", Input: []byte(`"hi"`)},
	}}}

	result, err := exec.ExecuteStep(context.Background(), step, newTestContext(t))
	require.NoError(t, err)
	assert.Equal(t, event.ExecutionSuccess, result.Status)
	require.Len(t, result.Parts, 1)
	assert.Equal(t, `"hi"`, result.Parts[0].(event.TextPart).Text)
}

func TestExecuteStepCodeRunsThroughSandbox(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"output": "42\n", "exit_code": 0})
	}))
	defer srv.Close()

	runner := sandbox.NewRunner(srv.URL)
	exec := NewDefaultExecutor(nil, nil, runner, Config{}, nil, nil)

	step := event.PlanStep{ID: "step-1", Action: event.Action{Kind: event.ActionCode, Code: "print(42)"}}
	result, err := exec.ExecuteStep(context.Background(), step, newTestContext(t))
	require.NoError(t, err)
	assert.Equal(t, event.ExecutionSuccess, result.Status)
	assert.Equal(t, "42\n", result.Parts[0].(event.TextPart).Text)
}

func TestExecuteStepCodeWithoutSandboxFails(t *testing.T) {
	exec := NewDefaultExecutor(nil, nil, nil, Config{}, nil, nil)
	step := event.PlanStep{ID: "step-1", Action: event.Action{Kind: event.ActionCode, Code: "print(1)"}}
	result, err := exec.ExecuteStep(context.Background(), step, newTestContext(t))
	require.NoError(t, err)
	assert.Equal(t, event.ExecutionFailed, result.Status)
}

func TestExecuteStepReasonAggregatesTextOnly(t *testing.T) {
	client := &streamClient{events: []llm.StreamEvent{
		{Kind: llm.StreamTextDelta, Text: "hello "},
		{Kind: llm.StreamTextDelta, Text: "world"},
		{Kind: llm.StreamDone, FinishReason: "text"},
	}}
	exec := NewDefaultExecutor(client, nil, nil, Config{}, nil, nil)

	step := event.PlanStep{ID: "step-1", Thought: "say hi", Action: event.Action{Kind: event.ActionReason}}
	result, err := exec.ExecuteStep(context.Background(), step, newTestContext(t))
	require.NoError(t, err)
	assert.Equal(t, event.ExecutionSuccess, result.Status)
	assert.Equal(t, "hello world", result.Parts[0].(event.TextPart).Text)
}

func TestExecuteStepReasonAggregatesToolCallDeltasAndRunsPipeline(t *testing.T) {
	client := &streamClient{events: []llm.StreamEvent{
		{Kind: llm.StreamToolCallDelta, ToolCallID: "call-1", ToolName: "echo", InputDelta: `"h`},
		{Kind: llm.StreamToolCallDelta, ToolCallID: "call-1", InputDelta: `i"`},
		{Kind: llm.StreamDone, FinishReason: "tool_calls"},
	}}
	pipeline := newEchoPipeline(t)
	exec := NewDefaultExecutor(client, pipeline, nil, Config{ToolFormat: "provider"}, nil, nil)

	step := event.PlanStep{ID: "step-1", Action: event.Action{Kind: event.ActionReason}}
	result, err := exec.ExecuteStep(context.Background(), step, newTestContext(t))
	require.NoError(t, err)
	assert.Equal(t, event.ExecutionSuccess, result.Status)
	require.Len(t, result.Parts, 1)
	assert.Equal(t, `"hi"`, result.Parts[0].(event.TextPart).Text)
}

func TestExecuteStepReasonEmptyStreamErrors(t *testing.T) {
	client := &streamClient{}
	exec := NewDefaultExecutor(client, nil, nil, Config{}, nil, nil)
	step := event.PlanStep{ID: "step-1", Action: event.Action{Kind: event.ActionReason}}
	_, err := exec.ExecuteStep(context.Background(), step, newTestContext(t))
	assert.Error(t, err)
}

func TestShouldContinueFalseAfterFinalResult(t *testing.T) {
	exec := NewDefaultExecutor(nil, nil, nil, Config{}, nil, nil)
	ec := newTestContext(t)
	assert.True(t, exec.ShouldContinue(event.AgentPlan{}, 0, ec))
	ec.SetFinalResult([]event.Part{event.TextPart{Text: "done"}})
	assert.False(t, exec.ShouldContinue(event.AgentPlan{}, 0, ec))
}
