package a2a

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
	"github.com/agentmesh/runtime/loop"
	"github.com/agentmesh/runtime/orchestrator"
	"github.com/agentmesh/runtime/store"
	"github.com/agentmesh/runtime/store/inmem"
)

type constPlanner struct{ text string }

func (p *constPlanner) Plan(ctx context.Context, message event.Message, ec *execctx.Context) (event.AgentPlan, error) {
	return event.AgentPlan{InitialPlan: true, Steps: []event.PlanStep{{ID: "s1", Action: event.Action{Kind: event.ActionToolCalls}}}}, nil
}

func (p *constPlanner) Replan(ctx context.Context, message event.Message, ec *execctx.Context, current event.AgentPlan) (event.AgentPlan, error) {
	return p.Plan(ctx, message, ec)
}

func (p *constPlanner) NeedsReplanning(history []event.ExecutionHistoryEntry) bool { return false }

type constExecutor struct{ text string }

func (e *constExecutor) ExecuteStep(ctx context.Context, step event.PlanStep, ec *execctx.Context) (event.ExecutionResult, error) {
	ec.SetFinalResult([]event.Part{event.TextPart{Text: e.text}})
	return event.ExecutionResult{StepID: step.ID, Status: event.ExecutionSuccess}, nil
}

func (e *constExecutor) ShouldContinue(plan event.AgentPlan, index int, ec *execctx.Context) bool {
	return false
}

func newTestHandler(t *testing.T) (*Handler, store.TaskStore) {
	t.Helper()
	agents := inmem.NewAgentStore()
	threads := inmem.NewThreadTaskStore()
	scratchpads := inmem.NewScratchpadStore()
	toolAuth := inmem.NewToolAuthStore([]byte("test-signing-key"))

	factory := orchestrator.LoopFactory(func(ctx context.Context, def store.AgentDefinition) (*loop.Loop, error) {
		return loop.New(&constPlanner{text: "hi"}, &constExecutor{text: "hi"}, nil, nil, loop.Config{}), nil
	})
	o := orchestrator.New(agents, threads, factory)

	require.NoError(t, o.RegisterAgentDefinition(context.Background(), store.AgentDefinition{
		Name: "greeter", Kind: store.AgentStandard, MaxIterations: 5,
	}))
	require.NoError(t, o.RegisterAgentDefinition(context.Background(), store.AgentDefinition{
		Name: "secure", Kind: store.AgentStandard, RequiredSecrets: []string{"GITHUB_TOKEN"},
	}))

	h := NewHandler(o, threads, threads, scratchpads, toolAuth, nil, nil)
	return h, threads
}

func newChiServer(h *Handler) *httptest.Server {
	r := chi.NewRouter()
	h.Mount(r)
	return httptest.NewServer(r)
}

func rpcCall(t *testing.T, server *httptest.Server, agent, method string, params any) rpcResponse {
	t.Helper()
	rawParams, err := json.Marshal(params)
	require.NoError(t, err)
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: method, Params: rawParams})
	require.NoError(t, err)

	resp, err := http.Post(server.URL+"/a2a/"+agent, "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	defer resp.Body.Close()

	var rpcResp rpcResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpcResp))
	return rpcResp
}

func TestMessageSendHappyPath(t *testing.T) {
	h, _ := newTestHandler(t)
	server := newChiServer(h)
	defer server.Close()

	resp := rpcCall(t, server, "greeter", methodMessageSend, MessageSendParams{
		Message: WireMessage{Role: "user", Parts: []WirePart{{Type: "text", Text: "hello"}}},
	})

	require.Nil(t, resp.Error)
	result, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var wt WireTask
	require.NoError(t, json.Unmarshal(result, &wt))
	assert.Equal(t, "completed", wt.Status.State)
	assert.NotEmpty(t, wt.ID)
	assert.NotEmpty(t, wt.ThreadID)
	require.NotNil(t, wt.Status.Message)
	assert.Equal(t, "hi", wt.Status.Message.Parts[0].Text)
}

func TestMessageSendMissingSecretReturnsInternalError(t *testing.T) {
	h, _ := newTestHandler(t)
	server := newChiServer(h)
	defer server.Close()

	resp := rpcCall(t, server, "secure", methodMessageSend, MessageSendParams{
		Message: WireMessage{Role: "user", Parts: []WirePart{{Type: "text", Text: "hello"}}},
	})

	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInternal, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "GITHUB_TOKEN")
}

func TestMessageSendEmptyPartsReturnsInvalidParams(t *testing.T) {
	h, _ := newTestHandler(t)
	server := newChiServer(h)
	defer server.Close()

	resp := rpcCall(t, server, "greeter", methodMessageSend, MessageSendParams{
		Message: WireMessage{Role: "user"},
	})

	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestMessageSendToolResultWithoutTaskIDReturnsInvalidParams(t *testing.T) {
	h, _ := newTestHandler(t)
	server := newChiServer(h)
	defer server.Close()

	resp := rpcCall(t, server, "greeter", methodMessageSend, MessageSendParams{
		Message: WireMessage{Role: "tool", Parts: []WirePart{{Type: "tool_result", ToolCallID: "tc1"}}},
	})

	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestTasksGetAndCancelRoundTrip(t *testing.T) {
	h, _ := newTestHandler(t)
	server := newChiServer(h)
	defer server.Close()

	send := rpcCall(t, server, "greeter", methodMessageSend, MessageSendParams{
		Message: WireMessage{Role: "user", Parts: []WirePart{{Type: "text", Text: "hello"}}},
	})
	require.Nil(t, send.Error)
	var wt WireTask
	raw, _ := json.Marshal(send.Result)
	require.NoError(t, json.Unmarshal(raw, &wt))

	getResp := rpcCall(t, server, "greeter", methodTasksGet, TaskIDParams{ID: wt.ID})
	require.Nil(t, getResp.Error)

	cancelResp := rpcCall(t, server, "greeter", methodTasksCancel, TaskIDParams{ID: wt.ID})
	require.Nil(t, cancelResp.Error)
	var cancelled WireTask
	raw, _ = json.Marshal(cancelResp.Result)
	require.NoError(t, json.Unmarshal(raw, &cancelled))
	assert.True(t, cancelled.Status.Final)
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	h, _ := newTestHandler(t)
	server := newChiServer(h)
	defer server.Close()

	resp := rpcCall(t, server, "greeter", "bogus/method", struct{}{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}
