package a2a

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/task"
)

// readSSEFrames reads every "data: ..." line from an SSE body until EOF or
// the deadline, decoding each as a MessageKind.
func readSSEFrames(t *testing.T, body *bufio.Scanner) []MessageKind {
	t.Helper()
	var frames []MessageKind
	for body.Scan() {
		line := body.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var kind MessageKind
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &kind))
		frames = append(frames, kind)
	}
	return frames
}

func TestMessageStreamEndsOnRunFinished(t *testing.T) {
	h, _ := newTestHandler(t)
	r := chi.NewRouter()
	h.Mount(r)
	server := httptest.NewServer(r)
	defer server.Close()

	rawParams, err := json.Marshal(MessageSendParams{
		Message: WireMessage{Role: "user", Parts: []WirePart{{Type: "text", Text: "hello"}}},
	})
	require.NoError(t, err)
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: methodMessageStream, Params: rawParams})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, server.URL+"/a2a/greeter", strings.NewReader(string(body)))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req = req.WithContext(ctx)

	client := &http.Client{}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	frames := readSSEFrames(t, scanner)

	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	assert.Equal(t, "task_status_update", last.Kind)
	require.NotNil(t, last.TaskStatusUpdate)
	assert.True(t, last.TaskStatusUpdate.Final)
	assert.Equal(t, "completed", last.TaskStatusUpdate.State)
}

// TestForwardStreamIgnoresSubTaskRunFinished exercises forwardStream
// directly: a sub-task's run_finished (a different TaskID than the outer
// run's) must be forwarded to the client like any other event, but must not
// end the stream. Only the outer task's own run_finished does that.
func TestForwardStreamIgnoresSubTaskRunFinished(t *testing.T) {
	h, tasks := newTestHandler(t)
	_, err := tasks.CreateTask(context.Background(), task.Task{ID: "outer-task", ThreadID: "thread-1", Status: task.StatusRunning})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	run := &preparedRun{
		ctx: ctx, cancel: cancel,
		taskID: "outer-task", threadID: "thread-1",
		sink: event.NewChanSink(10),
	}

	require.NoError(t, run.sink.Send(event.Event{
		Type: event.TypeRunStarted, TaskID: "outer-task", ThreadID: "thread-1",
		Data: event.RunStartedData{},
	}))
	require.NoError(t, run.sink.Send(event.Event{
		Type: event.TypeRunFinished, TaskID: "sub-task", ThreadID: "thread-1",
		Data: event.RunFinishedData{Success: true},
	}))
	require.NoError(t, run.sink.Send(event.Event{
		Type: event.TypeRunFinished, TaskID: "outer-task", ThreadID: "thread-1",
		Data: event.RunFinishedData{Success: true},
	}))

	done := make(chan error, 1)
	rec := httptest.NewRecorder()
	h.forwardStream(rec, rec, run, done)

	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	got := readSSEFrames(t, scanner)

	want := []MessageKind{
		{Kind: "task_status_update", TaskStatusUpdate: &WireTaskStatus{State: "running"}},
		{Kind: "task_status_update", TaskStatusUpdate: &WireTaskStatus{State: "completed", Final: true}},
		{Kind: "task_status_update", TaskStatusUpdate: &WireTaskStatus{State: "completed", Final: true}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("SSE frame sequence mismatch (-want +got):\n%s", diff)
	}

	status, err := tasks.GetTask(context.Background(), "outer-task")
	require.NoError(t, err)
	assert.Equal(t, "completed", string(status.Status), "only the outer task's own run_finished should update its status")
}
