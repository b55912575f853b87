package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/task"
)

// handleMessageStream implements message/stream: an SSE channel that
// forwards the run's event.Event stream as MessageKind frames. Each frame is
// an "event:" line naming the kind and a "data:" line holding the bare
// MessageKind JSON; frames carry no JSON-RPC response envelope. It terminates on the outer run's RunFinished/RunError,
// or on client disconnect (which cancels the run and marks the task
// Cancelled).
func (h *Handler) handleMessageStream(w http.ResponseWriter, r *http.Request, agentName string, req rpcRequest) {
	var params MessageSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeJSON(w, errResponse(req.ID, CodeInvalidParams, "invalid params: "+err.Error()))
		return
	}

	run, rpcErr := h.prepareRun(r.Context(), agentName, params)
	if rpcErr != nil {
		writeJSON(w, errResponse(req.ID, rpcErr.Code, rpcErr.Message))
		return
	}
	defer run.cancel()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, errResponse(req.ID, CodeInternal, "streaming unsupported by response writer"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	done := make(chan error, 1)
	go func() {
		_, err := h.orchestrator.Execute(run.ctx, agentName, run.message, run.ec, run.overrides)
		done <- err
	}()

	h.forwardStream(w, flusher, run, done)
}

// forwardStream drains run.sink until the outer run terminates, the client
// disconnects, or the agent's Execute goroutine returns. A sub-agent's
// RunFinished (TaskID not matching run.taskID) is forwarded as a
// regular event but never ends the stream — only the outer task's own
// terminal event does.
func (h *Handler) forwardStream(w http.ResponseWriter, flusher http.Flusher, run *preparedRun, done <-chan error) {
	sink := run.sink

	for {
		select {
		case e := <-sink.C():
			h.writeSSEEvent(w, flusher, e)
			if e.TaskID == run.taskID && (e.Type == event.TypeRunFinished || e.Type == event.TypeRunError) {
				_ = h.tasks.UpdateTaskStatus(context.Background(), run.taskID, terminalStatusFor(e), "")
				return
			}
		case err := <-done:
			// Forward what the run emitted before Execute returned, so its
			// own terminal event is not lost behind the done signal.
			for drained := false; !drained; {
				select {
				case e := <-sink.C():
					h.writeSSEEvent(w, flusher, e)
					if e.TaskID == run.taskID && (e.Type == event.TypeRunFinished || e.Type == event.TypeRunError) {
						_ = h.tasks.UpdateTaskStatus(context.Background(), run.taskID, terminalStatusFor(e), "")
						return
					}
				default:
					drained = true
				}
			}
			if err != nil {
				h.writeSSEEvent(w, flusher, event.Event{
					Type: event.TypeRunError, TaskID: run.taskID, ThreadID: run.threadID,
					Data: event.RunErrorData{Code: "execution_error", Message: err.Error()},
				})
				_ = h.tasks.UpdateTaskStatus(context.Background(), run.taskID, task.StatusFailed, err.Error())
			}
			return
		case <-run.ctx.Done():
			// The request context was cancelled out from under the run —
			// either the client disconnected or an ancestor context was
			// cancelled. Either way there's no one left to stream to.
			_ = h.tasks.UpdateTaskStatus(context.Background(), run.taskID, task.StatusCancelled, "client disconnected")
			return
		}
	}
}

func terminalStatusFor(e event.Event) task.Status {
	if e.Type == event.TypeRunError {
		return task.StatusFailed
	}
	if data, ok := e.Data.(event.RunFinishedData); ok && !data.Success {
		return task.StatusFailed
	}
	return task.StatusCompleted
}

func (h *Handler) writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, e event.Event) {
	kind := toMessageKind(e)
	payload, err := json.Marshal(kind)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", kind.Kind, payload)
	flusher.Flush()
}

// toMessageKind maps an internal event.Event onto the SSE MessageKind
// discriminant spec.md §6 defines: "message", "task_status_update", or
// "artifact".
func toMessageKind(e event.Event) MessageKind {
	switch e.Type {
	case event.TypeRunFinished, event.TypeRunError, event.TypeStepStarted, event.TypeStepCompleted,
		event.TypePlanStarted, event.TypePlanFinished, event.TypeRunStarted:
		return MessageKind{Kind: "task_status_update", TaskStatusUpdate: statusUpdateFor(e)}
	case event.TypeTextMessageStart, event.TypeTextMessageContent, event.TypeTextMessageEnd,
		event.TypeToolCalls, event.TypeToolResults:
		msg := messageFromEvent(e)
		return MessageKind{Kind: "message", Message: &msg}
	default:
		msg := messageFromEvent(e)
		return MessageKind{Kind: "message", Message: &msg}
	}
}

func statusUpdateFor(e event.Event) *WireTaskStatus {
	state := string(e.Type)
	final := false
	switch e.Type {
	case event.TypeRunFinished:
		state = string(task.StatusCompleted)
		if data, ok := e.Data.(event.RunFinishedData); ok && !data.Success {
			state = string(task.StatusFailed)
		}
		final = true
	case event.TypeRunError:
		state = string(task.StatusFailed)
		final = true
	case event.TypeRunStarted:
		state = string(task.StatusRunning)
	}
	return &WireTaskStatus{State: state, Final: final}
}

func messageFromEvent(e event.Event) WireMessage {
	var parts []WirePart
	switch data := e.Data.(type) {
	case event.TextMessageContentData:
		parts = append(parts, WirePart{Type: partTypeText, Text: data.Delta})
	case event.ToolCallsData:
		for _, call := range data.Calls {
			parts = append(parts, WirePart{Type: partTypeToolCall, ToolCallID: call.ToolCallID, ToolName: call.ToolName, Input: call.Input})
		}
	case event.ToolResultsData:
		for _, resp := range data.Responses {
			parts = append(parts, WirePart{Type: partTypeToolResult, ToolCallID: resp.ToolCallID, ToolName: resp.ToolName, IsError: resp.IsError, Parts: partsToWire(resp.Parts)})
		}
	default:
		payload, _ := json.Marshal(data)
		parts = append(parts, WirePart{Type: partTypeData, Data: payload})
	}
	return WireMessage{Role: string(event.RoleAssistant), Parts: parts}
}
