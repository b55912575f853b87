package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
	"github.com/agentmesh/runtime/orchestrator"
	"github.com/agentmesh/runtime/store"
	"github.com/agentmesh/runtime/store/inmem"
	"github.com/agentmesh/runtime/task"
)

const (
	methodMessageSend   = "message/send"
	methodMessageStream = "message/stream"
	methodTasksGet      = "tasks/get"
	methodTasksCancel   = "tasks/cancel"
)

// Handler implements the A2A JSON-RPC/SSE surface. One Handler serves every
// agent in the catalog; the agent a request targets is named in the URL
// (`/a2a/{agent}`), mirroring the teacher's per-suite ServerConfig but
// resolved dynamically against the orchestrator's catalog instead of being
// generated per agent.
type Handler struct {
	orchestrator *orchestrator.Orchestrator
	tasks        store.TaskStore
	threads      store.ThreadStore
	scratchpads  store.ScratchpadStore
	toolAuth     store.ToolAuthStore
	sessions     store.SessionStore
	browser      BrowserService
}

// browserSessionKey is the SessionStore key a thread's provisioned browser
// session ID is persisted under, so a second request on the same thread
// reuses the browser instead of provisioning a new one.
const browserSessionKey = "browser_session"

// NewHandler constructs a Handler. browser may be nil, in which case
// NoopBrowserService is used. sessions may be nil, in which case an
// in-memory SessionStore is used (browser-session reuse then only lasts for
// the process lifetime).
func NewHandler(o *orchestrator.Orchestrator, tasks store.TaskStore, threads store.ThreadStore, scratchpads store.ScratchpadStore, toolAuth store.ToolAuthStore, sessions store.SessionStore, browser BrowserService) *Handler {
	if browser == nil {
		browser = NoopBrowserService{}
	}
	if sessions == nil {
		sessions = inmem.NewSessionStore()
	}
	return &Handler{orchestrator: o, tasks: tasks, threads: threads, scratchpads: scratchpads, toolAuth: toolAuth, sessions: sessions, browser: browser}
}

// Mount attaches the handler's routes to r under /a2a/{agent}.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/a2a/{agent}", h.serveRPC)
}

func (h *Handler) serveRPC(w http.ResponseWriter, r *http.Request) {
	agentName := chi.URLParam(r, "agent")

	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		writeJSON(w, errResponse(nil, CodeParseError, "reading request body: "+err.Error()))
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, errResponse(nil, CodeParseError, "invalid JSON-RPC envelope: "+err.Error()))
		return
	}

	switch req.Method {
	case methodMessageSend:
		h.handleMessageSend(w, r, agentName, req)
	case methodMessageStream:
		h.handleMessageStream(w, r, agentName, req)
	case methodTasksGet:
		h.handleTasksGet(w, r, req)
	case methodTasksCancel:
		h.handleTasksCancel(w, r, req)
	default:
		writeJSON(w, errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method)))
	}
}

func (h *Handler) handleMessageSend(w http.ResponseWriter, r *http.Request, agentName string, req rpcRequest) {
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

	result, err := h.orchestrator.Execute(run.ctx, agentName, run.message, run.ec, run.overrides)
	finalStatus := task.StatusCompleted
	statusMessage := ""
	if err != nil {
		finalStatus = task.StatusFailed
		statusMessage = err.Error()
	} else if !result.Success {
		finalStatus = task.StatusFailed
	}
	_ = h.tasks.UpdateTaskStatus(r.Context(), run.taskID, finalStatus, statusMessage)

	writeJSON(w, okResponse(req.ID, h.wireTask(run.taskID, run.threadID, finalStatus, result.FinalParts)))
}

func (h *Handler) handleTasksGet(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	var params TaskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeJSON(w, errResponse(req.ID, CodeInvalidParams, "invalid params: "+err.Error()))
		return
	}
	t, err := h.tasks.GetTask(r.Context(), params.ID)
	if err != nil {
		writeJSON(w, errResponse(req.ID, CodeInternal, err.Error()))
		return
	}
	writeJSON(w, okResponse(req.ID, WireTask{
		ID:       t.ID,
		ThreadID: t.ThreadID,
		Status:   WireTaskStatus{State: string(t.Status), Final: t.Status.Terminal()},
	}))
}

func (h *Handler) handleTasksCancel(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	var params TaskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeJSON(w, errResponse(req.ID, CodeInvalidParams, "invalid params: "+err.Error()))
		return
	}
	t, err := h.tasks.CancelTask(r.Context(), params.ID)
	if err != nil {
		writeJSON(w, errResponse(req.ID, CodeInternal, err.Error()))
		return
	}
	writeJSON(w, okResponse(req.ID, WireTask{
		ID:       t.ID,
		ThreadID: t.ThreadID,
		Status:   WireTaskStatus{State: string(t.Status), Final: true},
	}))
}

func (h *Handler) wireTask(taskID, threadID string, status task.Status, finalParts []event.Part) WireTask {
	wt := WireTask{ID: taskID, ThreadID: threadID, Status: WireTaskStatus{State: string(status), Final: status.Terminal()}}
	if len(finalParts) > 0 {
		msg := messageToWire(event.Message{Role: event.RoleAssistant, Parts: finalParts})
		wt.Status.Message = &msg
	}
	return wt
}

// preparedRun bundles everything a run needs after pre-execution validation
// and per-request context assembly succeed.
type preparedRun struct {
	ctx       context.Context
	cancel    context.CancelFunc
	message   event.Message
	ec        *execctx.Context
	overrides orchestrator.Overrides
	taskID    string
	threadID  string
	sink      *event.ChanSink
}

type rpcFault struct {
	Code    int
	Message string
}

// prepareRun implements spec.md §4.7's pre-execution validation and
// per-request context assembly: secret checks, message validation, thread
// creation, task creation, browser provisioning, and Context construction.
func (h *Handler) prepareRun(ctx context.Context, agentName string, params MessageSendParams) (*preparedRun, *rpcFault) {
	def, err := h.orchestrator.GetAgent(ctx, agentName)
	if err != nil {
		return nil, &rpcFault{CodeInternal, fmt.Sprintf("agent %q not found: %v", agentName, err)}
	}
	if err := checkRequiredSecrets(ctx, h.toolAuth, def); err != nil {
		return nil, &rpcFault{CodeInternal, err.Error()}
	}

	msg, err := wireToMessage(params.Message)
	if err != nil {
		return nil, &rpcFault{CodeInvalidParams, err.Error()}
	}
	if err := validateMessage(msg, params.TaskID); err != nil {
		return nil, &rpcFault{CodeInvalidParams, err.Error()}
	}

	thread, err := h.orchestrator.EnsureThreadExists(ctx, agentName, params.ThreadID, "", withIdentity(ctx, attributesFrom(params.Metadata)))
	if err != nil {
		return nil, &rpcFault{CodeInternal, "creating thread: " + err.Error()}
	}

	taskID := params.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
		if _, err := h.tasks.CreateTask(ctx, task.Task{ID: taskID, ThreadID: thread.ID, Status: task.StatusPending}); err != nil {
			return nil, &rpcFault{CodeInternal, "creating task: " + err.Error()}
		}
	}

	sink := event.NewChanSink(100)
	ec := execctx.New(uuid.NewString(), taskID, thread.ID, sink, h.tasks, h.scratchpads, h.threads)

	if def.UsesBrowser && params.BrowserSessionID == "" {
		if cached, ok, err := h.sessions.Get(ctx, thread.ID, browserSessionKey); err == nil && ok {
			params.BrowserSessionID = cached
		} else {
			sessionID, err := h.browser.ProvisionSession(ctx)
			if err == nil {
				params.BrowserSessionID = sessionID
				ec.Emit(event.Event{Type: event.TypeBrowserSessionStarted, Data: event.BrowserSessionStartedData{SessionID: sessionID}})
				// Best-effort: a failed cache write just means the next
				// request on this thread provisions a fresh session.
				_ = h.sessions.Set(ctx, thread.ID, browserSessionKey, sessionID, 0)
			}
		}
	}

	if params.Metadata != nil {
		ec.SetPromptState(execctx.PromptState{
			Sections: params.Metadata.DynamicSections,
			Values:   params.Metadata.DynamicValues,
		})
	}

	runCtx, cancel := context.WithCancel(ctx)
	overrides := orchestrator.Overrides{}
	if params.Metadata != nil {
		overrides.DynamicSections = params.Metadata.DynamicSections
		overrides.DynamicValues = params.Metadata.DynamicValues
	}

	return &preparedRun{
		ctx: runCtx, cancel: cancel, message: msg, ec: ec, overrides: overrides,
		taskID: taskID, threadID: thread.ID, sink: sink,
	}, nil
}

func attributesFrom(md *RequestMetadata) map[string]any {
	if md == nil {
		return nil
	}
	return md.AdditionalAttributes
}

// withIdentity stamps the request-scoped user_id/workspace_id (installed by
// IdentityMiddleware) onto the thread's attribute bag, so stores that key
// ownership off attributes (e.g. listing a user's threads) see them without
// the core needing its own identity store.
func withIdentity(ctx context.Context, attrs map[string]any) map[string]any {
	userID, workspaceID := userIDFromContext(ctx), workspaceIDFromContext(ctx)
	if userID == "" && workspaceID == "" {
		return attrs
	}
	out := make(map[string]any, len(attrs)+2)
	for k, v := range attrs {
		out[k] = v
	}
	if userID != "" {
		out["user_id"] = userID
	}
	if workspaceID != "" {
		out["workspace_id"] = workspaceID
	}
	return out
}

func writeJSON(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
