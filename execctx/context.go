// Package execctx implements the per-run executor context: the state bundle
// constructed when an A2A request enters the system and dropped when the
// run terminates. It is the seam between the agent loop and the store traits
// — the loop, tool pipeline, and planner only ever see *Context, never a
// concrete store.
package execctx

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/store"
	"github.com/agentmesh/runtime/task"
)

// PromptState is the reader-lock view `hook_prompt_state` returns: dynamic
// template sections, resolved values, and an optional template override,
// assembled from request metadata and mutated by inline hooks mid-run.
type PromptState struct {
	Sections map[string]string
	Values   map[string]string
	Override string
}

// Context is the per-run state bundle. All mutation methods are safe for
// concurrent use; fields are only ever written outside a step's suspension
// points (per the concurrency model in SPEC_FULL.md §5), so the lock is held
// briefly and never across a channel receive or network call.
type Context struct {
	RunID    string
	TaskID   string
	ThreadID string

	sink event.Sink

	tasks       store.TaskStore
	scratchpads store.ScratchpadStore
	threads     store.ThreadStore

	mu           sync.RWMutex
	plan         *event.AgentPlan
	currentStep  string
	status       task.Status
	usage        event.Usage
	finalResult  []event.Part
	dynamicTools map[string]struct{}
	promptState  PromptState
}

// New constructs a Context for one run. sink is typically an
// *event.ChanSink; tasks/scratchpads/threads are the backing stores selected
// for this deployment.
func New(runID, taskID, threadID string, sink event.Sink, tasks store.TaskStore, scratchpads store.ScratchpadStore, threads store.ThreadStore) *Context {
	return &Context{
		RunID:        runID,
		TaskID:       taskID,
		ThreadID:     threadID,
		sink:         sink,
		tasks:        tasks,
		scratchpads:  scratchpads,
		threads:      threads,
		status:       task.StatusPending,
		dynamicTools: map[string]struct{}{},
	}
}

// Emit sends e to the run's event sink and never returns an error: a closed
// sink silently drops the event. A full ChanSink blocks Emit until the
// consumer drains it.
func (c *Context) Emit(e event.Event) {
	e.RunID = c.RunID
	e.TaskID = c.TaskID
	e.ThreadID = c.ThreadID
	_ = c.sink.Send(e)
}

// SaveMessage persists msg to the task's history.
func (c *Context) SaveMessage(ctx context.Context, msg event.Message) error {
	if err := c.tasks.AddMessageToTask(ctx, c.TaskID, msg); err != nil {
		return fmt.Errorf("execctx: save message: %w", err)
	}
	return nil
}

// StorePlanStep appends a plan-step scratchpad entry under this run's
// (thread, task) namespace.
func (c *Context) StorePlanStep(ctx context.Context, step event.PlanStep) error {
	entry := event.ScratchpadEntry{Kind: event.ScratchpadPlanStep, PlanStep: &step}
	if err := c.scratchpads.AddEntry(ctx, c.ThreadID, c.TaskID, entry); err != nil {
		return fmt.Errorf("execctx: store plan step: %w", err)
	}
	return nil
}

// StoreExecutionResult appends an execution-result scratchpad entry, pairing
// it with the step it belongs to.
func (c *Context) StoreExecutionResult(ctx context.Context, step event.PlanStep, result event.ExecutionResult) error {
	entry := event.ScratchpadEntry{
		Kind:      event.ScratchpadExecution,
		Execution: &event.ExecutionHistoryEntry{Step: step, Result: result},
	}
	if err := c.scratchpads.AddEntry(ctx, c.ThreadID, c.TaskID, entry); err != nil {
		return fmt.Errorf("execctx: store execution result: %w", err)
	}
	return nil
}

// SetCurrentPlan installs plan as the active plan, or clears it when plan is
// nil — clearing forces the loop to replan before the next step.
func (c *Context) SetCurrentPlan(plan *event.AgentPlan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plan = plan
}

// GetCurrentPlan returns the active plan, or nil if none is set.
func (c *Context) GetCurrentPlan() *event.AgentPlan {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.plan
}

// SetCurrentStepID records which step is in flight, used to tag tool events.
func (c *Context) SetCurrentStepID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentStep = id
}

// GetCurrentStepID returns the in-flight step id.
func (c *Context) GetCurrentStepID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentStep
}

// SetFinalResult records the `final` built-in tool's output. The loop treats
// a non-nil final result as terminal.
func (c *Context) SetFinalResult(parts []event.Part) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalResult = parts
}

// GetFinalResult returns the final result, or nil if the run has not
// terminated via the `final` tool.
func (c *Context) GetFinalResult() []event.Part {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.finalResult
}

// UpdateStatus mirrors status into the task store and the in-memory slot.
func (c *Context) UpdateStatus(ctx context.Context, status task.Status, statusMessage string) error {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	if err := c.tasks.UpdateTaskStatus(ctx, c.TaskID, status, statusMessage); err != nil {
		return fmt.Errorf("execctx: update status: %w", err)
	}
	return nil
}

// GetStatus returns the in-memory status slot (mirrored from, but not
// re-read from, the task store).
func (c *Context) GetStatus() task.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// IncrementIteration bumps the iteration counter and returns the new value.
func (c *Context) IncrementIteration() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usage.CurrentIteration++
	return c.usage.CurrentIteration
}

// AddUsage accumulates an LLM usage sample into the run total.
func (c *Context) AddUsage(sample event.Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usage = c.usage.Add(sample)
}

// GetUsage returns the cumulative usage for this run.
func (c *Context) GetUsage() event.Usage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.usage
}

// RegisterDynamicTool marks name as available from per-request dynamic
// tools, giving it resolution priority over built-ins and MCP tools.
func (c *Context) RegisterDynamicTool(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dynamicTools[name] = struct{}{}
}

// HasDynamicTool reports whether name was registered as a dynamic tool.
func (c *Context) HasDynamicTool(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.dynamicTools[name]
	return ok
}

// SetPromptState replaces the dynamic prompt-state slot, e.g. after an
// inline hook resolves.
func (c *Context) SetPromptState(s PromptState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.promptState = s
}

// HookPromptState returns a snapshot of the dynamic template sections,
// values, and optional template override.
func (c *Context) HookPromptState() PromptState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.promptState
}

// FormatAgentScratchpad returns a concatenated, prompt-ready summary of
// recent scratchpad entries for this task. With isSubtask set the entries
// are restricted to this task's own; otherwise thread-level recent history
// is taken so sibling sub-runs are visible.
func (c *Context) FormatAgentScratchpad(ctx context.Context, limit int, isSubtask bool) (string, error) {
	var entries []event.ScratchpadEntry
	var err error
	if isSubtask {
		entries, err = c.scratchpads.GetEntries(ctx, c.ThreadID, c.TaskID, limit)
	} else {
		entries, err = c.scratchpads.GetAllEntries(ctx, c.ThreadID, limit)
	}
	if err != nil {
		return "", fmt.Errorf("execctx: format scratchpad: %w", err)
	}
	return formatScratchpad(entries), nil
}

// ThreadAttribute reads a key from the owning thread's attribute bag, used
// to resolve session-keyed values referenced by UserMessageOverrides.
func (c *Context) ThreadAttribute(ctx context.Context, key string) (any, bool, error) {
	t, err := c.threads.GetThread(ctx, c.ThreadID)
	if err != nil {
		return nil, false, fmt.Errorf("execctx: thread attribute: %w", err)
	}
	v, ok := t.Attributes[key]
	return v, ok, nil
}

func formatScratchpad(entries []event.ScratchpadEntry) string {
	var b strings.Builder
	for _, e := range entries {
		switch e.Kind {
		case event.ScratchpadPlanStep:
			if e.PlanStep != nil {
				fmt.Fprintf(&b, "step %s: %s\n", e.PlanStep.ID, e.PlanStep.Thought)
			}
		case event.ScratchpadExecution:
			if e.Execution != nil {
				fmt.Fprintf(&b, "result %s: %s\n", e.Execution.Step.ID, e.Execution.Result.Status)
			}
		case event.ScratchpadTask:
			fmt.Fprintf(&b, "note: %s\n", e.TaskNote)
		}
	}
	return b.String()
}
