// Package temporal adapts go.temporal.io/sdk to the engine.Engine interface.
//
// This is a worked example, not a production-ready adapter: it is adapted
// only far enough to type-check against engine.Engine and exercise the real
// Temporal SDK types (client.Client, worker.Worker, workflow.Context), for an
// operator who wants durable execution instead of the orchestrator's default
// in-process loop. It intentionally skips the instrumentation, child-workflow,
// and typed-activity-option plumbing a production adapter would carry.
package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/agentmesh/runtime/engine"
)

// Engine runs workflows and activities on a Temporal cluster reachable
// through cli. One worker.Worker is created lazily per task queue the first
// time a workflow or activity targets it.
type Engine struct {
	cli client.Client

	mu      sync.Mutex
	workers map[string]worker.Worker
}

// New wraps an already-connected Temporal client.
func New(cli client.Client) *Engine {
	return &Engine{cli: cli, workers: make(map[string]worker.Worker)}
}

var _ engine.Engine = (*Engine)(nil)

// RegisterWorkflow implements engine.Engine.
func (e *Engine) RegisterWorkflow(_ context.Context, def engine.WorkflowDefinition) error {
	if def.Name == "" || def.TaskQueue == "" {
		return fmt.Errorf("temporal: workflow definition requires Name and TaskQueue")
	}
	w := e.workerFor(def.TaskQueue)
	w.RegisterWorkflowWithOptions(wrapWorkflow(def.Handler), workflow.RegisterOptions{Name: def.Name})
	return nil
}

// RegisterActivity implements engine.Engine. The activity is registered on
// the worker for def.Options.Queue; an activity with an empty queue is
// rejected with an error.
func (e *Engine) RegisterActivity(_ context.Context, def engine.ActivityDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("temporal: activity definition requires Name")
	}
	queue := def.Options.Queue
	if queue == "" {
		return fmt.Errorf("temporal: activity %q requires an explicit queue (no default worker to register against yet)", def.Name)
	}
	w := e.workerFor(queue)
	w.RegisterActivityWithOptions(wrapActivity(def.Handler), activity.RegisterOptions{Name: def.Name})
	return nil
}

// StartWorkflow implements engine.Engine.
func (e *Engine) StartWorkflow(ctx context.Context, req engine.WorkflowStartRequest) (engine.WorkflowHandle, error) {
	run, err := e.cli.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        req.ID,
		TaskQueue: req.TaskQueue,
	}, req.Workflow, req.Input)
	if err != nil {
		return nil, fmt.Errorf("temporal: start workflow %q: %w", req.Workflow, err)
	}
	return &workflowHandle{cli: e.cli, run: run}, nil
}

// Run starts every worker this engine has created and blocks until ctx is
// cancelled or a worker exits with an error.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	workers := make([]worker.Worker, 0, len(e.workers))
	for _, w := range e.workers {
		workers = append(workers, w)
	}
	e.mu.Unlock()

	errCh := make(chan error, len(workers))
	for _, w := range workers {
		go func(w worker.Worker) { errCh <- w.Run(worker.InterruptCh()) }(w)
	}
	select {
	case <-ctx.Done():
		for _, w := range workers {
			w.Stop()
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (e *Engine) workerFor(queue string) worker.Worker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if w, ok := e.workers[queue]; ok {
		return w
	}
	w := worker.New(e.cli, queue, worker.Options{})
	e.workers[queue] = w
	return w
}

// wrapWorkflow adapts an engine.WorkflowFunc into the func(workflow.Context,
// input any) (any, error) shape the Temporal worker registers directly.
func wrapWorkflow(fn engine.WorkflowFunc) func(workflow.Context, any) (any, error) {
	return func(wctx workflow.Context, input any) (any, error) {
		return fn(&workflowContext{ctx: wctx}, input)
	}
}

// wrapActivity adapts an engine.ActivityFunc the same way; activities run
// with an ordinary context.Context, so no bridging is needed here.
func wrapActivity(fn engine.ActivityFunc) func(context.Context, any) (any, error) {
	return func(ctx context.Context, input any) (any, error) {
		return fn(ctx, input)
	}
}

// workflowContext adapts workflow.Context to engine.WorkflowContext. Context
// deliberately returns a plain background context rather than a replay-safe
// bridge: callers needing workflow-scoped operations (activities, signals,
// time) must go through the methods below, not assume Context() carries
// Temporal semantics.
type workflowContext struct {
	ctx workflow.Context
}

func (w *workflowContext) Context() context.Context { return context.Background() }

func (w *workflowContext) WorkflowID() string { return workflow.GetInfo(w.ctx).WorkflowExecution.ID }
func (w *workflowContext) RunID() string      { return workflow.GetInfo(w.ctx).WorkflowExecution.RunID }

func (w *workflowContext) ExecuteActivity(_ context.Context, req engine.ActivityRequest, result any) error {
	return workflow.ExecuteActivity(w.ctx, req.Name, req.Input).Get(w.ctx, result)
}

func (w *workflowContext) ExecuteActivityAsync(_ context.Context, req engine.ActivityRequest) (engine.Future, error) {
	return &future{future: workflow.ExecuteActivity(w.ctx, req.Name, req.Input), ctx: w.ctx}, nil
}

func (w *workflowContext) SignalChannel(name string) engine.SignalChannel {
	return &signalChannel{ctx: w.ctx, ch: workflow.GetSignalChannel(w.ctx, name)}
}

func (w *workflowContext) Now() time.Time { return workflow.Now(w.ctx) }

type future struct {
	future workflow.Future
	ctx    workflow.Context
}

func (f *future) Get(_ context.Context, result any) error { return f.future.Get(f.ctx, result) }
func (f *future) IsReady() bool                           { return f.future.IsReady() }

type signalChannel struct {
	ctx workflow.Context
	ch  workflow.ReceiveChannel
}

func (s *signalChannel) Receive(_ context.Context, dest any) error {
	s.ch.Receive(s.ctx, dest)
	return nil
}

func (s *signalChannel) ReceiveAsync(dest any) bool {
	return s.ch.ReceiveAsync(dest)
}

// workflowHandle adapts client.WorkflowRun to engine.WorkflowHandle.
type workflowHandle struct {
	cli client.Client
	run client.WorkflowRun
}

func (h *workflowHandle) Wait(ctx context.Context, result any) error {
	return h.run.Get(ctx, result)
}

func (h *workflowHandle) Signal(ctx context.Context, name string, payload any) error {
	return h.cli.SignalWorkflow(ctx, h.run.GetID(), h.run.GetRunID(), name, payload)
}

func (h *workflowHandle) Cancel(ctx context.Context) error {
	return h.cli.CancelWorkflow(ctx, h.run.GetID(), h.run.GetRunID())
}
