// Package engine defines a pluggable workflow engine abstraction, letting
// agent execution run on a durable backend (Temporal) or an in-process one
// (the orchestrator's own goroutine-based loop) without the rest of the
// runtime depending on either directly.
//
// orchestrator.LoopFactory is this module's actual execution seam: it runs
// entirely in-process, matching the goroutine/channel concurrency model the
// runtime is built around. Engine exists alongside it as the extension point
// a durable-execution backend would implement against, for deployments that
// need workflow state to survive a process restart.
package engine

import (
	"context"
	"time"
)

// Engine abstracts workflow registration and execution so adapters (Temporal,
// an in-process one, or a custom backend) can be swapped without changing
// the code that starts runs.
type Engine interface {
	// RegisterWorkflow registers a workflow definition. Called during
	// startup, before any workflow of this name is started.
	RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error

	// RegisterActivity registers an activity definition. Called during
	// startup, before any workflow that invokes it is started.
	RegisterActivity(ctx context.Context, def ActivityDefinition) error

	// StartWorkflow begins a new workflow execution and returns a handle to
	// it. req.ID must be unique among currently running workflows.
	StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)
}

// WorkflowDefinition binds a workflow handler to a logical name and queue.
type WorkflowDefinition struct {
	Name      string
	TaskQueue string
	Handler   WorkflowFunc
}

// WorkflowFunc is a workflow entry point. Implementations backed by a
// deterministic-replay engine (Temporal) must keep this function
// deterministic: no direct I/O, randomness, or wall-clock reads outside
// what WorkflowContext provides.
type WorkflowFunc func(ctx WorkflowContext, input any) (any, error)

// WorkflowContext exposes engine operations to a running workflow.
type WorkflowContext interface {
	// Context returns the Go context for this workflow, usable for
	// cancellation propagation and to recover the ambient logger/tracer via
	// the telemetry package.
	Context() context.Context

	WorkflowID() string
	RunID() string

	// ExecuteActivity runs an activity and blocks for its result.
	ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error

	// ExecuteActivityAsync schedules an activity without blocking.
	ExecuteActivityAsync(ctx context.Context, req ActivityRequest) (Future, error)

	// SignalChannel returns the channel signals of the given name arrive on.
	SignalChannel(name string) SignalChannel

	// Now returns the current time in a manner safe for the backing engine
	// (e.g. Temporal's replay-safe workflow.Now, rather than time.Now).
	Now() time.Time
}

// Future represents a pending activity result.
type Future interface {
	Get(ctx context.Context, result any) error
	IsReady() bool
}

// ActivityDefinition registers an activity handler.
type ActivityDefinition struct {
	Name    string
	Handler ActivityFunc
	Options ActivityOptions
}

// ActivityFunc handles one activity invocation, free to perform I/O.
type ActivityFunc func(ctx context.Context, input any) (any, error)

// ActivityOptions configures retry/timeout behavior for an activity.
type ActivityOptions struct {
	Queue       string
	RetryPolicy RetryPolicy
	Timeout     time.Duration
}

// WorkflowStartRequest describes how to launch a workflow execution.
type WorkflowStartRequest struct {
	ID        string
	Workflow  string
	TaskQueue string
	Input     any
}

// ActivityRequest is the info needed to schedule an activity from a workflow.
type ActivityRequest struct {
	Name        string
	Input       any
	Queue       string
	RetryPolicy RetryPolicy
	Timeout     time.Duration
}

// WorkflowHandle lets a caller interact with a running workflow.
type WorkflowHandle interface {
	Wait(ctx context.Context, result any) error
	Signal(ctx context.Context, name string, payload any) error
	Cancel(ctx context.Context) error
}

// RetryPolicy is shared retry configuration for workflows and activities.
// Zero-valued fields mean the engine uses its own defaults.
type RetryPolicy struct {
	MaxAttempts        int
	InitialInterval    time.Duration
	BackoffCoefficient float64
}

// SignalChannel exposes signal delivery in an engine-agnostic way.
type SignalChannel interface {
	Receive(ctx context.Context, dest any) error
	ReceiveAsync(dest any) bool
}
