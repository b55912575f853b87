// Package orchestrator implements the agent catalog and cross-agent
// dispatch described in spec.md §4.6: registering agent definitions,
// instantiating an agent's loop on demand, routing handovers between
// agents, and running the three composite agent kinds (sequential
// workflow, DAG workflow, custom callback) on top of the same per-agent
// Execute primitive Standard agents use.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
	"github.com/agentmesh/runtime/loop"
	"github.com/agentmesh/runtime/store"
	"github.com/agentmesh/runtime/task"
)

// Result is the outcome of running one agent to completion.
type Result struct {
	FinalParts []event.Part
	Success    bool
	Usage      event.Usage
}

// Overrides carries per-request customization that doesn't belong on the
// catalog's stored AgentDefinition: per-request dynamic prompt sections and
// template values, threaded through from the A2A handler.
type Overrides struct {
	DynamicSections map[string]string
	DynamicValues   map[string]string
}

// LoopFactory builds the fully-wired Loop for one agent definition —
// binding its model, tool list, and strategy. Owned by the deployment
// (cmd/agentd), not by this package, since a Loop's dependencies (LLM
// client, tool pipeline, sandbox) are deployment configuration the
// orchestrator itself has no opinion about.
type LoopFactory func(ctx context.Context, def store.AgentDefinition) (*loop.Loop, error)

// CustomHandler implements the Custom agent kind: a caller-supplied
// callback invoked in place of a Loop.
type CustomHandler func(ctx context.Context, message event.Message, ec *execctx.Context, overrides Overrides) (Result, error)

// Orchestrator owns the agent catalog and dispatches execution requests,
// including sub-agent routing, as independent goroutines via a coordinator
// channel (spec.md §4.6).
type Orchestrator struct {
	agents      store.AgentStore
	threads     store.ThreadStore
	loopFactory LoopFactory
	custom      map[string]CustomHandler
	hooks       *inlineHookRegistry
	coordinator chan coordinatorMsg
}

// New constructs an Orchestrator. Call Start to begin draining the
// coordinator channel before issuing any ExecuteStreamAsync,
// ExecuteToolViaAgent or HandoverAgent requests.
func New(agents store.AgentStore, threads store.ThreadStore, loopFactory LoopFactory) *Orchestrator {
	return &Orchestrator{
		agents:      agents,
		threads:     threads,
		loopFactory: loopFactory,
		custom:      make(map[string]CustomHandler),
		hooks:       newInlineHookRegistry(),
		coordinator: make(chan coordinatorMsg, 64),
	}
}

// RegisterCustomHandler installs the callback an AgentCustom-kind
// definition named agentName dispatches to.
func (o *Orchestrator) RegisterCustomHandler(agentName string, handler CustomHandler) {
	o.custom[agentName] = handler
}

// RegisterAgentDefinition adds def to the catalog.
func (o *Orchestrator) RegisterAgentDefinition(ctx context.Context, def store.AgentDefinition) error {
	return o.agents.Register(ctx, def)
}

// GetAgent looks up a catalog entry by name.
func (o *Orchestrator) GetAgent(ctx context.Context, name string) (store.AgentDefinition, error) {
	return o.agents.Get(ctx, name)
}

// ListAgents returns every registered agent definition.
func (o *Orchestrator) ListAgents(ctx context.Context) ([]store.AgentDefinition, error) {
	return o.agents.List(ctx)
}

// EnsureThreadExists idempotently creates a thread for agent, or returns the
// existing one if threadID is already populated and resolvable.
func (o *Orchestrator) EnsureThreadExists(ctx context.Context, agentName, threadID, title string, attributes map[string]any) (task.Thread, error) {
	if threadID != "" {
		if existing, err := o.threads.GetThread(ctx, threadID); err == nil {
			return existing, nil
		}
	} else {
		threadID = uuid.NewString()
	}
	return o.threads.CreateThread(ctx, task.Thread{
		ID:         threadID,
		AgentID:    agentName,
		Title:      title,
		Attributes: attributes,
		UpdatedAt:  time.Now().UTC(),
	})
}

// Execute runs agentName to completion against message, dispatching by the
// catalog entry's Kind.
func (o *Orchestrator) Execute(ctx context.Context, agentName string, message event.Message, ec *execctx.Context, overrides Overrides) (Result, error) {
	def, err := o.agents.Get(ctx, agentName)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: get agent %q: %w", agentName, err)
	}

	switch def.Kind {
	case store.AgentStandard:
		return o.executeStandard(ctx, def, message, ec)
	case store.AgentSequentialWorkflow:
		return o.executeSequential(ctx, def, message, ec, overrides)
	case store.AgentDagWorkflow:
		return o.executeDag(ctx, def, message, ec, overrides)
	case store.AgentCustom:
		handler, ok := o.custom[def.Name]
		if !ok {
			return Result{}, fmt.Errorf("orchestrator: no custom handler registered for %q", def.Name)
		}
		return handler(ctx, message, ec, overrides)
	default:
		return Result{}, fmt.Errorf("orchestrator: unknown agent kind %q", def.Kind)
	}
}

// ExecuteStream starts Execute on its own goroutine and returns a channel
// that receives exactly one error (nil on success) once the run terminates.
// Progress is observed on ec's sink, which the caller must already be
// draining — this mirrors the A2A handler's stream-forwarding loop reading
// the same channel.
func (o *Orchestrator) ExecuteStream(ctx context.Context, agentName string, message event.Message, ec *execctx.Context, overrides Overrides) <-chan error {
	done := make(chan error, 1)
	go func() {
		_, err := o.Execute(ctx, agentName, message, ec, overrides)
		done <- err
	}()
	return done
}

func (o *Orchestrator) executeStandard(ctx context.Context, def store.AgentDefinition, message event.Message, ec *execctx.Context) (Result, error) {
	l, err := o.loopFactory(ctx, def)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: build loop for %q: %w", def.Name, err)
	}
	if err := l.Run(ctx, message, ec); err != nil {
		return Result{}, err
	}
	return Result{FinalParts: ec.GetFinalResult(), Success: ec.GetFinalResult() != nil, Usage: ec.GetUsage()}, nil
}
