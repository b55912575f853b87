package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
)

// HookMutation is the client-supplied payload that resolves a pending
// inline hook. An empty mutation is a no-op; RequestInlineHook also returns
// one when its context is cancelled.
type HookMutation map[string]string

// inlineHookRegistry tracks InlineHookRequested events awaiting a client's
// CompleteInlineHook call, keyed by hook id. One registry is shared by every
// run the Orchestrator drives, since a hook raised by a sub-agent's loop
// must be resolvable by whichever A2A connection is attached to the outer
// task.
type inlineHookRegistry struct {
	mu      sync.Mutex
	pending map[string]chan HookMutation
}

func newInlineHookRegistry() *inlineHookRegistry {
	return &inlineHookRegistry{pending: make(map[string]chan HookMutation)}
}

func (r *inlineHookRegistry) register(hookID string) chan HookMutation {
	ch := make(chan HookMutation, 1)
	r.mu.Lock()
	r.pending[hookID] = ch
	r.mu.Unlock()
	return ch
}

func (r *inlineHookRegistry) forget(hookID string) {
	r.mu.Lock()
	delete(r.pending, hookID)
	r.mu.Unlock()
}

// CompleteInlineHook satisfies a pending InlineHookRequested event, per
// spec.md §6's complete_inline_hook(hook_id, mutation) control-plane call.
// It returns an error, not a panic, when the hook id is unknown or was
// already completed.
func (o *Orchestrator) CompleteInlineHook(hookID string, mutation HookMutation) error {
	o.hooks.mu.Lock()
	ch, ok := o.hooks.pending[hookID]
	if ok {
		delete(o.hooks.pending, hookID)
	}
	o.hooks.mu.Unlock()
	if !ok {
		return fmt.Errorf("orchestrator: no pending inline hook %q", hookID)
	}
	ch <- mutation
	return nil
}

// RequestInlineHook emits an InlineHookRequested event and blocks until
// CompleteInlineHook resolves it or ctx is cancelled, in which case it
// returns a no-op mutation rather than propagating ctx.Err(). Nothing
// completes a pending hook automatically: without a CompleteInlineHook call
// it waits until ctx is cancelled.
func (o *Orchestrator) RequestInlineHook(ctx context.Context, ec *execctx.Context, hookID, prompt string) HookMutation {
	ch := o.hooks.register(hookID)
	defer o.hooks.forget(hookID)

	ec.Emit(event.Event{Type: event.TypeInlineHookRequested, Data: event.InlineHookRequestedData{HookID: hookID, Prompt: prompt}})

	select {
	case mutation := <-ch:
		return mutation
	case <-ctx.Done():
		return HookMutation{}
	}
}
