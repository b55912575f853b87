// Package loop implements the core agent-loop state machine (spec.md §4.5):
// the driver that ties the planner, execution strategy, and scratchpad
// memory together, enforcing iteration and error caps, running at most one
// reflection pass, and emitting the run's lifecycle events.
package loop

import (
	"context"
	"fmt"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
	"github.com/agentmesh/runtime/plan"
	"github.com/agentmesh/runtime/strategy"
	"github.com/agentmesh/runtime/task"
)

// maxConsecutivePlanErrors is the error_count threshold (spec.md §4.5: "if
// error_count > 2 → break"); three consecutive planning failures stop the
// run rather than retry indefinitely.
const maxConsecutivePlanErrors = 2

// DefaultMaxIterations is applied when Config.MaxIterations is zero.
const DefaultMaxIterations = 10

// Hooks observes step boundaries. Both methods are optional extension
// points; NoopHooks satisfies the interface as a zero-cost default.
type Hooks interface {
	OnStepStart(ctx context.Context, step event.PlanStep)
	OnStepEnd(ctx context.Context, step event.PlanStep, result event.ExecutionResult)
}

// NoopHooks implements Hooks with no side effects.
type NoopHooks struct{}

func (NoopHooks) OnStepStart(context.Context, event.PlanStep)                      {}
func (NoopHooks) OnStepEnd(context.Context, event.PlanStep, event.ExecutionResult) {}

// ReflectionFunc runs the single reflection pass (spec.md §4.5): invoked via
// the `reflect` built-in tool against the run's history, returning whether
// the run should continue and the reflection step's own result (stored into
// history like any other step when it continues).
type ReflectionFunc func(ctx context.Context, ec *execctx.Context, history []event.ExecutionHistoryEntry) (shouldContinue bool, result event.ExecutionResult, err error)

// Config tunes the loop's bounds. Zero values fall back to spec defaults.
type Config struct {
	MaxIterations     int
	ReflectionEnabled bool
}

// Loop drives one run to completion.
type Loop struct {
	planner  plan.Planner
	executor strategy.Executor
	hooks    Hooks
	reflect  ReflectionFunc
	cfg      Config
}

// New constructs a Loop. hooks may be nil (defaults to NoopHooks); reflect
// may be nil (disables reflection regardless of Config.ReflectionEnabled).
func New(planner plan.Planner, executor strategy.Executor, hooks Hooks, reflect ReflectionFunc, cfg Config) *Loop {
	if hooks == nil {
		hooks = NoopHooks{}
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	return &Loop{planner: planner, executor: executor, hooks: hooks, reflect: reflect, cfg: cfg}
}

// Run executes the state machine in spec.md §4.5 for one incoming message,
// emitting lifecycle events on ec's sink throughout. The returned error is
// non-nil when the run ends in RunError (a step's execution fails, or no
// step was executed) and when a store write, preprocessing or reflection
// fails; ordinary unsuccessful completion
// (iteration cap reached without a final result, input required) is
// reported via RunFinished{Success: false}, not a Go error.
func (l *Loop) Run(ctx context.Context, message event.Message, ec *execctx.Context) error {
	ec.Emit(event.Event{Type: event.TypeRunStarted})
	if err := ec.UpdateStatus(ctx, task.StatusRunning, ""); err != nil {
		return fmt.Errorf("loop: set running: %w", err)
	}

	if err := l.preprocess(ctx, message, ec); err != nil {
		return fmt.Errorf("loop: preprocess message: %w", err)
	}
	ec.AddUsage(event.Usage{EstimatedContextTokens: estimateTokens(message)})

	var (
		history    []event.ExecutionHistoryEntry
		stepIndex  int
		errorCount int
		reflected  bool
	)

	for {
		if err := ctx.Err(); err != nil {
			if cancelErr := ec.UpdateStatus(ctx, task.StatusCancelled, "cancelled"); cancelErr != nil {
				return fmt.Errorf("loop: mark cancelled: %w", cancelErr)
			}
			break
		}

		if errorCount > maxConsecutivePlanErrors {
			break
		}

		currentPlan := ec.GetCurrentPlan()
		if currentPlan == nil || stepIndex >= len(currentPlan.Steps) {
			newPlan, err := l.planOrReplan(ctx, message, ec, currentPlan)
			if err != nil {
				errorCount++
				if storeErr := ec.StoreExecutionResult(ctx, event.PlanStep{}, event.ExecutionResult{Status: event.ExecutionFailed, Reason: err.Error()}); storeErr != nil {
					return fmt.Errorf("loop: store plan failure: %w", storeErr)
				}
				continue
			}
			ec.SetCurrentPlan(&newPlan)
			currentPlan = &newPlan
			stepIndex = 0
			errorCount = 0
		}

		if stepIndex >= l.cfg.MaxIterations {
			break
		}

		step := currentPlan.Steps[stepIndex]
		ec.SetCurrentStepID(step.ID)
		l.hooks.OnStepStart(ctx, step)
		ec.Emit(event.Event{Type: event.TypeStepStarted, StepID: step.ID, Data: event.StepStartedData{StepID: step.ID, Index: stepIndex}})

		result, err := l.executor.ExecuteStep(ctx, step, ec)
		if err != nil {
			ec.Emit(event.Event{Type: event.TypeRunError, StepID: step.ID, Data: event.RunErrorData{Code: "execution_error", Message: err.Error()}})
			return fmt.Errorf("loop: execute step %s: %w", step.ID, err)
		}

		if result.Status == event.ExecutionInputRequired {
			if err := ec.UpdateStatus(ctx, task.StatusInputRequired, ""); err != nil {
				return fmt.Errorf("loop: mark input required: %w", err)
			}
			history = append(history, event.ExecutionHistoryEntry{Step: step, Result: result})
			break
		}

		if err := ec.StoreExecutionResult(ctx, step, result); err != nil {
			return fmt.Errorf("loop: store execution result: %w", err)
		}
		ec.IncrementIteration()
		history = append(history, event.ExecutionHistoryEntry{Step: step, Result: result})

		l.hooks.OnStepEnd(ctx, step, result)
		ec.Emit(event.Event{Type: event.TypeStepCompleted, StepID: step.ID, Data: event.StepCompletedData{StepID: step.ID, Success: result.Status == event.ExecutionSuccess}})

		if l.planner.NeedsReplanning(history) {
			replanned, err := l.planner.Replan(ctx, message, ec, *currentPlan)
			if err != nil {
				errorCount++
				continue
			}
			ec.SetCurrentPlan(&replanned)
			stepIndex = 0
			continue
		}

		if !l.executor.ShouldContinue(*currentPlan, stepIndex, ec) {
			if l.cfg.ReflectionEnabled && l.reflect != nil && !reflected {
				reflected = true
				shouldContinue, reflectionResult, err := l.reflect(ctx, ec, history)
				if err != nil {
					return fmt.Errorf("loop: reflection: %w", err)
				}
				history = append(history, event.ExecutionHistoryEntry{Step: event.PlanStep{ID: "reflection"}, Result: reflectionResult})
				if shouldContinue {
					ec.SetFinalResult(nil)
					continue
				}
			}
			break
		}

		stepIndex++
	}

	return l.finish(ctx, ec, history)
}

func (l *Loop) planOrReplan(ctx context.Context, message event.Message, ec *execctx.Context, current *event.AgentPlan) (event.AgentPlan, error) {
	if current == nil {
		return l.planner.Plan(ctx, message, ec)
	}
	return l.planner.Replan(ctx, message, ec, *current)
}

// preprocess routes an incoming message's parts per spec.md §4.5: ToolResult
// parts resume a prior external-tool wait by recording a synthetic
// ExecutionResult keyed by the original ToolCallID; every other part is
// appended to the thread's saved message history.
func (l *Loop) preprocess(ctx context.Context, message event.Message, ec *execctx.Context) error {
	var otherParts []event.Part
	for _, p := range message.Parts {
		if tr, ok := p.(event.ToolResultPart); ok {
			status := event.ExecutionSuccess
			if tr.IsError {
				status = event.ExecutionFailed
			}
			result := event.ExecutionResult{StepID: tr.ToolCallID, Status: status, Parts: tr.Parts}
			if err := ec.StoreExecutionResult(ctx, event.PlanStep{ID: tr.ToolCallID}, result); err != nil {
				return err
			}
			continue
		}
		otherParts = append(otherParts, p)
	}
	if len(otherParts) > 0 {
		return ec.SaveMessage(ctx, event.Message{Role: message.Role, Parts: otherParts})
	}
	return nil
}

// finish implements the END block: validates completion, computes
// aggregate success/failure counts, and emits the terminal event.
func (l *Loop) finish(ctx context.Context, ec *execctx.Context, history []event.ExecutionHistoryEntry) error {
	if len(history) == 0 {
		ec.Emit(event.Event{Type: event.TypeRunError, Data: event.RunErrorData{Code: "no_steps", Message: "run completed without executing any step"}})
		return fmt.Errorf("loop: run completed without executing any step")
	}

	failedSteps := 0
	for _, h := range history {
		if h.Result.Status == event.ExecutionFailed {
			failedSteps++
		}
	}
	success := failedSteps == 0 && ec.GetFinalResult() != nil

	if ec.GetStatus() != task.StatusCancelled && ec.GetStatus() != task.StatusInputRequired {
		// A clean stop (iteration cap or should_continue=false reached
		// without a final call) is still Completed, just Success: false in
		// the emitted event; only an actual failed step marks the task Failed.
		finalStatus := task.StatusCompleted
		if failedSteps > 0 {
			finalStatus = task.StatusFailed
		}
		if err := ec.UpdateStatus(ctx, finalStatus, ""); err != nil {
			return fmt.Errorf("loop: update terminal status: %w", err)
		}
	}

	ec.Emit(event.Event{Type: event.TypeRunFinished, Data: event.RunFinishedData{
		Success:     success,
		TotalSteps:  len(history),
		FailedSteps: failedSteps,
		Usage:       ec.GetUsage(),
	}})
	return nil
}

// estimateTokens is a crude token estimate (≈4 characters per token) used
// only to seed the run's context-size usage sample; the real per-call token
// counts come from the LLM provider's own usage reporting.
func estimateTokens(message event.Message) int64 {
	var total int64
	for _, p := range message.Parts {
		if t, ok := p.(event.TextPart); ok {
			total += int64(len(t.Text)) / 4
		}
	}
	return total
}
