package event

// ActionKind discriminates the shapes a PlanStep's action can take.
type ActionKind string

const (
	ActionToolCalls ActionKind = "tool_calls"
	ActionCode      ActionKind = "code"
	// ActionReason marks a free-form reasoning step: the planner produced
	// text rather than a structured tool call or code fragment, and the
	// strategy must stream a fresh LLM call to discover the outcome (more
	// text, or tool calls parsed from the stream per the agent's
	// configured tool-call format).
	ActionReason ActionKind = "reason"
)

type (
	// Action is the work a PlanStep asks the executor to perform. Exactly one
	// of ToolCalls or Code is populated, selected by Kind.
	Action struct {
		Kind      ActionKind
		ToolCalls []ToolCall
		Code      string
	}

	// PlanStep is one unit of planned work. IDs are unique within a plan and
	// are consumed exactly once by the agent loop.
	PlanStep struct {
		ID     string
		Thought string
		Action Action
	}

	// AgentPlan is an ordered list of steps; ordering is the sole execution
	// order and plans must not contain cycles (they are a simple slice).
	AgentPlan struct {
		Steps       []PlanStep
		InitialPlan bool
	}

	// ExecutionStatus is the outcome of executing one PlanStep.
	ExecutionStatus string
)

const (
	ExecutionSuccess        ExecutionStatus = "success"
	ExecutionFailed         ExecutionStatus = "failed"
	ExecutionInputRequired  ExecutionStatus = "input_required"
)

// ExecutionResult is the outcome of one executed step, appended to the
// scratchpad exactly once per step.
type ExecutionResult struct {
	StepID    string
	Status    ExecutionStatus
	Parts     []Part
	Reason    string
	Timestamp int64 // unix nanos; stamped by the caller, never time.Now() inside pure logic
}

// ScratchpadEntryKind discriminates the ScratchpadEntry variants.
type ScratchpadEntryKind string

const (
	ScratchpadPlanStep  ScratchpadEntryKind = "plan_step"
	ScratchpadExecution ScratchpadEntryKind = "execution"
	ScratchpadTask      ScratchpadEntryKind = "task"
)

// ExecutionHistoryEntry pairs a PlanStep with its ExecutionResult, the shape
// the scratchpad stores for a completed step.
type ExecutionHistoryEntry struct {
	Step   PlanStep
	Result ExecutionResult
}

// ScratchpadEntry is one append-only record in a task's scratchpad.
type ScratchpadEntry struct {
	Kind      ScratchpadEntryKind
	Timestamp int64
	PlanStep  *PlanStep
	Execution *ExecutionHistoryEntry
	TaskNote  string
}
