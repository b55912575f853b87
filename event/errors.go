package event

import "errors"

// Validation-category sentinel errors, surfaced by the A2A handler as
// JSON-RPC -32602 (invalid params) without starting a run.
var (
	// ErrEmptyMessageParts indicates a message was constructed with no parts.
	ErrEmptyMessageParts = errors.New("message has no parts")
	// ErrToolResultMissingTaskID indicates a tool_result part arrived without
	// an associated task_id.
	ErrToolResultMissingTaskID = errors.New("tool_result part missing task_id")
	// ErrDanglingToolResult indicates a ToolResultPart references a
	// ToolCallID that has no matching earlier ToolCallPart in the task.
	ErrDanglingToolResult = errors.New("tool_result references unknown tool_call_id")
)
