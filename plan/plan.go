// Package plan implements the planning strategy: turning a user message,
// agent configuration, and run history into an AgentPlan, and parsing a
// planner's raw LLM output into structured tool calls according to the
// agent's configured tool-call format.
package plan

import (
	"context"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
)

// ToolFormat selects how the planner's LLM output is turned into tool
// calls.
type ToolFormat string

const (
	FormatXML      ToolFormat = "xml"
	FormatJSONL    ToolFormat = "json"
	FormatCode     ToolFormat = "code"
	FormatProvider ToolFormat = "provider"
	FormatNone     ToolFormat = "none"
)

// Planner produces and revises an AgentPlan over the lifetime of a run.
type Planner interface {
	// Plan derives the initial plan from message and the agent's
	// configuration/scratchpad/dynamic sections held on execCtx.
	Plan(ctx context.Context, message event.Message, execCtx *execctx.Context) (event.AgentPlan, error)
	// Replan is invoked when the current plan is exhausted, the executor
	// requests it explicitly, or NeedsReplanning(history) returns true.
	Replan(ctx context.Context, message event.Message, execCtx *execctx.Context, current event.AgentPlan) (event.AgentPlan, error)
	// NeedsReplanning is a periodic trigger, typically every N completed
	// steps.
	NeedsReplanning(history []event.ExecutionHistoryEntry) bool
}

// ToolCallParser turns raw planner output text into ToolCalls, per the
// agent's configured ToolFormat. Implementations must be robust to
// malformed or partial input: a block that does not parse is skipped
// rather than surfaced as an error, since planner output is LLM-generated
// and imperfect input must not abort the run.
type ToolCallParser interface {
	// Parse performs a single-shot parse of the complete text.
	Parse(text string) ([]event.ToolCall, error)
	// NewStream returns fresh streaming state for incremental parsing as
	// chunks arrive.
	NewStream() StreamState
}

// StreamState accumulates chunks and emits ToolCalls as soon as each
// becomes structurally complete. Concatenating the ToolCalls emitted across
// any partitioning of a well-formed input into chunks must equal the
// single-shot Parse of the unpartitioned text.
type StreamState interface {
	Feed(chunk string) []event.ToolCall
}

// ParserFor selects the ToolCallParser for a ToolFormat. Only Xml and JsonL
// text-parse into ToolCalls. FormatCode instead yields a single code
// fragment — see ExtractCode. FormatProvider and FormatNone have no text
// parser: provider-native tool calls arrive structurally in the LLM stream
// and are never text-parsed; FormatNone expects no tool calls at all.
func ParserFor(format ToolFormat) ToolCallParser {
	switch format {
	case FormatXML:
		return xmlParser{}
	case FormatJSONL:
		return jsonlParser{}
	default:
		return nil
	}
}
