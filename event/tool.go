package event

import "encoding/json"

// ToolSource records where a resolved tool came from. Recorded at resolution
// time so telemetry and tool-result rendering do not need to re-resolve the
// name against the pipeline's precedence chain.
type ToolSource string

const (
	SourceDynamic ToolSource = "dynamic"
	SourceBuiltin ToolSource = "builtin"
	SourceMCP     ToolSource = "mcp"
)

// ToolCall is a single requested tool invocation. ToolCallID is unique across
// the run and stable from emission through to its matching ToolResponse.
type ToolCall struct {
	ToolCallID string
	ToolName   string
	Input      json.RawMessage
	Source     ToolSource
}

// ToolResponse is the result of exactly one ToolCall.
type ToolResponse struct {
	ToolCallID string
	ToolName   string
	Parts      []Part
	IsError    bool
}

// Usage is the cumulative cost of a run. All counters are monotonically
// non-decreasing within a single run.
type Usage struct {
	Tokens                  int64
	InputTokens             int64
	OutputTokens            int64
	EstimatedContextTokens  int64
	CurrentIteration        int
	Model                   string
}

// Add accumulates a usage sample, returning the updated total. Never mutates
// the LLM-reported sample in place so callers can log the delta too.
func (u Usage) Add(sample Usage) Usage {
	u.Tokens += sample.Tokens
	u.InputTokens += sample.InputTokens
	u.OutputTokens += sample.OutputTokens
	if sample.EstimatedContextTokens > u.EstimatedContextTokens {
		u.EstimatedContextTokens = sample.EstimatedContextTokens
	}
	if sample.Model != "" {
		u.Model = sample.Model
	}
	return u
}
