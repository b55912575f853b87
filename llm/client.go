// Package llm defines the thin provider-agnostic interface the core
// consumes (§1: "the core consumes a thin llm.execute / llm.execute_stream
// interface"). Concrete adapters for Anthropic, OpenAI, and AWS Bedrock live
// in this package and implement Client; the planner and execution strategy
// depend only on the interface.
package llm

import (
	"context"

	"github.com/agentmesh/runtime/event"
)

// Params carries the tunable generation parameters for one call.
type Params struct {
	Model       string
	MaxTokens   int
	Temperature float64
	// Tools lists the tool schemas available for provider-native tool
	// calling (used when the agent's ToolFormat is "provider").
	Tools []ToolSchema
}

// ToolSchema describes one callable tool for provider-native tool calling.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema []byte // JSON Schema
}

// Result is a non-streaming completion.
type Result struct {
	Parts []event.Part
	Usage event.Usage
	// FinishReason is "tool_calls" when the completion carries tool calls,
	// otherwise "text".
	FinishReason string
}

// StreamEventKind discriminates StreamEvent variants.
type StreamEventKind string

const (
	StreamTextDelta     StreamEventKind = "text_delta"
	StreamToolCallDelta StreamEventKind = "tool_call_delta"
	StreamDone          StreamEventKind = "done"
)

// StreamEvent is one increment of a streaming completion. Text deltas carry
// Text; tool-call deltas carry a partial ToolCallID/ToolName/InputDelta that
// the execution strategy aggregates by ToolCallID.
type StreamEvent struct {
	Kind         StreamEventKind
	Text         string
	ToolCallID   string
	ToolName     string
	InputDelta   string
	FinishReason string
	Usage        event.Usage
}

// Client is the provider-agnostic interface execution strategies and
// planners depend on. Implementations wrap a concrete SDK client
// (anthropic-sdk-go, sashabaranov/go-openai, AWS bedrockruntime).
type Client interface {
	// Execute performs a single non-streaming completion.
	Execute(ctx context.Context, messages []event.Message, params Params) (Result, error)
	// ExecuteStream performs a streaming completion, delivering increments to fn.
	// fn must return promptly; it is called synchronously from the read loop.
	ExecuteStream(ctx context.Context, messages []event.Message, params Params, fn func(StreamEvent)) error
}
