package strategy

import (
	"strings"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
	"github.com/agentmesh/runtime/llm"
)

// pendingToolCall accumulates one tool call's delta fragments, keyed by
// ToolCallID, across a streamed completion.
type pendingToolCall struct {
	toolName string
	input    strings.Builder
}

// streamAggregator folds a sequence of llm.StreamEvent deltas into either
// accumulated text or a set of tool calls, per spec.md §4.4: text deltas
// forward as TextMessageContent events; tool-call deltas aggregate by
// ToolCallID; a TextMessageEnd fires once if any text started.
type streamAggregator struct {
	text      strings.Builder
	started   bool
	sawFinish bool
	order     []string
	calls     map[string]*pendingToolCall
}

func newStreamAggregator() *streamAggregator {
	return &streamAggregator{calls: map[string]*pendingToolCall{}}
}

func (a *streamAggregator) feed(ev llm.StreamEvent, stepID string, ec *execctx.Context) {
	switch ev.Kind {
	case llm.StreamTextDelta:
		if !a.started {
			a.started = true
			ec.Emit(event.Event{Type: event.TypeTextMessageStart, StepID: stepID})
		}
		a.text.WriteString(ev.Text)
		ec.Emit(event.Event{Type: event.TypeTextMessageContent, StepID: stepID, Data: event.TextMessageContentData{Delta: ev.Text}})
	case llm.StreamToolCallDelta:
		call, ok := a.calls[ev.ToolCallID]
		if !ok {
			call = &pendingToolCall{}
			a.calls[ev.ToolCallID] = call
			a.order = append(a.order, ev.ToolCallID)
		}
		if ev.ToolName != "" {
			call.toolName = ev.ToolName
		}
		call.input.WriteString(ev.InputDelta)
	case llm.StreamDone:
		a.sawFinish = true
		if ev.Usage.Tokens > 0 || ev.Usage.InputTokens > 0 || ev.Usage.OutputTokens > 0 {
			ec.AddUsage(ev.Usage)
		}
	}
}

func (a *streamAggregator) toolCalls() []event.ToolCall {
	if len(a.order) == 0 {
		return nil
	}
	calls := make([]event.ToolCall, 0, len(a.order))
	for _, id := range a.order {
		c := a.calls[id]
		input := c.input.String()
		if input == "" {
			input = "{}"
		}
		calls = append(calls, event.ToolCall{ToolCallID: id, ToolName: c.toolName, Input: []byte(input)})
	}
	return calls
}
