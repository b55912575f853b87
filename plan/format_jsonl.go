package plan

import (
	"bufio"
	"encoding/json"
	"strings"

	"github.com/agentmesh/runtime/event"
)

// jsonlParser implements ToolFormat JsonL: one JSON object per line naming
// tool_name and input.
type jsonlParser struct{}

type jsonlLine struct {
	ToolName string          `json:"tool_name"`
	Input    json.RawMessage `json:"input"`
}

func (jsonlParser) Parse(text string) ([]event.ToolCall, error) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	var calls []event.ToolCall
	for scanner.Scan() {
		if call, ok := decodeJSONLLine(scanner.Text()); ok {
			calls = append(calls, call)
		}
	}
	return calls, nil
}

func (jsonlParser) NewStream() StreamState {
	return &jsonlStreamState{}
}

func decodeJSONLLine(line string) (event.ToolCall, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return event.ToolCall{}, false
	}
	var l jsonlLine
	if err := json.Unmarshal([]byte(line), &l); err != nil {
		return event.ToolCall{}, false
	}
	if l.ToolName == "" {
		return event.ToolCall{}, false
	}
	return event.ToolCall{ToolName: l.ToolName, Input: l.Input}, true
}

// jsonlStreamState buffers incomplete trailing lines across Feed calls,
// since a newline may arrive split across chunks.
type jsonlStreamState struct {
	buf strings.Builder
}

func (s *jsonlStreamState) Feed(chunk string) []event.ToolCall {
	s.buf.WriteString(chunk)
	text := s.buf.String()

	lastNewline := strings.LastIndexByte(text, '\n')
	if lastNewline < 0 {
		return nil
	}

	complete := text[:lastNewline]
	remainder := text[lastNewline+1:]
	s.buf.Reset()
	s.buf.WriteString(remainder)

	var calls []event.ToolCall
	for _, line := range strings.Split(complete, "\n") {
		if call, ok := decodeJSONLLine(line); ok {
			calls = append(calls, call)
		}
	}
	return calls
}
