package plan

import (
	"encoding/json"
	"encoding/xml"
	"regexp"
	"strconv"
	"strings"

	"github.com/agentmesh/runtime/event"
)

// xmlParser implements ToolFormat Xml: each top-level element is one tool
// call named by the element, with nested elements as named parameters and
// primitive type inference on their text content.
type xmlParser struct{}

func (xmlParser) Parse(text string) ([]event.ToolCall, error) {
	blocks, _ := extractTopLevelElements(text)
	calls := make([]event.ToolCall, 0, len(blocks))
	for _, b := range blocks {
		if call, ok := decodeToolElement(b); ok {
			calls = append(calls, call)
		}
	}
	return calls, nil
}

func (xmlParser) NewStream() StreamState {
	return &xmlStreamState{}
}

type xmlStreamState struct {
	buf strings.Builder
}

// Feed appends chunk to the buffered remainder and emits a ToolCall for
// every top-level element that becomes complete, retaining any trailing
// partial element for the next Feed call.
func (s *xmlStreamState) Feed(chunk string) []event.ToolCall {
	s.buf.WriteString(chunk)
	text := s.buf.String()

	blocks, consumed := extractTopLevelElements(text)
	calls := make([]event.ToolCall, 0, len(blocks))
	for _, b := range blocks {
		if call, ok := decodeToolElement(b); ok {
			calls = append(calls, call)
		}
	}

	s.buf.Reset()
	s.buf.WriteString(text[consumed:])
	return calls
}

var tagRe = regexp.MustCompile(`<(/?)([A-Za-z_][\w.:-]*)[^<>]*?(/?)>`)

type tagMatch struct {
	start, end               int
	name                     string
	closing, selfClosing     bool
}

// extractTopLevelElements scans text for complete top-level XML elements
// using tag-depth tracking (not a full parser — resilient to malformed
// content between elements, which is simply not recognized as a block).
// It returns each complete block's raw text, plus the byte offset up to
// which text has been fully consumed by complete blocks.
func extractTopLevelElements(text string) ([]string, int) {
	matches := scanTags(text)

	var blocks []string
	consumed := 0
	depth := 0
	var blockStart int
	var openName string

	for _, m := range matches {
		switch {
		case depth == 0 && !m.closing && !m.selfClosing:
			blockStart = m.start
			openName = m.name
			depth = 1
		case depth == 0 && !m.closing && m.selfClosing:
			blocks = append(blocks, text[m.start:m.end])
			consumed = m.end
		case depth > 0 && !m.closing && m.name == openName:
			depth++
		case depth > 0 && m.closing && m.name == openName:
			depth--
			if depth == 0 {
				blocks = append(blocks, text[blockStart:m.end])
				consumed = m.end
			}
		}
	}
	return blocks, consumed
}

func scanTags(s string) []tagMatch {
	idxs := tagRe.FindAllStringSubmatchIndex(s, -1)
	matches := make([]tagMatch, 0, len(idxs))
	for _, idx := range idxs {
		m := tagMatch{start: idx[0], end: idx[1]}
		if idx[2] >= 0 && idx[3] >= 0 {
			m.closing = idx[3] > idx[2]
		}
		m.name = s[idx[4]:idx[5]]
		if idx[6] >= 0 && idx[7] >= 0 {
			m.selfClosing = idx[7] > idx[6]
		}
		matches = append(matches, m)
	}
	return matches
}

// xmlNode is a generic element used to decode an arbitrary tool-call block
// without knowing its tag names up front.
type xmlNode struct {
	XMLName xml.Name
	Content string    `xml:",chardata"`
	Nodes   []xmlNode `xml:",any"`
}

// decodeToolElement converts one top-level block into a ToolCall. Malformed
// blocks are skipped (ok=false) rather than erroring, per the format's
// tolerance of malformed/partial input — an LLM's output is not guaranteed
// well-formed and one bad block must not abort the run.
func decodeToolElement(block string) (event.ToolCall, bool) {
	var node xmlNode
	if err := xml.Unmarshal([]byte(block), &node); err != nil {
		return event.ToolCall{}, false
	}
	if node.XMLName.Local == "" {
		return event.ToolCall{}, false
	}

	input := make(map[string]any, len(node.Nodes))
	for _, child := range node.Nodes {
		input[child.XMLName.Local] = inferPrimitive(strings.TrimSpace(child.Content))
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return event.ToolCall{}, false
	}
	return event.ToolCall{ToolName: node.XMLName.Local, Input: raw}, true
}

// renderToolElement is the inverse of decodeToolElement, used by tests to
// exercise the parse→render→parse round trip invariant.
func renderToolElement(call event.ToolCall) (string, error) {
	var input map[string]any
	if len(call.Input) > 0 {
		if err := json.Unmarshal(call.Input, &input); err != nil {
			return "", err
		}
	}
	var b strings.Builder
	b.WriteString("<")
	b.WriteString(call.ToolName)
	b.WriteString(">")
	for k, v := range input {
		fmtPrimitive(&b, k, v)
	}
	b.WriteString("</")
	b.WriteString(call.ToolName)
	b.WriteString(">")
	return b.String(), nil
}

func fmtPrimitive(b *strings.Builder, key string, v any) {
	b.WriteString("<")
	b.WriteString(key)
	b.WriteString(">")
	switch t := v.(type) {
	case string:
		b.WriteString(t)
	case bool:
		b.WriteString(strconv.FormatBool(t))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	default:
		b.WriteString("")
	}
	b.WriteString("</")
	b.WriteString(key)
	b.WriteString(">")
}

func inferPrimitive(s string) any {
	if s == "" {
		return s
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return float64(i) // json.Marshal round-trips numbers as float64 via any
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
