package plan

import (
	"regexp"
	"strings"
)

// fencedBlockRe matches a fenced code block, optionally tagged with a
// language identifier, as produced by an LLM asked to emit one executable
// fragment per Code-format step.
var fencedBlockRe = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*\\n(.*?)```")

// ExtractCode pulls the source fragment out of a Code-format planner
// response. A FormatCode step is not a ToolCall, so this is a standalone
// function rather than a ToolCallParser implementation. If no fenced block
// is present, the whole trimmed text is treated as the fragment — tolerant
// of a model that omits the fence.
func ExtractCode(text string) (string, bool) {
	if m := fencedBlockRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}
	return trimmed, true
}
