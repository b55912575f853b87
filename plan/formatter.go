package plan

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/agentmesh/runtime/event"
)

// SystemTemplateData is the substitution set for the named system-message
// template, matching spec.md §4.3's field list exactly.
type SystemTemplateData struct {
	Description     string
	Instructions    string
	AvailableTools  string
	Scratchpad      string
	DynamicSections map[string]string
	DynamicValues   map[string]string
	SessionValues   map[string]string
	ReasoningDepth  string
	ExecutionMode   string
	ToolFormat      ToolFormat
	MaxSteps        int
	CurrentSteps    int
	RemainingSteps  int
	Todos           []string
	JSONTools       string
}

// defaultSystemTemplate is the teacher-style named template: plain
// text/template with named fields, no control structures beyond simple
// conditionals for optional sections.
const defaultSystemTemplate = `{{.Description}}

{{.Instructions}}
{{if .AvailableTools}}
Available tools:
{{.AvailableTools}}
{{end}}
{{if .Scratchpad}}
Prior work so far:
{{.Scratchpad}}
{{end}}
{{range $k, $v := .DynamicSections}}
{{$k}}:
{{$v}}
{{end}}
Reasoning depth: {{.ReasoningDepth}}
Execution mode: {{.ExecutionMode}}
Tool call format: {{.ToolFormat}}
Steps: {{.CurrentSteps}}/{{.MaxSteps}} ({{.RemainingSteps}} remaining)
{{if .Todos}}
Open todos:
{{range .Todos}}- {{.}}
{{end}}
{{end}}
{{if .JSONTools}}
{{.JSONTools}}
{{end}}`

// MessageFormatter assembles the LLM prompt for one plan/replan call.
type MessageFormatter struct {
	systemTemplate *template.Template
}

// NewMessageFormatter compiles the named system template. An empty
// templateSource falls back to the default template.
func NewMessageFormatter(templateSource string) (*MessageFormatter, error) {
	if templateSource == "" {
		templateSource = defaultSystemTemplate
	}
	tmpl, err := template.New("system").Parse(templateSource)
	if err != nil {
		return nil, fmt.Errorf("plan: compile system template: %w", err)
	}
	return &MessageFormatter{systemTemplate: tmpl}, nil
}

// SystemMessage renders the system message from data.
func (f *MessageFormatter) SystemMessage(data SystemTemplateData) (event.Message, error) {
	var b strings.Builder
	if err := f.systemTemplate.Execute(&b, data); err != nil {
		return event.Message{}, fmt.Errorf("plan: render system message: %w", err)
	}
	return event.Message{Role: event.RoleSystem, Parts: []event.Part{event.TextPart{Text: b.String()}}}, nil
}

// UserMessageOverride optionally augments the incoming user message with a
// template-rendered block or a resolved session-keyed value, which may
// itself be an artifact reference expanded inline.
type UserMessageOverride struct {
	Template   string
	SessionKey string
}

// UserMessage derives the user message sent to the planner, applying
// overrides in order: each override either renders its template against
// values, or resolves a session-keyed value via resolve.
func (f *MessageFormatter) UserMessage(incoming event.Message, overrides []UserMessageOverride, values map[string]string, resolve func(key string) (string, bool)) (event.Message, error) {
	parts := append([]event.Part{}, incoming.Parts...)
	for _, o := range overrides {
		switch {
		case o.Template != "":
			rendered, err := renderInlineTemplate(o.Template, values)
			if err != nil {
				return event.Message{}, fmt.Errorf("plan: render user override: %w", err)
			}
			parts = append(parts, event.TextPart{Text: rendered})
		case o.SessionKey != "":
			if resolve == nil {
				continue
			}
			if v, ok := resolve(o.SessionKey); ok {
				parts = append(parts, event.TextPart{Text: v})
			}
		}
	}
	return event.Message{Role: event.RoleUser, Parts: parts}, nil
}

func renderInlineTemplate(src string, values map[string]string) (string, error) {
	tmpl, err := template.New("override").Parse(src)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, values); err != nil {
		return "", err
	}
	return b.String(), nil
}

// HistoryMessages reconstructs prior-turn messages from execution history
// for a Provider-native tool format: every Execution entry becomes an
// Assistant message carrying ToolCall parts, followed by a Tool message
// carrying matching ToolResult parts. Non-native formats fold history into
// the scratchpad text block instead and never call this.
func HistoryMessages(history []event.ExecutionHistoryEntry) []event.Message {
	msgs := make([]event.Message, 0, len(history)*2)
	for _, h := range history {
		calls := h.Step.Action.ToolCalls
		if len(calls) == 0 {
			continue
		}
		callParts := make([]event.Part, 0, len(calls))
		for _, c := range calls {
			callParts = append(callParts, event.ToolCallPart{ToolCallID: c.ToolCallID, ToolName: c.ToolName, Input: c.Input})
		}
		msgs = append(msgs, event.Message{Role: event.RoleAssistant, Parts: callParts})

		resultParts := make([]event.Part, 0, len(calls))
		for _, c := range calls {
			resultParts = append(resultParts, event.ToolResultPart{
				ToolCallID: c.ToolCallID,
				ToolName:   c.ToolName,
				Parts:      h.Result.Parts,
				IsError:    h.Result.Status == event.ExecutionFailed,
			})
		}
		msgs = append(msgs, event.Message{Role: event.RoleTool, Parts: resultParts})
	}
	return msgs
}

// FoldHistoryIntoScratchpad renders history as the plain-text scratchpad
// block used by non-native tool formats, where only [System, User] are sent
// and everything else is folded into text.
func FoldHistoryIntoScratchpad(history []event.ExecutionHistoryEntry) string {
	var b strings.Builder
	for _, h := range history {
		fmt.Fprintf(&b, "step %s: %s\n", h.Step.ID, h.Step.Thought)
		fmt.Fprintf(&b, "result (%s): ", h.Result.Status)
		for _, p := range h.Result.Parts {
			if t, ok := p.(event.TextPart); ok {
				b.WriteString(t.Text)
				b.WriteString(" ")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// formatMaxSteps renders the remaining-steps hint; kept as a small helper so
// callers building SystemTemplateData don't duplicate the subtraction and
// floor-at-zero rule.
func formatMaxSteps(maxSteps, currentSteps int) int {
	remaining := maxSteps - currentSteps
	if remaining < 0 {
		return 0
	}
	return remaining
}
