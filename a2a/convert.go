package a2a

import (
	"fmt"

	"github.com/agentmesh/runtime/event"
)

const (
	partTypeText       = "text"
	partTypeData       = "data"
	partTypeImage      = "image"
	partTypeToolCall   = "tool_call"
	partTypeToolResult = "tool_result"
	partTypeArtifact   = "artifact"
)

func partToWire(p event.Part) WirePart {
	switch v := p.(type) {
	case event.TextPart:
		return WirePart{Type: partTypeText, Text: v.Text}
	case event.DataPart:
		return WirePart{Type: partTypeData, Data: v.Data}
	case event.ImagePart:
		return WirePart{Type: partTypeImage, MIMEType: v.MIMEType, Bytes: v.Bytes}
	case event.ToolCallPart:
		return WirePart{Type: partTypeToolCall, ToolCallID: v.ToolCallID, ToolName: v.ToolName, Input: v.Input}
	case event.ToolResultPart:
		parts := make([]WirePart, len(v.Parts))
		for i, inner := range v.Parts {
			parts[i] = partToWire(inner)
		}
		return WirePart{Type: partTypeToolResult, ToolCallID: v.ToolCallID, ToolName: v.ToolName, IsError: v.IsError, Parts: parts}
	case event.ArtifactPart:
		return WirePart{
			Type: partTypeArtifact, ArtifactID: v.ID, Path: v.Path, MIMEType: v.MIMEType,
			Size: v.Size, Preview: v.Preview, Structure: v.Structure,
		}
	default:
		return WirePart{Type: partTypeText, Text: fmt.Sprintf("%v", p)}
	}
}

func partsToWire(parts []event.Part) []WirePart {
	out := make([]WirePart, len(parts))
	for i, p := range parts {
		out[i] = partToWire(p)
	}
	return out
}

func wireToPart(w WirePart) (event.Part, error) {
	switch w.Type {
	case partTypeText:
		return event.TextPart{Text: w.Text}, nil
	case partTypeData:
		return event.DataPart{Data: w.Data}, nil
	case partTypeImage:
		return event.ImagePart{MIMEType: w.MIMEType, Bytes: w.Bytes}, nil
	case partTypeToolCall:
		return event.ToolCallPart{ToolCallID: w.ToolCallID, ToolName: w.ToolName, Input: w.Input}, nil
	case partTypeToolResult:
		inner := make([]event.Part, len(w.Parts))
		for i, wp := range w.Parts {
			p, err := wireToPart(wp)
			if err != nil {
				return nil, err
			}
			inner[i] = p
		}
		return event.ToolResultPart{ToolCallID: w.ToolCallID, ToolName: w.ToolName, Parts: inner, IsError: w.IsError}, nil
	case partTypeArtifact:
		return event.ArtifactPart{
			ID: w.ArtifactID, Path: w.Path, MIMEType: w.MIMEType, Size: w.Size,
			Preview: w.Preview, Structure: w.Structure,
		}, nil
	default:
		return nil, fmt.Errorf("a2a: unknown part type %q", w.Type)
	}
}

func wireToParts(parts []WirePart) ([]event.Part, error) {
	out := make([]event.Part, len(parts))
	for i, w := range parts {
		p, err := wireToPart(w)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func wireToMessage(w WireMessage) (event.Message, error) {
	parts, err := wireToParts(w.Parts)
	if err != nil {
		return event.Message{}, err
	}
	role := event.Role(w.Role)
	if role == "" {
		role = event.RoleUser
	}
	return event.NewMessage("", role, parts...)
}

func messageToWire(m event.Message) WireMessage {
	return WireMessage{Role: string(m.Role), Parts: partsToWire(m.Parts)}
}
