package tool

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/agentmesh/runtime/event"
)

// Threshold is the serialized-payload size, in bytes, above which a tool
// result part is wrapped as an Artifact instead of inlined.
const Threshold = 8 * 1024

// ArtifactStore persists oversized tool output under the session filesystem
// layout threads/{h(thread_id)}/tasks/{h(task_id)}/content/{filename}.
type ArtifactStore interface {
	Put(threadID, taskID, filename string, content []byte) (path string, err error)
}

// wrapOversized replaces any Part in parts whose serialized size exceeds
// Threshold with an ArtifactPart, persisting the original content via store.
// Parts under the threshold pass through unchanged.
func wrapOversized(store ArtifactStore, threadID, taskID, toolName string, parts []event.Part) ([]event.Part, error) {
	if store == nil {
		return parts, nil
	}
	out := make([]event.Part, len(parts))
	for i, p := range parts {
		wrapped, err := wrapPart(store, threadID, taskID, toolName, i, p)
		if err != nil {
			return nil, err
		}
		out[i] = wrapped
	}
	return out, nil
}

func wrapPart(store ArtifactStore, threadID, taskID, toolName string, index int, p event.Part) (event.Part, error) {
	content, mime, structure, ok := renderablePayload(p)
	if !ok || len(content) <= Threshold {
		return p, nil
	}

	filename := artifactFilename(toolName, index, mime)
	storedPath, err := store.Put(hashSegment(threadID), hashSegment(taskID), filename, content)
	if err != nil {
		return nil, fmt.Errorf("tool: persist artifact: %w", err)
	}

	return event.ArtifactPart{
		ID:        filename,
		Path:      storedPath,
		MIMEType:  mime,
		Size:      int64(len(content)),
		Preview:   preview(content),
		Structure: structure,
	}, nil
}

// renderablePayload extracts the bytes, MIME type, and structure hint for
// Parts eligible for artifact wrapping: Text and Data. Other part kinds
// (ToolCall, ToolResult, Artifact, Image) pass through untouched — Image
// already carries out-of-band bytes and ToolCall/ToolResult/Artifact are not
// raw payloads.
func renderablePayload(p event.Part) (content []byte, mime, structure string, ok bool) {
	switch v := p.(type) {
	case event.TextPart:
		return []byte(v.Text), "text/plain", "", true
	case event.DataPart:
		structure := "json-object"
		trimmed := strings.TrimSpace(string(v.Data))
		if strings.HasPrefix(trimmed, "[") {
			structure = "json-array"
		}
		return []byte(v.Data), "application/json", structure, true
	default:
		return nil, "", "", false
	}
}

func artifactFilename(toolName string, index int, mime string) string {
	ext := "bin"
	switch mime {
	case "text/plain":
		ext = "txt"
	case "application/json":
		ext = "json"
	}
	safeName := strings.ReplaceAll(toolName, "/", "_")
	return fmt.Sprintf("%s-%d.%s", safeName, index, ext)
}

func preview(content []byte) string {
	const maxPreview = 256
	s := string(content)
	if len(s) <= maxPreview {
		return s
	}
	return s[:maxPreview] + "..."
}

func hashSegment(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:16]
}
