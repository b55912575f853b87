// Package a2a implements the JSON-RPC/SSE protocol surface described in
// spec.md §4.7/§6: message/send, message/stream, tasks/get, and
// tasks/cancel, mounted on a chi.Router and backed by the orchestrator.
package a2a

import "encoding/json"

// JSON-RPC 2.0 error codes used by this handler.
const (
	CodeParseError     = -32700
	CodeInvalidParams  = -32602
	CodeMethodNotFound = -32601
	CodeInternal       = -32603
)

// rpcRequest is the JSON-RPC 2.0 envelope every method call arrives in.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// rpcError is the JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcResponse is the JSON-RPC 2.0 response envelope. Exactly one of Result
// or Error is populated.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func errResponse(id json.RawMessage, code int, message string) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}}
}

func okResponse(id json.RawMessage, result any) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

// WirePart is the wire representation of event.Part, discriminated by Type.
type WirePart struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	Data json.RawMessage `json:"data,omitempty"`

	MIMEType string `json:"mime_type,omitempty"`
	Bytes    []byte  `json:"bytes,omitempty"`

	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
	Parts      []WirePart      `json:"parts,omitempty"`

	ArtifactID string `json:"artifact_id,omitempty"`
	Path       string `json:"path,omitempty"`
	Size       int64  `json:"size,omitempty"`
	Preview    string `json:"preview,omitempty"`
	Structure  string `json:"structure,omitempty"`
}

// WireMessage is the wire representation of event.Message.
type WireMessage struct {
	Role  string     `json:"role"`
	Parts []WirePart `json:"parts"`
}

// WireTaskStatus is the wire representation of a Task's current status.
type WireTaskStatus struct {
	State   string       `json:"state"`
	Message *WireMessage `json:"message,omitempty"`
	Final   bool         `json:"final,omitempty"`
}

// WireTask is the JSON-RPC result of message/send, tasks/get, and
// tasks/cancel.
type WireTask struct {
	ID       string         `json:"id"`
	ThreadID string         `json:"thread_id"`
	Status   WireTaskStatus `json:"status"`
}

// MessageSendParams is the params object for message/send and
// message/stream.
type MessageSendParams struct {
	Message          WireMessage      `json:"message"`
	Metadata         *RequestMetadata `json:"metadata,omitempty"`
	Configuration    *RequestConfig   `json:"configuration,omitempty"`
	BrowserSessionID string           `json:"browser_session_id,omitempty"`
	ThreadID         string           `json:"thread_id,omitempty"`
	TaskID           string           `json:"task_id,omitempty"`
}

// RequestMetadata carries the per-request fields spec.md §4.7 lists under
// "per-request context assembly".
type RequestMetadata struct {
	AdditionalAttributes map[string]any    `json:"additional_attributes,omitempty"`
	ExternalTools        []string          `json:"external_tools,omitempty"`
	ToolMetadata         map[string]any    `json:"tool_metadata,omitempty"`
	DynamicSections      map[string]string `json:"dynamic_sections,omitempty"`
	DynamicValues        map[string]string `json:"dynamic_values,omitempty"`
}

// RequestConfig carries optional per-request definition overrides.
type RequestConfig struct {
	DefinitionOverrides map[string]string `json:"definition_overrides,omitempty"`
}

// TaskIDParams is the params object for tasks/get and tasks/cancel.
type TaskIDParams struct {
	ID string `json:"id"`
}

// MessageKind is the SSE result payload's discriminant: one of "message",
// "task_status_update", or "artifact", per spec.md §6.
type MessageKind struct {
	Kind             string       `json:"kind"`
	Message          *WireMessage `json:"message,omitempty"`
	TaskStatusUpdate *WireTaskStatus `json:"task_status_update,omitempty"`
	Artifact         *WireArtifact   `json:"artifact,omitempty"`
}

// WireArtifact is the SSE "artifact" MessageKind payload.
type WireArtifact struct {
	Name  string     `json:"name"`
	Parts []WirePart `json:"parts"`
}
