package mcptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// WebSocketSuite is one remote MCP server reachable over a persistent
// WebSocket connection carrying JSON-RPC 2.0 frames.
type WebSocketSuite struct {
	URL string
}

// rpcRequest is the JSON-RPC 2.0 envelope sent over the socket.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message) }

// toolCallResult mirrors the subset of MCP's CallToolResult this transport
// needs: a single text content frame or structured content.
type toolCallResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent"`
	IsError           bool            `json:"isError"`
}

// WebSocket dispatches tool calls to MCP servers over a persistent
// WebSocket connection, one per suite, with correlation by request id.
type WebSocket struct {
	mu      sync.Mutex
	suites  map[string]WebSocketSuite
	conns   map[string]*wsConn
	nextID  int64
	dialer  *websocket.Dialer
}

type wsConn struct {
	conn    *websocket.Conn
	mu      sync.Mutex // serializes writes
	pending sync.Map    // id -> chan rpcResponse
}

// NewWebSocket constructs a WebSocket caller over the given suite configuration.
func NewWebSocket(suites map[string]WebSocketSuite) *WebSocket {
	return &WebSocket{
		suites: suites,
		conns:  make(map[string]*wsConn),
		dialer: websocket.DefaultDialer,
	}
}

// CallTool implements tool.MCPCaller.
func (w *WebSocket) CallTool(ctx context.Context, suite, toolName string, input json.RawMessage) (json.RawMessage, error) {
	conn, err := w.connection(ctx, suite)
	if err != nil {
		return nil, err
	}

	var args map[string]any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, fmt.Errorf("mcptransport: decode arguments for %s/%s: %w", suite, toolName, err)
		}
	}

	id := atomic.AddInt64(&w.nextID, 1)
	respCh := make(chan rpcResponse, 1)
	conn.pending.Store(id, respCh)
	defer conn.pending.Delete(id)

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "tools/call",
		Params:  map[string]any{"name": toolName, "arguments": args},
	}

	conn.mu.Lock()
	writeErr := conn.conn.WriteJSON(req)
	conn.mu.Unlock()
	if writeErr != nil {
		return nil, fmt.Errorf("mcptransport: write %s/%s: %w", suite, toolName, writeErr)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, fmt.Errorf("mcptransport: call %s/%s: %w", suite, toolName, resp.Error)
		}
		var result toolCallResult
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, fmt.Errorf("mcptransport: decode result for %s/%s: %w", suite, toolName, err)
		}
		if result.IsError {
			return nil, fmt.Errorf("mcptransport: tool %s/%s returned an error result", suite, toolName)
		}
		for _, c := range result.Content {
			if c.Type == "text" {
				return json.Marshal(c.Text)
			}
		}
		if len(result.StructuredContent) > 0 {
			return result.StructuredContent, nil
		}
		return json.RawMessage("null"), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *WebSocket) connection(ctx context.Context, suite string) (*wsConn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if c, ok := w.conns[suite]; ok {
		return c, nil
	}

	cfg, ok := w.suites[suite]
	if !ok {
		return nil, fmt.Errorf("mcptransport: unknown websocket suite %q", suite)
	}

	conn, _, err := w.dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("mcptransport: dial websocket suite %q: %w", suite, err)
	}

	wc := &wsConn{conn: conn}
	go wc.readLoop()
	w.conns[suite] = wc
	return wc, nil
}

// readLoop demultiplexes responses to their waiting caller by request id.
// Malformed frames are dropped; the connection is otherwise long-lived for
// the process lifetime of the runtime.
func (c *wsConn) readLoop() {
	for {
		var resp rpcResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			return
		}
		if ch, ok := c.pending.Load(resp.ID); ok {
			ch.(chan rpcResponse) <- resp
		}
	}
}
