package mcptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMCPWebSocketServer answers tools/call over a raw JSON-RPC/WebSocket
// connection, just enough to exercise WebSocket's request/response framing
// and id-based correlation without a real MCP server.
func fakeMCPWebSocketServer(t *testing.T, handle func(rpcRequest) rpcResponse) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req rpcRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if err := conn.WriteJSON(handle(req)); err != nil {
				return
			}
		}
	}))
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestWebSocketCallToolReturnsTextContent(t *testing.T) {
	server := fakeMCPWebSocketServer(t, func(req rpcRequest) rpcResponse {
		result := toolCallResult{Content: []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{{Type: "text", Text: "42"}}}
		raw, err := json.Marshal(result)
		require.NoError(t, err)
		return rpcResponse{ID: req.ID, Result: raw}
	})
	defer server.Close()

	w := NewWebSocket(map[string]WebSocketSuite{"calc": {URL: wsURL(server.URL)}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := w.CallTool(ctx, "calc", "add", json.RawMessage(`{"a":40,"b":2}`))
	require.NoError(t, err)
	assert.JSONEq(t, `"42"`, string(out))
}

func TestWebSocketCallToolPropagatesErrorResult(t *testing.T) {
	server := fakeMCPWebSocketServer(t, func(req rpcRequest) rpcResponse {
		raw, err := json.Marshal(toolCallResult{IsError: true})
		require.NoError(t, err)
		return rpcResponse{ID: req.ID, Result: raw}
	})
	defer server.Close()

	w := NewWebSocket(map[string]WebSocketSuite{"calc": {URL: wsURL(server.URL)}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := w.CallTool(ctx, "calc", "boom", nil)
	assert.Error(t, err)
}

func TestWebSocketCallToolPropagatesRPCError(t *testing.T) {
	server := fakeMCPWebSocketServer(t, func(req rpcRequest) rpcResponse {
		return rpcResponse{ID: req.ID, Error: &rpcError{Code: -32601, Message: "method not found"}}
	})
	defer server.Close()

	w := NewWebSocket(map[string]WebSocketSuite{"calc": {URL: wsURL(server.URL)}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := w.CallTool(ctx, "calc", "missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method not found")
}

func TestWebSocketCallToolUnknownSuite(t *testing.T) {
	w := NewWebSocket(map[string]WebSocketSuite{})
	_, err := w.CallTool(context.Background(), "missing", "tool", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown websocket suite")
}

func TestWebSocketConnectionIsReused(t *testing.T) {
	var calls int
	server := fakeMCPWebSocketServer(t, func(req rpcRequest) rpcResponse {
		calls++
		raw, _ := json.Marshal(toolCallResult{StructuredContent: json.RawMessage(`{"ok":true}`)})
		return rpcResponse{ID: req.ID, Result: raw}
	})
	defer server.Close()

	w := NewWebSocket(map[string]WebSocketSuite{"calc": {URL: wsURL(server.URL)}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := w.CallTool(ctx, "calc", "one", nil)
	require.NoError(t, err)
	_, err = w.CallTool(ctx, "calc", "two", nil)
	require.NoError(t, err)

	w.mu.Lock()
	n := len(w.conns)
	w.mu.Unlock()
	assert.Equal(t, 1, n, "a second call against the same suite must reuse the dialed connection")
	assert.Equal(t, 2, calls)
}
