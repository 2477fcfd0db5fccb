package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type rpcHandler func(params []json.RawMessage) (any, error)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcErrorBody   `json:"error,omitempty"`
}

// fakeNode answers JSON-RPC calls, single or batched, from per-method handlers.
type fakeNode struct {
	t        *testing.T
	mu       sync.Mutex
	handlers map[string]rpcHandler
	calls    map[string]int
	params   map[string][]json.RawMessage
	server   *httptest.Server
}

func newFakeNode(t *testing.T) *fakeNode {
	n := &fakeNode{
		t:        t,
		handlers: map[string]rpcHandler{},
		calls:    map[string]int{},
		params:   map[string][]json.RawMessage{},
	}
	n.server = httptest.NewServer(n)
	t.Cleanup(n.server.Close)
	return n
}

func (n *fakeNode) handle(method string, h rpcHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = h
}

func (n *fakeNode) callCount(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *fakeNode) lastParams(method string) []json.RawMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.params[method]
}

func (n *fakeNode) dial(t *testing.T) *ClientService {
	client, err := Dial(context.Background(), n.server.URL, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	body = bytes.TrimSpace(body)
	w.Header().Set("Content-Type", "application/json")

	if len(body) > 0 && body[0] == '[' {
		var reqs []rpcRequest
		if err := json.Unmarshal(body, &reqs); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resps := make([]rpcResponse, len(reqs))
		for i, req := range reqs {
			resps[i] = n.dispatch(req)
		}
		_ = json.NewEncoder(w).Encode(resps)
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_ = json.NewEncoder(w).Encode(n.dispatch(req))
}

func (n *fakeNode) dispatch(req rpcRequest) rpcResponse {
	n.mu.Lock()
	n.calls[req.Method]++
	n.params[req.Method] = req.Params
	h, ok := n.handlers[req.Method]
	n.mu.Unlock()

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	if !ok {
		resp.Error = &rpcErrorBody{Code: -32601, Message: "method not found: " + req.Method}
		return resp
	}
	result, err := h(req.Params)
	if err != nil {
		resp.Error = &rpcErrorBody{Code: -32000, Message: err.Error()}
		return resp
	}
	raw, err := json.Marshal(result)
	if err != nil {
		n.t.Errorf("marshal %s result: %v", req.Method, err)
	}
	resp.Result = raw
	return resp
}

func constant(v any) rpcHandler {
	return func([]json.RawMessage) (any, error) { return v, nil }
}

func paramString(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(raw, &s))
	return s
}
