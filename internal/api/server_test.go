package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/mcp-gateway/internal/coordinator"
	"github.com/AltairaLabs/mcp-gateway/internal/coordinator/config"
	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
	"github.com/AltairaLabs/mcp-gateway/internal/ratelimit"
	"github.com/AltairaLabs/mcp-gateway/internal/registry"
	"github.com/AltairaLabs/mcp-gateway/internal/tools"
	"github.com/AltairaLabs/mcp-gateway/internal/tools/handlers/builtin"
)

type testEnv struct {
	srv        *Server
	http       *httptest.Server
	dispatcher *coordinator.Dispatcher
	registry   *registry.Registry
	started    chan struct{}
}

func newTestEnv(t *testing.T, withBlocking bool) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	info := protocol.ServerInfo{Name: config.ServerName, Version: "test"}

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "readme.txt"), []byte("hello"), 0o600))
	toolsCfg := config.DefaultConfig().Tools
	toolsCfg.Root = root

	reg := registry.New(info)
	require.NoError(t, builtin.Register(reg, toolsCfg))

	env := &testEnv{registry: reg, started: make(chan struct{}, 8)}
	if withBlocking {
		require.NoError(t, reg.Register(tools.New(
			mcp.NewTool("blocking", mcp.WithDescription("Blocks until cancelled")),
			tools.PoolDocument,
			func(ctx context.Context, _ mcp.CallToolRequest) (*tools.Result, error) {
				env.started <- struct{}{}
				<-ctx.Done()
				return nil, ctx.Err()
			},
		)))
	}

	sessions := coordinator.NewSessionManager(coordinator.DefaultSessionManagerConfig(), logger)
	limiter := ratelimit.New()
	dcfg := coordinator.DefaultDispatcherConfig()
	dcfg.Timeout = 5 * time.Second
	dispatcher := coordinator.NewDispatcher(reg, sessions, limiter, dcfg, logger)
	rpc := coordinator.NewRPCHandler(sessions, reg, dispatcher, limiter, info, logger)

	env.dispatcher = dispatcher
	env.srv = NewServer(Deps{
		Sessions:   sessions,
		Registry:   reg,
		Dispatcher: dispatcher,
		Limiter:    limiter,
		RPC:        rpc,
		Logger:     logger,
		Version:    "test",
	})
	env.http = httptest.NewServer(env.srv.Handler())
	t.Cleanup(func() {
		env.http.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = dispatcher.Shutdown(ctx)
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, sessionID string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.http.URL+path, reader)
	require.NoError(t, err)
	if sessionID != "" {
		req.Header.Set(protocol.SessionHeader, sessionID)
	}
	resp, err := e.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (e *testEnv) createSession(t *testing.T) string {
	t.Helper()
	resp, data := e.do(t, http.MethodPost, "/session/create", "", map[string]any{
		"user_id":          "user-1",
		"document_id":      "doc-1",
		"protocol_version": "2024-11-05",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	var created CreateSessionResponse
	require.NoError(t, json.Unmarshal(data, &created))
	return created.SessionID
}

func (e *testEnv) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-e.started:
	case <-time.After(5 * time.Second):
		t.Fatal("blocking tool did not start")
	}
}

func decodeError(t *testing.T, data []byte) *protocol.RPCError {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(data, &body), string(data))
	require.NotNil(t, body.Error, string(data))
	return body.Error
}

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t, false)

	resp, data := env.do(t, http.MethodPost, "/session/create", "", map[string]any{"user_id": "u1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created CreateSessionResponse
	require.NoError(t, json.Unmarshal(data, &created))
	assert.NotEmpty(t, created.SessionID)
	assert.Equal(t, created.SessionID, resp.Header.Get(protocol.SessionHeader))
	assert.Equal(t, coordinator.SessionStateConnected, created.Status)
	assert.Equal(t, protocol.ProtocolVersion, created.MCPProtocolVersion, "empty version defaults on rest")
	require.NotNil(t, created.MCPCapabilities.Tools)
	assert.True(t, created.MCPCapabilities.Tools.ListChanged)
	assert.Equal(t, config.ServerName, created.ServerInfo.Name)
}

func TestCreateSessionErrors(t *testing.T) {
	env := newTestEnv(t, false)

	resp, data := env.do(t, http.MethodPost, "/session/create", "", map[string]any{"protocol_version": "2023-01-01"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, -32002, decodeError(t, data).Code)

	resp, data = env.do(t, http.MethodPost, "/session/create", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, -32700, decodeError(t, data).Code)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, true)
	sid := env.createSession(t)

	resp, data := env.do(t, http.MethodGet, "/session/"+sid+"/status", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status map[string]any
	require.NoError(t, json.Unmarshal(data, &status))
	assert.Equal(t, "connected", status["status"])
	assert.Equal(t, "running", status["mcp_server_status"])
	assert.Equal(t, "2024-11-05", status["protocol_version"])

	resp, data = env.do(t, http.MethodPost, "/session/"+sid+"/heartbeat", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hb HeartbeatResponse
	require.NoError(t, json.Unmarshal(data, &hb))
	assert.Equal(t, sid, hb.SessionID)
	assert.False(t, hb.LastActivity.IsZero())

	// one execution left running
	resp, data = env.do(t, http.MethodPost, "/mcp/tools/execute", "", map[string]any{
		"session_id": sid, "tool_name": "blocking", "async": true,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(data))
	var exec coordinator.ToolExecution
	require.NoError(t, json.Unmarshal(data, &exec))
	env.waitStarted(t)

	resp, data = env.do(t, http.MethodDelete, "/session/"+sid, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ended EndSessionResponse
	require.NoError(t, json.Unmarshal(data, &ended))
	assert.Equal(t, coordinator.SessionStateEnded, ended.Status)
	assert.Equal(t, 1, ended.CancelledExecutions)

	resp, data = env.do(t, http.MethodGet, "/mcp/tools/status/"+exec.ExecutionID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var settled coordinator.ToolExecution
	require.NoError(t, json.Unmarshal(data, &settled))
	assert.Equal(t, coordinator.ExecutionError, settled.Status)
	require.NotNil(t, settled.Error)
	assert.Equal(t, protocol.CodeSessionEnded, settled.Error.ErrorCode)

	resp, _ = env.do(t, http.MethodPost, "/session/"+sid+"/heartbeat", "", nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	resp, data = env.do(t, http.MethodGet, "/session/"+sid+"/status", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"status":"ended"`)
}

func TestUnknownSession(t *testing.T) {
	env := newTestEnv(t, false)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/session/nope/status"},
		{http.MethodPost, "/session/nope/heartbeat"},
		{http.MethodDelete, "/session/nope"},
	} {
		resp, data := env.do(t, tc.method, tc.path, "", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, tc.path)
		rpcErr := decodeError(t, data)
		assert.Equal(t, -32001, rpcErr.Code)
		assert.Equal(t, protocol.ReasonUnknownSession, rpcErr.Data["reason"])
	}
}

func TestListTools(t *testing.T) {
	env := newTestEnv(t, false)
	sid := env.createSession(t)

	resp, data := env.do(t, http.MethodGet, "/mcp/tools", sid, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var list ListToolsResponse
	require.NoError(t, json.Unmarshal(data, &list))
	names := make([]string, 0, len(list.Tools))
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, config.AllTools(), names)
	assert.Equal(t, env.registry.Revision(), list.Revision)
	assert.Equal(t, coordinator.SessionStateConnected, list.ConnectionStatus)
	assert.Equal(t, protocol.ProtocolVersion, list.ProtocolVersion)

	resp, _ = env.do(t, http.MethodGet, "/mcp/tools?session_id="+sid, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data = env.do(t, http.MethodGet, "/mcp/tools", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, -32600, decodeError(t, data).Code)
}

func TestExecuteSyncWithRateLimitHeaders(t *testing.T) {
	env := newTestEnv(t, false)
	sid := env.createSession(t)

	body := map[string]any{
		"session_id": sid,
		"tool_name":  config.ToolTextProcessor,
		"parameters": map[string]any{"text": "abc", "operation": "summarize"},
	}
	for i := 1; i <= 5; i++ {
		resp, data := env.do(t, http.MethodPost, "/mcp/tools/execute", "", body)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
		assert.Equal(t, "5", resp.Header.Get("X-RateLimit-Limit"))
		assert.Equal(t, string(rune('0'+5-i)), resp.Header.Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Reset"))

		var exec coordinator.ToolExecution
		require.NoError(t, json.Unmarshal(data, &exec))
		assert.Equal(t, coordinator.ExecutionCompleted, exec.Status)
		require.Len(t, exec.Result, 1)
		assert.Equal(t, "abc", exec.Result[0].Text)
	}

	resp, data := env.do(t, http.MethodPost, "/mcp/tools/execute", "", body)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	rpcErr := decodeError(t, data)
	assert.Equal(t, -32004, rpcErr.Code)
	assert.Equal(t, true, rpcErr.Data["retryable"])
}

func TestExecuteValidation(t *testing.T) {
	env := newTestEnv(t, false)
	sid := env.createSession(t)

	tests := []struct {
		name   string
		body   any
		status int
		code   int
	}{
		{"no session", map[string]any{"tool_name": "text_processor"}, http.StatusBadRequest, -32600},
		{"no tool", map[string]any{"session_id": sid}, http.StatusBadRequest, -32602},
		{"unknown tool", map[string]any{"session_id": sid, "tool_name": "nonexistent_tool"}, http.StatusNotFound, -32601},
		{"missing params", map[string]any{"session_id": sid, "tool_name": "text_processor"}, http.StatusBadRequest, -32602},
		{"bad enum", map[string]any{
			"session_id": sid, "tool_name": "text_processor",
			"parameters": map[string]any{"text": "x", "operation": "translate"},
		}, http.StatusBadRequest, -32602},
		{"bad json", "{", http.StatusBadRequest, -32700},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := env.do(t, http.MethodPost, "/mcp/tools/execute", "", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(data))
			assert.Equal(t, tt.code, decodeError(t, data).Code)
		})
	}
}

func TestExecuteWrongTypeNamesFieldOnly(t *testing.T) {
	env := newTestEnv(t, false)
	sid := env.createSession(t)

	resp, data := env.do(t, http.MethodPost, "/mcp/tools/execute", sid, map[string]any{"tool_name": 5})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, string(data))
	rpcErr := decodeError(t, data)
	assert.Equal(t, -32602, rpcErr.Code)
	assert.Equal(t, `invalid request body: field "tool_name" has the wrong type`, rpcErr.Message)
	assert.NotContains(t, string(data), "Go struct")
}

func TestAsyncExecutePolling(t *testing.T) {
	env := newTestEnv(t, false)
	sid := env.createSession(t)

	resp, data := env.do(t, http.MethodPost, "/mcp/tools/execute", sid, map[string]any{
		"tool_name":  config.ToolFileReader,
		"parameters": map[string]any{"path": "readme.txt"},
		"async":      true,
	})
	require.Contains(t, []int{http.StatusOK, http.StatusAccepted}, resp.StatusCode, string(data))
	var exec coordinator.ToolExecution
	require.NoError(t, json.Unmarshal(data, &exec))
	require.NotEmpty(t, exec.ExecutionID)

	var first []byte
	require.Eventually(t, func() bool {
		resp, data := env.do(t, http.MethodGet, "/mcp/tools/status/"+exec.ExecutionID, "", nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		var polled coordinator.ToolExecution
		if json.Unmarshal(data, &polled) != nil || polled.Status != coordinator.ExecutionCompleted {
			return false
		}
		first = data
		return true
	}, 5*time.Second, 10*time.Millisecond)

	_, second := env.do(t, http.MethodGet, "/mcp/tools/status/"+exec.ExecutionID, "", nil)
	assert.Equal(t, string(first), string(second), "polling a settled execution is idempotent")
	assert.Contains(t, string(second), `"text":"hello"`)

	resp, data = env.do(t, http.MethodGet, "/mcp/tools/status/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, -32008, decodeError(t, data).Code)
}

func TestExecutionStatusLongPoll(t *testing.T) {
	env := newTestEnv(t, true)
	sid := env.createSession(t)

	resp, data := env.do(t, http.MethodPost, "/mcp/tools/execute", sid, map[string]any{
		"tool_name": "blocking",
		"async":     true,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(data))
	var exec coordinator.ToolExecution
	require.NoError(t, json.Unmarshal(data, &exec))
	env.waitStarted(t)

	resp, data = env.do(t, http.MethodGet, "/mcp/tools/status/"+exec.ExecutionID+"?wait=50ms", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var polled coordinator.ToolExecution
	require.NoError(t, json.Unmarshal(data, &polled))
	assert.Equal(t, coordinator.ExecutionRunning, polled.Status, "wait elapses without settling")

	ender := time.AfterFunc(50*time.Millisecond, func() { _ = env.srv.sessions.End(sid) })
	defer ender.Stop()
	resp, data = env.do(t, http.MethodGet, "/mcp/tools/status/"+exec.ExecutionID+"?wait=5s", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(data, &polled))
	assert.Equal(t, coordinator.ExecutionError, polled.Status)

	resp, data = env.do(t, http.MethodGet, "/mcp/tools/status/"+exec.ExecutionID+"?wait=soon", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, -32602, decodeError(t, data).Code)
}

func TestMCPStatusAndHealth(t *testing.T) {
	env := newTestEnv(t, false)
	env.createSession(t)

	resp, data := env.do(t, http.MethodGet, "/mcp/status", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status MCPStatusResponse
	require.NoError(t, json.Unmarshal(data, &status))
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, 5, status.ToolsRegistered)
	assert.Equal(t, 1, status.Sessions[coordinator.SessionStateConnected])
	assert.Equal(t, config.DefaultDocumentPoolSize, status.Pools[tools.PoolDocument].Size)

	resp, data = env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(data, &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "test", health.Version)
	require.NotNil(t, health.System)
	assert.Positive(t, health.System.Goroutines)

	resp, data = env.do(t, http.MethodGet, "/health/mcp", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"tools_registered":5`)

	env.srv.Drain()
	resp, _ = env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp, data = env.do(t, http.MethodGet, "/health/mcp", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(data), "shutting_down")
}

func TestMCPHealthDegradedWithoutTools(t *testing.T) {
	env := newTestEnv(t, false)
	for _, name := range config.AllTools() {
		require.NoError(t, env.registry.Unregister(name))
	}
	resp, data := env.do(t, http.MethodGet, "/health/mcp", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(data), "degraded")
}

func TestRecoverPanics(t *testing.T) {
	env := newTestEnv(t, false)
	h := env.srv.recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("secret internal state")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
	assert.Contains(t, rec.Body.String(), "internal error")
}

func TestUnknownRouteAndMethod(t *testing.T) {
	env := newTestEnv(t, false)
	resp, _ := env.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/session/create", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
