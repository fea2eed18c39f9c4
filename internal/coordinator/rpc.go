package coordinator

import (
	"context"
	"log/slog"
	"strings"

	"github.com/AltairaLabs/mcp-gateway/internal/coordinator/config"
	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
	"github.com/AltairaLabs/mcp-gateway/internal/ratelimit"
	"github.com/AltairaLabs/mcp-gateway/internal/registry"
)

// RPCHandler routes decoded JSON-RPC requests to the session manager,
// registry and dispatcher
type RPCHandler struct {
	sessions   *SessionManager
	registry   *registry.Registry
	dispatcher *Dispatcher
	limiter    *ratelimit.Limiter
	serverInfo protocol.ServerInfo
	logger     *slog.Logger
}

// NewRPCHandler creates a JSON-RPC router
func NewRPCHandler(
	sessions *SessionManager,
	reg *registry.Registry,
	dispatcher *Dispatcher,
	limiter *ratelimit.Limiter,
	serverInfo protocol.ServerInfo,
	logger *slog.Logger,
) *RPCHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RPCHandler{
		sessions:   sessions,
		registry:   reg,
		dispatcher: dispatcher,
		limiter:    limiter,
		serverInfo: serverInfo,
		logger:     logger,
	}
}

// ServerInfo returns the identity advertised at handshake
func (h *RPCHandler) ServerInfo() protocol.ServerInfo {
	return h.serverInfo
}

// HandlePayload decodes, routes and encodes one request. It returns nil for
// notifications. sessionID is the session bound to the transport, if any;
// the returned id is the session established or used by the call.
func (h *RPCHandler) HandlePayload(ctx context.Context, sessionID string, payload []byte) ([]byte, string) {
	req, perr := protocol.DecodeRequest(payload)
	if perr != nil {
		var id []byte
		if req != nil {
			id = req.ID
		}
		h.logger.DebugContext(ctx, "rejected json-rpc payload", "error", perr)
		data, _ := protocol.EncodeResponse(protocol.NewErrorResponse(id, perr))
		return data, sessionID
	}

	resp, sid := h.Handle(ctx, sessionID, req)
	if resp == nil {
		return nil, sid
	}
	data, err := protocol.EncodeResponse(resp)
	if err != nil {
		h.logger.ErrorContext(ctx, "encoding json-rpc response", "error", err)
	}
	return data, sid
}

// Handle routes one decoded request. A nil response means none is due.
func (h *RPCHandler) Handle(ctx context.Context, sessionID string, req *protocol.Request) (*protocol.Response, string) {
	if req.IsNotification() {
		if !strings.HasPrefix(req.Method, "notifications/") {
			h.logger.DebugContext(ctx, "ignoring notification for unknown method", "method", req.Method)
		}
		return nil, sessionID
	}

	var (
		result any
		err    error
	)
	switch req.Method {
	case protocol.MethodInitialize:
		var sess *Session
		sess, result, err = h.initialize(ctx, req)
		if sess != nil {
			sessionID = sess.ID
		}
	case protocol.MethodToolsList:
		result, err = h.listTools(sessionID)
	case protocol.MethodToolsCall:
		result, err = h.callTool(ctx, sessionID, req)
	default:
		err = protocol.MethodNotFound("method", req.Method)
	}

	if err != nil {
		perr := protocol.FromError(err)
		if perr.Code == protocol.CodeInternal {
			h.logger.ErrorContext(ctx, "json-rpc internal error",
				"method", req.Method,
				"session_id", sessionID,
				"error", err,
			)
		}
		return protocol.NewErrorResponse(req.ID, perr), sessionID
	}
	return protocol.NewResult(req.ID, result), sessionID
}

func (h *RPCHandler) initialize(ctx context.Context, req *protocol.Request) (*Session, *protocol.InitializeResult, error) {
	var params protocol.InitializeParams
	if perr := protocol.DecodeParams(req, &params); perr != nil {
		return nil, nil, perr
	}

	sess, err := h.sessions.Create(ctx, CreateSessionRequest{
		UserID:             metaString(params.Meta, "user_id"),
		DocumentID:         metaString(params.Meta, "document_id"),
		ProtocolVersion:    params.ProtocolVersion,
		ClientCapabilities: params.Capabilities,
		ClientInfo:         params.ClientInfo,
	})
	if err != nil {
		return nil, nil, err
	}

	return sess, &protocol.InitializeResult{
		ProtocolVersion: sess.ProtocolVersion,
		Capabilities:    sess.Capabilities.Server,
		ServerInfo:      h.serverInfo,
		Meta:            map[string]any{"session_id": sess.ID},
	}, nil
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

// ListTools returns the tool listing for a live session, charged to mcp_ops
func (h *RPCHandler) ListTools(sessionID string) (*protocol.ToolsListResult, error) {
	return h.listTools(sessionID)
}

func (h *RPCHandler) listTools(sessionID string) (*protocol.ToolsListResult, error) {
	if sessionID == "" {
		return nil, protocol.InvalidRequest(config.ErrNoSessionHeader)
	}
	if _, err := h.sessions.Require(sessionID); err != nil {
		return nil, err
	}
	decision, err := h.limiter.Admit(sessionID, ratelimit.CategoryMCPOps)
	if err != nil {
		return nil, protocol.Internal(err)
	}
	if !decision.Allowed {
		return nil, protocol.RateLimited(string(ratelimit.CategoryMCPOps), decision.Limit, decision.Reset)
	}
	if _, err := h.sessions.Touch(sessionID); err != nil {
		return nil, err
	}

	descriptors := h.registry.List()
	result := &protocol.ToolsListResult{Tools: make([]protocol.ToolInfo, 0, len(descriptors))}
	for _, d := range descriptors {
		result.Tools = append(result.Tools, d.Info())
	}
	return result, nil
}

func (h *RPCHandler) callTool(ctx context.Context, sessionID string, req *protocol.Request) (*protocol.CallToolResult, error) {
	if sessionID == "" {
		return nil, protocol.InvalidRequest(config.ErrNoSessionHeader)
	}
	var params protocol.CallToolParams
	if perr := protocol.DecodeParams(req, &params); perr != nil {
		return nil, perr
	}
	if params.Name == "" {
		return nil, protocol.InvalidParams("tool name is required")
	}

	exec, err := h.dispatcher.Execute(ctx, ExecuteRequest{
		SessionID:  sessionID,
		ToolName:   params.Name,
		Parameters: params.Arguments,
	})
	if err != nil {
		return nil, err
	}
	return CallResult(exec)
}

// CallResult converts a settled execution into a tools/call result, or the
// error recorded on it
func CallResult(exec *ToolExecution) (*protocol.CallToolResult, error) {
	meta := map[string]any{"execution_id": exec.ExecutionID}
	switch exec.Status {
	case ExecutionCompleted:
		return &protocol.CallToolResult{Content: exec.Result, Meta: meta}, nil
	case ExecutionError:
		return nil, exec.Error.AsError().WithData("execution_id", exec.ExecutionID)
	default:
		// the caller went away before the execution settled
		return &protocol.CallToolResult{
			Content: []protocol.Content{},
			Meta: map[string]any{
				"execution_id": exec.ExecutionID,
				"status":       string(exec.Status),
			},
		}, nil
	}
}
