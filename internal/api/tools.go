package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/AltairaLabs/mcp-gateway/internal/coordinator"
	"github.com/AltairaLabs/mcp-gateway/internal/coordinator/config"
	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
	"github.com/AltairaLabs/mcp-gateway/internal/ratelimit"
)

// ListToolsResponse is the reply to GET /mcp/tools
type ListToolsResponse struct {
	Tools              []protocol.ToolInfo         `json:"tools"`
	ProtocolVersion    string                      `json:"protocol_version"`
	ServerCapabilities protocol.ServerCapabilities `json:"server_capabilities"`
	ConnectionStatus   coordinator.SessionState    `json:"connection_status"`
	// Revision changes whenever the registry does; clients poll it to re-discover
	Revision uint64 `json:"revision"`
}

// ExecuteRequest is the body of POST /mcp/tools/execute
type ExecuteRequest struct {
	SessionID  string         `json:"session_id"`
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
	Async      bool           `json:"async"`
}

// sessionID reads the session from the Mcp-Session-Id header, falling back
// to the session_id query parameter
func sessionID(r *http.Request) string {
	if id := r.Header.Get(protocol.SessionHeader); id != "" {
		return id
	}
	return r.URL.Query().Get("session_id")
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	revision := s.registry.Revision()
	list, err := s.rpc.ListTools(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, ok := s.sessions.Get(id)
	if !ok {
		s.writeError(w, r, protocol.SessionNotFound(id))
		return
	}
	s.writeJSON(w, http.StatusOK, ListToolsResponse{
		Tools:              list.Tools,
		ProtocolVersion:    sess.ProtocolVersion,
		ServerCapabilities: sess.Capabilities.Server,
		ConnectionStatus:   sess.State,
		Revision:           revision,
	})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.SessionID == "" {
		req.SessionID = sessionID(r)
	}
	if req.SessionID == "" {
		s.writeError(w, r, protocol.InvalidRequest(config.ErrNoSessionHeader))
		return
	}
	if req.ToolName == "" {
		s.writeError(w, r, protocol.InvalidParams("tool_name is required"))
		return
	}

	exec, err := s.dispatcher.Execute(r.Context(), coordinator.ExecuteRequest{
		SessionID:  req.SessionID,
		ToolName:   req.ToolName,
		Parameters: req.Parameters,
		Async:      req.Async,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if d, err := s.limiter.Peek(req.SessionID, ratelimit.CategoryToolExecution); err == nil && d.Remaining >= 0 {
		setRateLimitHeaders(w.Header(), d.Limit, d.Remaining, protocol.ResetEpoch(d.Reset))
	}
	status := http.StatusOK
	if !exec.Status.Terminal() {
		status = http.StatusAccepted
	}
	s.writeJSON(w, status, exec)
}

// handleExecutionStatus returns the execution snapshot. With ?wait=<duration>
// it long-polls until the execution settles, bounded by the execution timeout.
func (s *Server) handleExecutionStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wait, err := waitParam(r, s.dispatcher.Timeout())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var exec *coordinator.ToolExecution
	if wait > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()
		exec, err = s.dispatcher.Wait(ctx, id)
		if errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}
	} else {
		exec, err = s.dispatcher.Status(id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, exec)
}

func waitParam(r *http.Request, limit time.Duration) (time.Duration, error) {
	raw := r.URL.Query().Get("wait")
	if raw == "" {
		return 0, nil
	}
	wait, err := time.ParseDuration(raw)
	if err != nil || wait < 0 {
		return 0, protocol.InvalidParams(fmt.Sprintf("wait %q is not a valid duration", raw))
	}
	return min(wait, limit), nil
}
