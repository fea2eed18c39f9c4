package api

import (
	"net/http"
	"time"

	"github.com/AltairaLabs/mcp-gateway/internal/coordinator"
	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
)

// mcpServerRunning is reported while the gateway serves requests
const mcpServerRunning = "running"

// CreateSessionRequest is the body of POST /session/create
type CreateSessionRequest struct {
	UserID          string              `json:"user_id"`
	DocumentID      string              `json:"document_id"`
	ProtocolVersion string              `json:"protocol_version"`
	Capabilities    map[string]any      `json:"capabilities,omitempty"`
	ClientInfo      protocol.ClientInfo `json:"client_info"`
}

// CreateSessionResponse is the reply to POST /session/create
type CreateSessionResponse struct {
	SessionID          string                      `json:"session_id"`
	Status             coordinator.SessionState    `json:"status"`
	MCPProtocolVersion string                      `json:"mcp_protocol_version"`
	MCPCapabilities    protocol.ServerCapabilities `json:"mcp_capabilities"`
	ServerInfo         protocol.ServerInfo         `json:"server_info"`
	CreatedAt          time.Time                   `json:"created_at"`
}

// SessionStatusResponse is the reply to GET /session/{id}/status
type SessionStatusResponse struct {
	coordinator.SessionStatus
	MCPServerStatus string `json:"mcp_server_status"`
}

// HeartbeatResponse is the reply to POST /session/{id}/heartbeat
type HeartbeatResponse struct {
	SessionID    string                   `json:"session_id"`
	Status       coordinator.SessionState `json:"status"`
	LastActivity time.Time                `json:"last_activity"`
}

// EndSessionResponse is the reply to DELETE /session/{id}
type EndSessionResponse struct {
	SessionID           string                   `json:"session_id"`
	Status              coordinator.SessionState `json:"status"`
	CancelledExecutions int                      `json:"cancelled_executions"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	sess, err := s.sessions.Create(r.Context(), coordinator.CreateSessionRequest{
		UserID:              req.UserID,
		DocumentID:          req.DocumentID,
		ProtocolVersion:     req.ProtocolVersion,
		ClientCapabilities:  req.Capabilities,
		ClientInfo:          req.ClientInfo,
		AllowDefaultVersion: true,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set(protocol.SessionHeader, sess.ID)
	s.writeJSON(w, http.StatusCreated, CreateSessionResponse{
		SessionID:          sess.ID,
		Status:             sess.State,
		MCPProtocolVersion: sess.ProtocolVersion,
		MCPCapabilities:    sess.Capabilities.Server,
		ServerInfo:         s.rpc.ServerInfo(),
		CreatedAt:          sess.CreatedAt,
	})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.sessions.Status(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SessionStatusResponse{
		SessionStatus:   status,
		MCPServerStatus: s.serverStatus(),
	})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Heartbeat(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, HeartbeatResponse{
		SessionID:    sess.ID,
		Status:       sess.State,
		LastActivity: sess.LastActivity,
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	inFlight := s.dispatcher.SessionInFlight(id)
	if err := s.sessions.End(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "session ended via api", "session_id", id, "cancelled_executions", inFlight)
	s.writeJSON(w, http.StatusOK, EndSessionResponse{
		SessionID:           id,
		Status:              coordinator.SessionStateEnded,
		CancelledExecutions: inFlight,
	})
}

func (s *Server) serverStatus() string {
	if s.draining.Load() {
		return "shutting_down"
	}
	return mcpServerRunning
}
