package coordinator

import (
	"maps"
	"time"

	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
)

// SessionState represents the lifecycle state of a session
type SessionState string

const (
	// SessionStateInitializing indicates the handshake is in progress
	SessionStateInitializing SessionState = "initializing"
	// SessionStateConnected indicates the session accepts requests
	SessionStateConnected SessionState = "connected"
	// SessionStateDisconnected indicates the transport dropped; a heartbeat reconnects
	SessionStateDisconnected SessionState = "disconnected"
	// SessionStateEnded is terminal
	SessionStateEnded SessionState = "ended"
)

// Live reports whether requests may be served in this state
func (s SessionState) Live() bool {
	return s == SessionStateConnected || s == SessionStateDisconnected
}

// Capabilities is the negotiated capability set of a session
type Capabilities struct {
	Server protocol.ServerCapabilities `json:"server"`
	Client map[string]any              `json:"client,omitempty"`
}

// Session represents an MCP client session. Values handed out by the
// SessionManager are snapshots.
type Session struct {
	ID              string              `json:"session_id"`
	UserID          string              `json:"user_id,omitempty"`
	DocumentID      string              `json:"document_id,omitempty"`
	ProtocolVersion string              `json:"protocol_version"`
	Capabilities    Capabilities        `json:"capabilities"`
	ClientInfo      protocol.ClientInfo `json:"client_info"`
	State           SessionState        `json:"status"`
	EndReason       string              `json:"end_reason,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	LastActivity    time.Time           `json:"last_activity"`
	EndedAt         time.Time           `json:"ended_at,omitzero"`
}

func (s *Session) clone() *Session {
	cp := *s
	cp.Capabilities.Client = maps.Clone(s.Capabilities.Client)
	return &cp
}

// CreateSessionRequest carries the client side of a handshake
type CreateSessionRequest struct {
	UserID             string
	DocumentID         string
	ProtocolVersion    string
	ClientCapabilities map[string]any
	ClientInfo         protocol.ClientInfo
	// AllowDefaultVersion accepts an empty ProtocolVersion as the server's
	AllowDefaultVersion bool
}

// SessionStatus is the status view of a session
type SessionStatus struct {
	SessionID       string       `json:"session_id"`
	Status          SessionState `json:"status"`
	ProtocolVersion string       `json:"protocol_version"`
	Capabilities    Capabilities `json:"capabilities"`
	LastActivity    time.Time    `json:"last_activity"`
}

// SessionEndHook runs after a session ends, outside any session lock
type SessionEndHook func(sessionID, reason string)
