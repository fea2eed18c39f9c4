// Package protocol holds the MCP wire types, the JSON-RPC 2.0 codec and the
// error taxonomy shared by every layer of the gateway.
package protocol

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	// JSONRPCVersion is the only envelope version accepted on the wire
	JSONRPCVersion = mcp.JSONRPC_VERSION

	// ProtocolVersion is the single MCP protocol version this server speaks
	ProtocolVersion = "2024-11-05"

	// SessionHeader carries the session id on HTTP JSON-RPC requests
	SessionHeader = "Mcp-Session-Id"
)

// Methods served by the JSON-RPC router
const (
	MethodInitialize = string(mcp.MethodInitialize)
	MethodToolsList  = string(mcp.MethodToolsList)
	MethodToolsCall  = string(mcp.MethodToolsCall)
)

// Request is a JSON-RPC 2.0 request or notification envelope
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id and so expects no reply
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response is a JSON-RPC 2.0 response envelope
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error object
type RPCError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// ClientInfo describes the connecting client
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ServerInfo identifies the server, and each tool's serving component
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolCapability declares tool-related capabilities
type ToolCapability struct {
	ListChanged bool `json:"listChanged"`
}

// ServerCapabilities is the capability set advertised at handshake
type ServerCapabilities struct {
	Tools *ToolCapability `json:"tools,omitempty"`
}

// DefaultServerCapabilities returns {tools:{listChanged:true}}
func DefaultServerCapabilities() ServerCapabilities {
	return ServerCapabilities{Tools: &ToolCapability{ListChanged: true}}
}

// InitializeParams is the payload of an initialize request.
// The _meta block may carry user_id and document_id for the session.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	ClientInfo      ClientInfo     `json:"clientInfo"`
	Meta            map[string]any `json:"_meta,omitempty"`
}

// InitializeResult is the server's reply to initialize
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
	Meta            map[string]any     `json:"_meta,omitempty"`
}

// ToolInfo is one entry of a tools/list result
type ToolInfo struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	InputSchema mcp.ToolInputSchema `json:"inputSchema"`
	ServerInfo  ServerInfo          `json:"server_info"`
}

// ToolsListResult is the tools/list reply
type ToolsListResult struct {
	Tools []ToolInfo `json:"tools"`
}

// CallToolParams is the tools/call payload
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// CallToolResult is the tools/call reply
type CallToolResult struct {
	Content []Content      `json:"content"`
	IsError bool           `json:"isError,omitempty"`
	Meta    map[string]any `json:"_meta,omitempty"`
}
