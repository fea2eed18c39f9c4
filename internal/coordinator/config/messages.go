package config

// Messages used throughout the gateway
const (
	// ServerName is advertised in serverInfo
	ServerName = "mcp-gateway"
	// ErrNoSessionHeader is returned when a JSON-RPC call other than initialize lacks a session
	ErrNoSessionHeader = "missing Mcp-Session-Id header"
	// MsgShuttingDown is returned by health checks during shutdown
	MsgShuttingDown = "server is shutting down"
)
