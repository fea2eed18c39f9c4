package config

import "time"

// Default timing configurations used throughout the gateway
const (
	// DefaultSessionIdleTimeout is how long a session may go without activity before it expires
	DefaultSessionIdleTimeout = 24 * time.Hour

	// DefaultSessionSweepInterval is how often idle sessions are swept
	DefaultSessionSweepInterval = 1 * time.Minute

	// DefaultSessionRetention is how long ended sessions stay queryable
	DefaultSessionRetention = 1 * time.Hour

	// DefaultExecutionTimeout is the deadline for a single tool call
	DefaultExecutionTimeout = 30 * time.Second

	// DefaultQueueWait is how long an execution waits for a worker slot before SERVER_BUSY
	DefaultQueueWait = 2 * time.Second

	// DefaultExecutionRetention is how long settled executions stay pollable
	DefaultExecutionRetention = 1 * time.Hour

	// DefaultCacheCleanupInterval is how often expired executions are evicted
	DefaultCacheCleanupInterval = 1 * time.Minute

	// DefaultRateLimitWindow is the rolling window for every rate limit category
	DefaultRateLimitWindow = 1 * time.Minute

	// DefaultShutdownTimeout bounds graceful shutdown of the servers
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultFetchTimeout bounds one web fetch inside the execution deadline
	DefaultFetchTimeout = 20 * time.Second
)

// Default pool sizes and budgets
const (
	// DefaultDocumentPoolSize caps concurrent document-style tool calls
	DefaultDocumentPoolSize = 10

	// DefaultSearchPoolSize caps concurrent search-style tool calls
	DefaultSearchPoolSize = 20

	// DefaultChatLimit is the chat budget per window
	DefaultChatLimit = 10

	// DefaultToolExecutionLimit is the tool_execution budget per window
	DefaultToolExecutionLimit = 5

	// DefaultDocumentOpsLimit is the document_ops budget per window
	DefaultDocumentOpsLimit = 20

	// DefaultMCPOpsLimit is the mcp_ops budget per window
	DefaultMCPOpsLimit = 15

	// DefaultMaxFileBytes caps what file_reader will return
	DefaultMaxFileBytes = 1 << 20

	// DefaultMaxFetchBytes caps what web_content_fetcher will read
	DefaultMaxFetchBytes = 2 << 20
)

// Default listen addresses
const (
	DefaultHTTPAddr = "127.0.0.1:8080"
	DefaultGRPCAddr = "127.0.0.1:50051"
)
