// Package api exposes the gateway over HTTP (REST and JSON-RPC) and serves
// the gRPC health service.
package api

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/health"

	"github.com/AltairaLabs/mcp-gateway/internal/coordinator"
	"github.com/AltairaLabs/mcp-gateway/internal/ratelimit"
	"github.com/AltairaLabs/mcp-gateway/internal/registry"
)

// MaxRequestBodySize bounds every request body
const MaxRequestBodySize = 1 << 20

// Deps are the services the HTTP surface fronts
type Deps struct {
	Sessions   *coordinator.SessionManager
	Registry   *registry.Registry
	Dispatcher *coordinator.Dispatcher
	Limiter    *ratelimit.Limiter
	RPC        *coordinator.RPCHandler
	Health     *health.Server
	Logger     *slog.Logger
	Version    string
	Now        func() time.Time
}

// Server implements the REST endpoints and POST /mcp
type Server struct {
	sessions   *coordinator.SessionManager
	registry   *registry.Registry
	dispatcher *coordinator.Dispatcher
	limiter    *ratelimit.Limiter
	rpc        *coordinator.RPCHandler
	health     *health.Server
	logger     *slog.Logger
	version    string
	now        func() time.Time
	started    time.Time
	draining   atomic.Bool
}

// NewServer creates the HTTP surface
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Health == nil {
		deps.Health = NewHealthServer()
	}
	return &Server{
		sessions:   deps.Sessions,
		registry:   deps.Registry,
		dispatcher: deps.Dispatcher,
		limiter:    deps.Limiter,
		rpc:        deps.RPC,
		health:     deps.Health,
		logger:     deps.Logger.With("component", "http"),
		version:    deps.Version,
		now:        deps.Now,
		started:    deps.Now(),
	}
}

// Handler returns the routed handler wrapped in logging and recovery
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /session/create", s.handleCreateSession)
	mux.HandleFunc("GET /session/{id}/status", s.handleSessionStatus)
	mux.HandleFunc("POST /session/{id}/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("DELETE /session/{id}", s.handleEndSession)

	mux.HandleFunc("GET /mcp/tools", s.handleListTools)
	mux.HandleFunc("POST /mcp/tools/execute", s.handleExecute)
	mux.HandleFunc("GET /mcp/tools/status/{id}", s.handleExecutionStatus)
	mux.HandleFunc("GET /mcp/status", s.handleMCPStatus)
	mux.HandleFunc("POST /mcp", s.handleRPC)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/mcp", s.handleMCPHealth)

	return chain(mux, s.recoverPanics, s.logRequests)
}

// Drain marks the server as shutting down; health endpoints report it
// and the gRPC health service flips to NOT_SERVING
func (s *Server) Drain() {
	s.draining.Store(true)
	SetServing(s.health, false)
}
