package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/AltairaLabs/mcp-gateway/internal/coordinator"
	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
	"github.com/AltairaLabs/mcp-gateway/internal/tools"
)

// HealthService is the service name reported by the gRPC health service
const HealthService = "mcp.gateway"

const systemStatsTimeout = 500 * time.Millisecond

// NewHealthServer creates a gRPC health service reporting SERVING
func NewHealthServer() *health.Server {
	hs := health.NewServer()
	SetServing(hs, true)
	return hs
}

// RegisterHealth attaches hs to a gRPC server
func RegisterHealth(gs *grpc.Server, hs *health.Server) {
	healthpb.RegisterHealthServer(gs, hs)
}

// SetServing flips both the overall and the gateway service status
func SetServing(hs *health.Server, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus("", status)
	hs.SetServingStatus(HealthService, status)
}

// SystemStats are host metrics reported on /health
type SystemStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_used_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
	Goroutines    int     `json:"goroutines"`
}

// HealthResponse is the reply to GET /health
type HealthResponse struct {
	Status        string       `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	System        *SystemStats `json:"system,omitempty"`
}

// MCPHealthResponse is the reply to GET /health/mcp
type MCPHealthResponse struct {
	Status          string `json:"status"`
	MCPServerStatus string `json:"mcp_server_status"`
	ProtocolVersion string `json:"protocol_version"`
	ToolsRegistered int    `json:"tools_registered"`
}

// MCPStatusResponse is the reply to GET /mcp/status
type MCPStatusResponse struct {
	Status             string                               `json:"status"`
	ProtocolVersion    string                               `json:"protocol_version"`
	ServerInfo         protocol.ServerInfo                  `json:"server_info"`
	ServerCapabilities protocol.ServerCapabilities          `json:"server_capabilities"`
	ToolsRegistered    int                                  `json:"tools_registered"`
	Revision           uint64                               `json:"revision"`
	Sessions           map[coordinator.SessionState]int     `json:"sessions"`
	InFlight           int                                  `json:"in_flight_executions"`
	RetainedExecutions int                                  `json:"retained_executions"`
	Pools              map[tools.Pool]coordinator.PoolStats `json:"pools"`
	UptimeSeconds      int64                                `json:"uptime_seconds"`
}

func (s *Server) uptime() int64 {
	return int64(s.now().Sub(s.started) / time.Second)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "healthy",
		Version:       s.version,
		UptimeSeconds: s.uptime(),
		System:        systemStats(r.Context()),
	}
	status := http.StatusOK
	if s.draining.Load() {
		resp.Status = "shutting_down"
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleMCPHealth(w http.ResponseWriter, r *http.Request) {
	resp := MCPHealthResponse{
		Status:          "healthy",
		MCPServerStatus: s.serverStatus(),
		ProtocolVersion: protocol.ProtocolVersion,
		ToolsRegistered: s.registry.Len(),
	}
	status := http.StatusOK
	switch {
	case s.draining.Load():
		resp.Status = "shutting_down"
		status = http.StatusServiceUnavailable
	case resp.ToolsRegistered == 0:
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleMCPStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, MCPStatusResponse{
		Status:             s.serverStatus(),
		ProtocolVersion:    protocol.ProtocolVersion,
		ServerInfo:         s.rpc.ServerInfo(),
		ServerCapabilities: protocol.DefaultServerCapabilities(),
		ToolsRegistered:    s.registry.Len(),
		Revision:           s.registry.Revision(),
		Sessions:           s.sessions.SessionCounts(),
		InFlight:           s.dispatcher.InFlight(),
		RetainedExecutions: s.dispatcher.RetainedExecutions(),
		Pools:              s.dispatcher.PoolStats(),
		UptimeSeconds:      s.uptime(),
	})
}

// systemStats samples host metrics; nil when none are available
func systemStats(ctx context.Context) *SystemStats {
	ctx, cancel := context.WithTimeout(ctx, systemStatsTimeout)
	defer cancel()

	stats := &SystemStats{Goroutines: runtime.NumGoroutine()}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		stats.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemoryPercent = vm.UsedPercent
		stats.MemoryUsedMB = vm.Used / (1 << 20)
	}
	return stats
}
