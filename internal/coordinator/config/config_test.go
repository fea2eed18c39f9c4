package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultSessionIdleTimeout, cfg.Sessions.IdleTimeout)
	assert.Equal(t, DefaultExecutionTimeout, cfg.Execution.Timeout)
	assert.Equal(t, DefaultQueueWait, cfg.Execution.QueueWait)
	assert.Equal(t, DefaultDocumentPoolSize, cfg.Execution.DocumentPoolSize)
	assert.Equal(t, DefaultSearchPoolSize, cfg.Execution.SearchPoolSize)
	assert.Equal(t, DefaultToolExecutionLimit, cfg.RateLimits.ToolExecution)
	require.NoError(t, cfg.Validate())
}

func TestLoad_ValidConfig(t *testing.T) {
	t.Setenv("TEST_TOOLS_ROOT", "/srv/docs")
	configPath := filepath.Join(t.TempDir(), "gateway.yaml")
	content := `
server:
  http_addr: "0.0.0.0:9090"
  shutdown_timeout: "5s"

sessions:
  idle_timeout: "12h"

execution:
  document_pool_size: 4
  timeout: "10s"
  queue_wait: "500ms"

rate_limits:
  tool_execution: 2

tools:
  root: "${TEST_TOOLS_ROOT}"
  allowed_hosts:
    - "example.com"

logging:
  level: "debug"
  format: "text"
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.HTTPAddr)
	assert.Equal(t, DefaultGRPCAddr, cfg.Server.GRPCAddr, "omitted fields keep defaults")
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 12*time.Hour, cfg.Sessions.IdleTimeout)
	assert.Equal(t, DefaultSessionSweepInterval, cfg.Sessions.SweepInterval)
	assert.Equal(t, 4, cfg.Execution.DocumentPoolSize)
	assert.Equal(t, DefaultSearchPoolSize, cfg.Execution.SearchPoolSize)
	assert.Equal(t, 10*time.Second, cfg.Execution.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Execution.QueueWait)
	assert.Equal(t, 2, cfg.RateLimits.ToolExecution)
	assert.Equal(t, DefaultChatLimit, cfg.RateLimits.Chat)
	assert.Equal(t, "/srv/docs", cfg.Tools.Root)
	assert.Equal(t, []string{"example.com"}, cfg.Tools.AllowedHosts)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultHTTPAddr, cfg.Server.HTTPAddr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvHTTPAddr, "127.0.0.1:1")
	t.Setenv(EnvGRPCAddr, "127.0.0.1:2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1", cfg.Server.HTTPAddr)
	assert.Equal(t, "127.0.0.1:2", cfg.Server.GRPCAddr)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad yaml", "server: [", "parsing config file"},
		{"bad duration", "execution:\n  timeout: \"soon\"\n", "execution.timeout"},
		{"zero timeout", "execution:\n  timeout: \"0s\"\n", "execution.timeout must be positive"},
		{"bad pool", "execution:\n  search_pool_size: 0\n", "pool sizes"},
		{"bad format", "logging:\n  format: xml\n", "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "gateway.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("GW_TEST_VALUE", "hello")
	assert.Equal(t, "a: hello", expandEnvVars("a: ${GW_TEST_VALUE}"))
	assert.Equal(t, "a: ", expandEnvVars("a: ${GW_TEST_UNSET_VALUE}"))
}

func TestTimingConstants(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected time.Duration
	}{
		{"DefaultSessionIdleTimeout", DefaultSessionIdleTimeout, 24 * time.Hour},
		{"DefaultExecutionTimeout", DefaultExecutionTimeout, 30 * time.Second},
		{"DefaultQueueWait", DefaultQueueWait, 2 * time.Second},
		{"DefaultExecutionRetention", DefaultExecutionRetention, time.Hour},
		{"DefaultRateLimitWindow", DefaultRateLimitWindow, time.Minute},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, test.duration)
		})
	}
}
