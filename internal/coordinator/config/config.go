// Package config loads gateway configuration from YAML with environment
// variable expansion, layered over compiled-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides applied after the file is loaded
const (
	EnvConfigPath = "GATEWAY_CONFIG"
	EnvHTTPAddr   = "GATEWAY_HTTP_ADDR"
	EnvGRPCAddr   = "GATEWAY_GRPC_ADDR"
)

// Config represents the complete gateway configuration
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Sessions   SessionConfig   `yaml:"sessions"`
	Execution  ExecutionConfig `yaml:"execution"`
	RateLimits RateLimitConfig `yaml:"rate_limits"`
	Tools      ToolsConfig     `yaml:"tools"`
	Logging    LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds listener configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`

	ShutdownTimeout    time.Duration `yaml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout"`
}

// SessionConfig holds session lifecycle timing
type SessionConfig struct {
	IdleTimeout   time.Duration `yaml:"-"`
	SweepInterval time.Duration `yaml:"-"`
	Retention     time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	IdleTimeoutRaw   string `yaml:"idle_timeout"`
	SweepIntervalRaw string `yaml:"sweep_interval"`
	RetentionRaw     string `yaml:"retention"`
}

// ExecutionConfig holds dispatcher limits
type ExecutionConfig struct {
	DocumentPoolSize int `yaml:"document_pool_size"`
	SearchPoolSize   int `yaml:"search_pool_size"`

	Timeout   time.Duration `yaml:"-"`
	QueueWait time.Duration `yaml:"-"`
	Retention time.Duration `yaml:"-"`

	TimeoutRaw   string `yaml:"timeout"`
	QueueWaitRaw string `yaml:"queue_wait"`
	RetentionRaw string `yaml:"retention"`
}

// RateLimitConfig holds per-category budgets per window
type RateLimitConfig struct {
	Chat          int `yaml:"chat"`
	ToolExecution int `yaml:"tool_execution"`
	DocumentOps   int `yaml:"document_ops"`
	MCPOps        int `yaml:"mcp_ops"`

	Window    time.Duration `yaml:"-"`
	WindowRaw string        `yaml:"window"`
}

// ToolsConfig holds built-in tool settings
type ToolsConfig struct {
	// Root confines file_reader; relative paths resolve beneath it
	Root          string   `yaml:"root"`
	MaxFileBytes  int64    `yaml:"max_file_bytes"`
	MaxFetchBytes int64    `yaml:"max_fetch_bytes"`
	AllowedHosts  []string `yaml:"allowed_hosts"`

	FetchTimeout    time.Duration `yaml:"-"`
	FetchTimeoutRaw string        `yaml:"fetch_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        DefaultHTTPAddr,
			GRPCAddr:        DefaultGRPCAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Sessions: SessionConfig{
			IdleTimeout:   DefaultSessionIdleTimeout,
			SweepInterval: DefaultSessionSweepInterval,
			Retention:     DefaultSessionRetention,
		},
		Execution: ExecutionConfig{
			DocumentPoolSize: DefaultDocumentPoolSize,
			SearchPoolSize:   DefaultSearchPoolSize,
			Timeout:          DefaultExecutionTimeout,
			QueueWait:        DefaultQueueWait,
			Retention:        DefaultExecutionRetention,
		},
		RateLimits: RateLimitConfig{
			Chat:          DefaultChatLimit,
			ToolExecution: DefaultToolExecutionLimit,
			DocumentOps:   DefaultDocumentOpsLimit,
			MCPOps:        DefaultMCPOpsLimit,
			Window:        DefaultRateLimitWindow,
		},
		Tools: ToolsConfig{
			Root:          ".",
			MaxFileBytes:  DefaultMaxFileBytes,
			MaxFetchBytes: DefaultMaxFetchBytes,
			FetchTimeout:  DefaultFetchTimeout,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a configuration file and layers it over DefaultConfig.
// Environment variables in the format ${VAR_NAME} are expanded.
// An empty path yields the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Parse expands and decodes YAML into cfg, keeping fields the document omits
func Parse(data []byte, cfg *Config) error {
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	if err := parseDurations(cfg); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or "" if unset
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		cfg.Server.HTTPAddr = v
	}
	if v := os.Getenv(EnvGRPCAddr); v != "" {
		cfg.Server.GRPCAddr = v
	}
}

// Validate checks that the configuration is usable.
// Returns an error describing every failure found.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.HTTPAddr == "" {
		errs = append(errs, errors.New("server.http_addr is required"))
	}
	if c.Sessions.IdleTimeout <= 0 {
		errs = append(errs, errors.New("sessions.idle_timeout must be positive"))
	}
	if c.Sessions.SweepInterval <= 0 {
		errs = append(errs, errors.New("sessions.sweep_interval must be positive"))
	}
	if c.Execution.Timeout <= 0 {
		errs = append(errs, errors.New("execution.timeout must be positive"))
	}
	if c.Execution.QueueWait < 0 {
		errs = append(errs, errors.New("execution.queue_wait must not be negative"))
	}
	if c.Execution.DocumentPoolSize <= 0 || c.Execution.SearchPoolSize <= 0 {
		errs = append(errs, errors.New("execution pool sizes must be positive"))
	}
	if c.RateLimits.Window <= 0 {
		errs = append(errs, errors.New("rate_limits.window must be positive"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be json or text", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"sessions.idle_timeout", cfg.Sessions.IdleTimeoutRaw, &cfg.Sessions.IdleTimeout},
		{"sessions.sweep_interval", cfg.Sessions.SweepIntervalRaw, &cfg.Sessions.SweepInterval},
		{"sessions.retention", cfg.Sessions.RetentionRaw, &cfg.Sessions.Retention},
		{"execution.timeout", cfg.Execution.TimeoutRaw, &cfg.Execution.Timeout},
		{"execution.queue_wait", cfg.Execution.QueueWaitRaw, &cfg.Execution.QueueWait},
		{"execution.retention", cfg.Execution.RetentionRaw, &cfg.Execution.Retention},
		{"rate_limits.window", cfg.RateLimits.WindowRaw, &cfg.RateLimits.Window},
		{"tools.fetch_timeout", cfg.Tools.FetchTimeoutRaw, &cfg.Tools.FetchTimeout},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
