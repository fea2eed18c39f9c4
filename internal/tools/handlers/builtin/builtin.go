// Package builtin registers the gateway's built-in tools
package builtin

import (
	"fmt"

	"github.com/AltairaLabs/mcp-gateway/internal/coordinator/config"
	"github.com/AltairaLabs/mcp-gateway/internal/registry"
	"github.com/AltairaLabs/mcp-gateway/internal/tools"
	"github.com/AltairaLabs/mcp-gateway/internal/tools/handlers/document"
	"github.com/AltairaLabs/mcp-gateway/internal/tools/handlers/filesystem"
	"github.com/AltairaLabs/mcp-gateway/internal/tools/handlers/format"
	"github.com/AltairaLabs/mcp-gateway/internal/tools/handlers/text"
	"github.com/AltairaLabs/mcp-gateway/internal/tools/handlers/web"
)

// Tools builds the built-in tools in config.AllTools order
func Tools(cfg config.ToolsConfig) []tools.Tool {
	return []tools.Tool{
		filesystem.NewReadHandler(cfg.Root, cfg.MaxFileBytes),
		text.NewProcessor(),
		document.NewAnalyzer(),
		web.NewFetcher(cfg.FetchTimeout,
			web.WithMaxBytes(cfg.MaxFetchBytes),
			web.WithAllowedHosts(cfg.AllowedHosts...),
		),
		format.NewFormatter(),
	}
}

// Register adds every built-in tool to reg
func Register(reg *registry.Registry, cfg config.ToolsConfig) error {
	for _, tool := range Tools(cfg) {
		if err := reg.Register(tool); err != nil {
			return fmt.Errorf("registering %s: %w", tool.Definition().Name, err)
		}
	}
	return nil
}
