package builtin

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/mcp-gateway/internal/coordinator/config"
	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
	"github.com/AltairaLabs/mcp-gateway/internal/registry"
	"github.com/AltairaLabs/mcp-gateway/internal/tools"
)

func TestRegisterAddsBuiltinsInOrder(t *testing.T) {
	reg := registry.New(protocol.ServerInfo{Name: "mcp-gateway", Version: "test"})
	require.NoError(t, Register(reg, config.DefaultConfig().Tools))

	var names []string
	for _, d := range reg.List() {
		names = append(names, d.Name)
		assert.Equal(t, "object", d.InputSchema.Type, d.Name)
		assert.NotEmpty(t, d.Description, d.Name)
	}
	assert.Equal(t, config.AllTools(), names)

	entry, err := reg.Lookup(config.ToolWebContentFetcher)
	require.NoError(t, err)
	assert.Equal(t, tools.PoolSearch, entry.Descriptor.Pool)
}

func TestDocumentToolsAreDocumentOps(t *testing.T) {
	reg := registry.New(protocol.ServerInfo{Name: "mcp-gateway"})
	require.NoError(t, Register(reg, config.ToolsConfig{}))

	documentOps := map[string]bool{
		config.ToolFileReader:       true,
		config.ToolDocumentAnalyzer: true,
	}
	for _, name := range config.AllTools() {
		entry, err := reg.Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, documentOps[name], tools.IsDocumentOp(entry.Tool), name)
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := registry.New(protocol.ServerInfo{Name: "mcp-gateway"})
	require.NoError(t, Register(reg, config.ToolsConfig{}))
	assert.ErrorIs(t, Register(reg, config.ToolsConfig{}), registry.ErrToolExists)
}

func TestSchemasValidateArguments(t *testing.T) {
	reg := registry.New(protocol.ServerInfo{Name: "mcp-gateway"})
	require.NoError(t, Register(reg, config.ToolsConfig{}))

	entry, err := reg.Lookup(config.ToolTextProcessor)
	require.NoError(t, err)
	require.NoError(t, entry.Validate(map[string]any{"text": "abc", "operation": "summarize"}))

	err = entry.Validate(map[string]any{"text": "abc"})
	var perr *protocol.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, protocol.CodeInvalidParams, perr.Code)

	res, err := entry.Tool.Execute(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      config.ToolTextProcessor,
			Arguments: map[string]any{"text": "abc", "operation": "summarize"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", res.Content[0].Text)
}
