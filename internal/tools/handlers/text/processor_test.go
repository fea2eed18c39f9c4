package text

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
	"github.com/AltairaLabs/mcp-gateway/internal/tools"
)

func run(t *testing.T, args map[string]any) (*tools.Result, error) {
	t.Helper()
	return NewProcessor().Execute(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: "text_processor", Arguments: args},
	})
}

func TestProcessorOperations(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"summarize short", map[string]any{"text": "abc", "operation": OpSummarize}, "abc"},
		{
			"summarize keeps leading sentences",
			map[string]any{"text": "One. Two! Three? Four.", "operation": OpSummarize, "max_sentences": float64(2)},
			"One. Two!",
		},
		{"word count", map[string]any{"text": "the quick  brown fox", "operation": OpWordCount}, "4"},
		{"uppercase", map[string]any{"text": "abc", "operation": OpUppercase}, "ABC"},
		{"lowercase", map[string]any{"text": "ABC", "operation": OpLowercase}, "abc"},
		{
			"keywords",
			map[string]any{"text": "gateway sessions gateway tools and gateway tools", "operation": OpKeywords},
			"gateway, tools, sessions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := run(t, tt.args)
			require.NoError(t, err)
			require.Len(t, res.Content, 1)
			assert.Equal(t, protocol.ContentText, res.Content[0].Type)
			assert.Equal(t, tt.want, res.Content[0].Text)
		})
	}
}

func TestProcessorRejectsUnknownOperation(t *testing.T) {
	_, err := run(t, map[string]any{"text": "abc", "operation": "translate"})
	var terr *tools.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, protocol.CodeInvalidParams, terr.Code)
}

func TestProcessorRequiresText(t *testing.T) {
	_, err := run(t, map[string]any{"operation": OpSummarize})
	require.Error(t, err)
}

func TestKeywordsHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Keywords(ctx, "some words here", 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSentences(t *testing.T) {
	assert.Equal(t, []string{"Hi.", "How are you?", "trailing"}, Sentences("Hi. How are you? trailing"))
	assert.Empty(t, Sentences("   "))
}

func TestDefinitionSchema(t *testing.T) {
	def := NewProcessor().Definition()
	assert.Equal(t, "text_processor", def.Name)
	assert.ElementsMatch(t, []string{"text", "operation"}, def.InputSchema.Required)
}
