// Package text provides the text_processor tool
package text

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/mcp-gateway/internal/coordinator/config"
	"github.com/AltairaLabs/mcp-gateway/internal/tools"
)

// Supported operations
const (
	OpSummarize = "summarize"
	OpWordCount = "word_count"
	OpUppercase = "uppercase"
	OpLowercase = "lowercase"
	OpKeywords  = "keywords"
)

const (
	defaultSummarySentences = 3
	defaultKeywordCount     = 10
	minKeywordLength        = 4
)

var stopWords = map[string]bool{
	"that": true, "this": true, "with": true, "from": true, "have": true,
	"were": true, "they": true, "their": true, "there": true, "which": true,
	"would": true, "could": true, "should": true, "about": true, "into": true,
	"than": true, "then": true, "them": true, "these": true, "those": true,
	"been": true, "being": true, "what": true, "when": true, "where": true,
	"will": true, "your": true, "also": true, "some": true, "such": true,
}

// Processor implements the text_processor tool
type Processor struct{}

// NewProcessor creates a text_processor
func NewProcessor() *Processor {
	return &Processor{}
}

// Definition implements tools.Tool
func (p *Processor) Definition() mcp.Tool {
	return mcp.NewTool(config.ToolTextProcessor,
		mcp.WithDescription("Transform or summarize a block of text"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Input text"),
		),
		mcp.WithString("operation",
			mcp.Required(),
			mcp.Description("Operation to apply"),
			mcp.Enum(OpSummarize, OpWordCount, OpUppercase, OpLowercase, OpKeywords),
		),
		mcp.WithNumber("max_sentences",
			mcp.Description("Sentences kept by summarize"),
		),
	)
}

// Execute implements tools.Tool
func (p *Processor) Execute(ctx context.Context, request mcp.CallToolRequest) (*tools.Result, error) {
	input, err := request.RequireString("text")
	if err != nil {
		return nil, tools.InvalidArgument("%v", err)
	}
	op, err := request.RequireString("operation")
	if err != nil {
		return nil, tools.InvalidArgument("%v", err)
	}

	switch op {
	case OpSummarize:
		n := request.GetInt("max_sentences", defaultSummarySentences)
		if n <= 0 {
			n = defaultSummarySentences
		}
		return tools.TextResult(Summarize(input, n)), nil
	case OpWordCount:
		return tools.TextResult(fmt.Sprintf("%d", len(strings.Fields(input)))), nil
	case OpUppercase:
		return tools.TextResult(strings.ToUpper(input)), nil
	case OpLowercase:
		return tools.TextResult(strings.ToLower(input)), nil
	case OpKeywords:
		words, err := Keywords(ctx, input, defaultKeywordCount)
		if err != nil {
			return nil, err
		}
		return tools.TextResult(strings.Join(words, ", ")), nil
	default:
		return nil, tools.InvalidArgument("unsupported operation %q", op)
	}
}

// Sentences splits text on terminal punctuation. Text without any is a
// single sentence.
func Sentences(text string) []string {
	var (
		out []string
		b   strings.Builder
	)
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// Summarize keeps the leading n sentences of text
func Summarize(text string, n int) string {
	sentences := Sentences(text)
	if len(sentences) > n {
		sentences = sentences[:n]
	}
	return strings.Join(sentences, " ")
}

// Keywords returns the n most frequent non-trivial words, ties broken
// alphabetically
func Keywords(ctx context.Context, text string, n int) ([]string, error) {
	counts := make(map[string]int)
	for i, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if len(word) < minKeywordLength || stopWords[word] {
			continue
		}
		counts[word]++
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	slices.SortFunc(words, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	if len(words) > n {
		words = words[:n]
	}
	return words, nil
}
