// Package document provides the document_analyzer tool
package document

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/mcp-gateway/internal/coordinator/config"
	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
	"github.com/AltairaLabs/mcp-gateway/internal/tools"
	"github.com/AltairaLabs/mcp-gateway/internal/tools/handlers/text"
)

// Analysis kinds
const (
	AnalysisStatistics  = "statistics"
	AnalysisStructure   = "structure"
	AnalysisReadability = "readability"
)

// Statistics are raw counts over a document
type Statistics struct {
	Characters int `json:"characters"`
	Words      int `json:"words"`
	Sentences  int `json:"sentences"`
	Paragraphs int `json:"paragraphs"`
	Lines      int `json:"lines"`
}

// Heading is one markdown heading
type Heading struct {
	Level int    `json:"level"`
	Title string `json:"title"`
	Line  int    `json:"line"`
}

// Structure describes the outline of a markdown document
type Structure struct {
	Headings   []Heading `json:"headings"`
	CodeBlocks int       `json:"code_blocks"`
	ListItems  int       `json:"list_items"`
	Links      int       `json:"links"`
}

// Readability holds Flesch scores
type Readability struct {
	WordsPerSentence float64 `json:"words_per_sentence"`
	SyllablesPerWord float64 `json:"syllables_per_word"`
	ReadingEase      float64 `json:"flesch_reading_ease"`
	GradeLevel       float64 `json:"flesch_kincaid_grade"`
}

// Report is the analyzer output
type Report struct {
	Type        string       `json:"analysis_type"`
	Statistics  *Statistics  `json:"statistics,omitempty"`
	Structure   *Structure   `json:"structure,omitempty"`
	Readability *Readability `json:"readability,omitempty"`
}

// Analyzer implements the document_analyzer tool
type Analyzer struct{}

// NewAnalyzer creates a document_analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Definition implements tools.Tool
func (a *Analyzer) Definition() mcp.Tool {
	return mcp.NewTool(config.ToolDocumentAnalyzer,
		mcp.WithDescription("Compute statistics, outline or readability of a document"),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Document text, markdown allowed"),
		),
		mcp.WithString("analysis_type",
			mcp.Description("Kind of analysis, statistics by default"),
			mcp.Enum(AnalysisStatistics, AnalysisStructure, AnalysisReadability),
		),
	)
}

// DocumentOp implements tools.DocumentOp
func (a *Analyzer) DocumentOp() bool { return true }

// Execute implements tools.Tool
func (a *Analyzer) Execute(ctx context.Context, request mcp.CallToolRequest) (*tools.Result, error) {
	content, err := request.RequireString("content")
	if err != nil {
		return nil, tools.InvalidArgument("%v", err)
	}
	kind := request.GetString("analysis_type", AnalysisStatistics)

	report, err := Analyze(ctx, content, kind)
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}
	return tools.NewResult(protocol.CodeContent(string(out), "json")), nil
}

// Analyze builds a report of the requested kind
func Analyze(ctx context.Context, content, kind string) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report := &Report{Type: kind}
	switch kind {
	case AnalysisStatistics:
		report.Statistics = statistics(content)
	case AnalysisStructure:
		report.Structure = structure(content)
	case AnalysisReadability:
		report.Readability = readability(content)
	default:
		return nil, tools.InvalidArgument("unsupported analysis_type %q", kind)
	}
	return report, nil
}

func statistics(content string) *Statistics {
	s := &Statistics{
		Characters: len([]rune(content)),
		Words:      len(strings.Fields(content)),
		Sentences:  len(text.Sentences(content)),
	}
	if strings.TrimSpace(content) == "" {
		return s
	}
	s.Lines = strings.Count(strings.TrimRight(content, "\n"), "\n") + 1
	for _, p := range strings.Split(content, "\n\n") {
		if strings.TrimSpace(p) != "" {
			s.Paragraphs++
		}
	}
	return s
}

func structure(content string) *Structure {
	s := &Structure{Headings: []Heading{}}
	inFence := false
	for i, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if !inFence {
				s.CodeBlocks++
			}
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		s.Links += strings.Count(trimmed, "](")
		switch {
		case strings.HasPrefix(trimmed, "#"):
			level := len(trimmed) - len(strings.TrimLeft(trimmed, "#"))
			title := strings.TrimSpace(trimmed[level:])
			if level <= 6 && title != "" {
				s.Headings = append(s.Headings, Heading{Level: level, Title: title, Line: i + 1})
			}
		case strings.HasPrefix(trimmed, "- "), strings.HasPrefix(trimmed, "* "):
			s.ListItems++
		}
	}
	return s
}

func readability(content string) *Readability {
	words := strings.FieldsFunc(content, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	sentences := len(text.Sentences(content))
	if len(words) == 0 || sentences == 0 {
		return &Readability{}
	}
	syllables := 0
	for _, w := range words {
		syllables += countSyllables(w)
	}
	wps := float64(len(words)) / float64(sentences)
	spw := float64(syllables) / float64(len(words))
	return &Readability{
		WordsPerSentence: round2(wps),
		SyllablesPerWord: round2(spw),
		ReadingEase:      round2(206.835 - 1.015*wps - 84.6*spw),
		GradeLevel:       round2(0.39*wps + 11.8*spw - 15.59),
	}
}

// countSyllables approximates syllables as vowel groups, with a silent
// trailing e dropped
func countSyllables(word string) int {
	word = strings.ToLower(word)
	count := 0
	prevVowel := false
	for _, r := range word {
		vowel := strings.ContainsRune("aeiouy", r)
		if vowel && !prevVowel {
			count++
		}
		prevVowel = vowel
	}
	if strings.HasSuffix(word, "e") && !strings.HasSuffix(word, "le") && count > 1 {
		count--
	}
	return max(count, 1)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
