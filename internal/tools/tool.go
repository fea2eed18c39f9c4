// Package tools defines the contract every invocable tool implements. The
// gateway only needs a definition (name, description, input schema) and a
// cancellable Execute; tool business logic lives behind it.
package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
)

// Pool names the worker pool a tool's executions draw slots from
type Pool string

const (
	// PoolDocument serves file and document style tools
	PoolDocument Pool = "document"
	// PoolSearch serves network search and fetch tools
	PoolSearch Pool = "search"
)

// Tool is the closed capability interface held by the registry.
// Execute must return promptly once ctx is done and release anything it
// acquired on every path.
type Tool interface {
	Definition() mcp.Tool
	Execute(ctx context.Context, request mcp.CallToolRequest) (*Result, error)
}

// Pooled is implemented by tools that want a pool other than PoolDocument
type Pooled interface {
	Pool() Pool
}

// PoolOf returns the pool a tool runs in
func PoolOf(t Tool) Pool {
	if p, ok := t.(Pooled); ok && p.Pool() != "" {
		return p.Pool()
	}
	return PoolDocument
}

// DocumentOp is implemented by tools whose calls also count against the
// session's document_ops budget
type DocumentOp interface {
	DocumentOp() bool
}

// IsDocumentOp reports whether calls to t are document operations
func IsDocumentOp(t Tool) bool {
	d, ok := t.(DocumentOp)
	return ok && d.DocumentOp()
}

// Result is the content list produced by a successful execution
type Result struct {
	Content []protocol.Content
}

// NewResult builds a result from content entries
func NewResult(content ...protocol.Content) *Result {
	return &Result{Content: content}
}

// TextResult builds a single-text result
func TextResult(text string) *Result {
	return NewResult(protocol.TextContent(text))
}

// Error is a categorized failure raised inside a tool. The gateway records it
// on the execution as-is.
type Error struct {
	Code    protocol.ErrorCode
	Message string
	Data    map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Failure reports a tool-internal failure
func Failure(format string, args ...any) *Error {
	return &Error{Code: protocol.CodeToolExecution, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgument reports an argument the schema allowed but the tool rejects
func InvalidArgument(format string, args ...any) *Error {
	return &Error{Code: protocol.CodeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

// ExecuteFunc adapts a plain function to the Execute half of Tool
type ExecuteFunc func(ctx context.Context, request mcp.CallToolRequest) (*Result, error)

type funcTool struct {
	def  mcp.Tool
	pool Pool
	fn   ExecuteFunc
}

// New builds a Tool from a definition and a function
func New(def mcp.Tool, pool Pool, fn ExecuteFunc) Tool {
	return &funcTool{def: def, pool: pool, fn: fn}
}

func (t *funcTool) Definition() mcp.Tool { return t.def }
func (t *funcTool) Pool() Pool           { return t.pool }

func (t *funcTool) Execute(ctx context.Context, request mcp.CallToolRequest) (*Result, error) {
	return t.fn(ctx, request)
}
