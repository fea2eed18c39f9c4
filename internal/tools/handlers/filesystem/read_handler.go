// Package filesystem provides the file_reader tool
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/mcp-gateway/internal/coordinator/config"
	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
	"github.com/AltairaLabs/mcp-gateway/internal/tools"
)

// languages maps file extensions to the code fence language of their content
var languages = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".sql":  "sql",
	".sh":   "bash",
	".html": "html",
	".css":  "css",
}

// ReadHandler handles the file_reader tool. Paths are resolved beneath a
// fixed root and never escape it.
type ReadHandler struct {
	root     string
	maxBytes int64
}

// NewReadHandler creates a file_reader confined to root
func NewReadHandler(root string, maxBytes int64) *ReadHandler {
	if maxBytes <= 0 {
		maxBytes = config.DefaultMaxFileBytes
	}
	return &ReadHandler{root: root, maxBytes: maxBytes}
}

// Definition implements tools.Tool
func (h *ReadHandler) Definition() mcp.Tool {
	return mcp.NewTool(config.ToolFileReader,
		mcp.WithDescription("Read a text file from the document workspace"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path relative to the workspace root"),
		),
		mcp.WithNumber("max_bytes",
			mcp.Description("Upper bound on bytes returned; defaults to the server limit"),
		),
	)
}

// Pool implements tools.Pooled
func (h *ReadHandler) Pool() tools.Pool {
	return tools.PoolDocument
}

// DocumentOp implements tools.DocumentOp
func (h *ReadHandler) DocumentOp() bool { return true }

// Execute implements tools.Tool
func (h *ReadHandler) Execute(ctx context.Context, request mcp.CallToolRequest) (*tools.Result, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return nil, tools.InvalidArgument("%v", err)
	}
	if vErr := validateWorkspacePath(path); vErr != nil {
		return nil, tools.InvalidArgument("%v", vErr)
	}

	limit := h.maxBytes
	if n := int64(request.GetInt("max_bytes", 0)); n > 0 && n < limit {
		limit = n
	}

	data, truncated, err := h.read(ctx, filepath.Clean(path), limit)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, tools.Failure("file %s is not UTF-8 text", path)
	}

	text := string(data)
	var content protocol.Content
	if lang, ok := languages[strings.ToLower(filepath.Ext(path))]; ok {
		content = protocol.CodeContent(text, lang)
	} else {
		content = protocol.TextContent(text)
	}
	result := tools.NewResult(content)
	if truncated {
		result.Content = append(result.Content,
			protocol.TextContent(fmt.Sprintf("[truncated to %d bytes]", limit)))
	}
	return result, nil
}

func (h *ReadHandler) read(ctx context.Context, path string, limit int64) ([]byte, bool, error) {
	if h.root == "" {
		return nil, false, tools.Failure("file_reader has no workspace root configured")
	}
	root, err := os.OpenRoot(h.root)
	if err != nil {
		return nil, false, fmt.Errorf("opening workspace root: %w", err)
	}
	defer root.Close()

	f, err := root.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, false, tools.Failure("file not found: %s", path)
	case err != nil:
		return nil, false, tools.InvalidArgument("cannot open %s: %v", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, false, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, false, tools.InvalidArgument("%s is a directory", path)
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", path, err)
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

func validateWorkspacePath(path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}
	// Prevent absolute paths
	if filepath.IsAbs(path) {
		return fmt.Errorf("path must be relative to workspace root, got absolute path: %s", path)
	}

	// Prevent path traversal
	cleanPath := filepath.Clean(path)
	if cleanPath == ".." || strings.HasPrefix(cleanPath, "../") || strings.Contains(cleanPath, "/../") {
		return fmt.Errorf("path traversal not allowed: %s", path)
	}

	return nil
}
