// Package format provides the data_formatter tool
package format

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"gopkg.in/yaml.v3"

	"github.com/AltairaLabs/mcp-gateway/internal/coordinator/config"
	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
	"github.com/AltairaLabs/mcp-gateway/internal/tools"
)

// Formats understood by the formatter
const (
	FormatAuto     = "auto"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
)

// Formatter implements the data_formatter tool
type Formatter struct{}

// NewFormatter creates a data_formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// Definition implements tools.Tool
func (f *Formatter) Definition() mcp.Tool {
	return mcp.NewTool(config.ToolDataFormatter,
		mcp.WithDescription("Convert structured data between JSON, YAML and markdown tables"),
		mcp.WithString("data",
			mcp.Required(),
			mcp.Description("Structured input as JSON or YAML text"),
		),
		mcp.WithString("input_format",
			mcp.Description("Input syntax, detected when omitted"),
			mcp.Enum(FormatAuto, FormatJSON, FormatYAML),
		),
		mcp.WithString("output_format",
			mcp.Required(),
			mcp.Description("Output syntax"),
			mcp.Enum(FormatJSON, FormatYAML, FormatMarkdown),
		),
	)
}

// Execute implements tools.Tool
func (f *Formatter) Execute(ctx context.Context, request mcp.CallToolRequest) (*tools.Result, error) {
	data, err := request.RequireString("data")
	if err != nil {
		return nil, tools.InvalidArgument("%v", err)
	}
	output, err := request.RequireString("output_format")
	if err != nil {
		return nil, tools.InvalidArgument("%v", err)
	}

	value, err := Decode(data, request.GetString("input_format", FormatAuto))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := Encode(value, output)
	if err != nil {
		return nil, err
	}
	return tools.NewResult(protocol.CodeContent(out, output)), nil
}

// Decode parses JSON or YAML text into plain Go values. Mapping keys are
// always strings.
func Decode(data, format string) (any, error) {
	var value any
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(strings.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&value); err != nil {
			return nil, tools.InvalidArgument("invalid json: %v", err)
		}
		return value, nil
	case FormatYAML, FormatAuto, "":
		// YAML is a superset of JSON, so auto goes through the YAML decoder
		if err := yaml.Unmarshal([]byte(data), &value); err != nil {
			return nil, tools.InvalidArgument("invalid %s: %v", format, err)
		}
		return normalize(value), nil
	default:
		return nil, tools.InvalidArgument("unsupported input_format %q", format)
	}
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	default:
		return v
	}
}

// Encode renders value in the given format
func Encode(value any, format string) (string, error) {
	switch format {
	case FormatJSON:
		out, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return "", tools.Failure("encoding json: %v", err)
		}
		return string(out), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(value); err != nil {
			return "", tools.Failure("encoding yaml: %v", err)
		}
		if err := enc.Close(); err != nil {
			return "", tools.Failure("encoding yaml: %v", err)
		}
		return buf.String(), nil
	case FormatMarkdown:
		return markdownTable(value)
	default:
		return "", tools.InvalidArgument("unsupported output_format %q", format)
	}
}

// markdownTable renders a list of objects, columns in sorted key order
func markdownTable(value any) (string, error) {
	rows, ok := value.([]any)
	if !ok {
		if obj, isObj := value.(map[string]any); isObj {
			rows = []any{obj}
		} else {
			return "", tools.InvalidArgument("markdown output needs a list of objects")
		}
	}

	columns := map[string]struct{}{}
	objects := make([]map[string]any, 0, len(rows))
	for i, r := range rows {
		obj, ok := r.(map[string]any)
		if !ok {
			return "", tools.InvalidArgument("row %d is not an object", i)
		}
		for k := range obj {
			columns[k] = struct{}{}
		}
		objects = append(objects, obj)
	}
	header := slices.Sorted(maps.Keys(columns))
	if len(header) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("| " + strings.Join(header, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(header)) + "\n")
	for _, obj := range objects {
		cells := make([]string, len(header))
		for i, col := range header {
			cells[i] = cell(obj[col])
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return b.String(), nil
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.ReplaceAll(t, "|", `\|`)
	case map[string]any, []any:
		out, _ := json.Marshal(t)
		return strings.ReplaceAll(string(out), "|", `\|`)
	default:
		return fmt.Sprint(t)
	}
}
