package coordinator

import (
	"context"
	"log/slog"
	"maps"
	"slices"
)

// AuditLogger writes provenance events for tool calls on a dedicated
// "audit" component logger
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger.With("component", "audit")}
}

func (e *AuditEntry) attrs() []any {
	return []any{
		"session_id", e.SessionID,
		"user_id", e.UserID,
		"tool_name", e.ToolName,
	}
}

// LogToolCall records an accepted call. Argument values are left out; only
// their names are recorded.
func (al *AuditLogger) LogToolCall(ctx context.Context, entry *AuditEntry) {
	al.logger.InfoContext(ctx, "tool_call", append(entry.attrs(),
		"document_id", entry.DocumentID,
		"execution_id", entry.ExecutionID,
		"arguments", slices.Sorted(maps.Keys(entry.Arguments)),
		"timestamp", entry.Timestamp,
	)...)
}

// LogRejected records a call refused at admission; no execution exists for it
func (al *AuditLogger) LogRejected(ctx context.Context, entry *AuditEntry) {
	al.logger.WarnContext(ctx, "tool_rejected", append(entry.attrs(),
		"error_code", entry.ErrorCode,
		"reason", entry.ErrorMsg,
	)...)
}

// LogToolResult records the terminal state of an execution
func (al *AuditLogger) LogToolResult(ctx context.Context, entry *AuditEntry) {
	attrs := append(entry.attrs(),
		"execution_id", entry.ExecutionID,
		"status", entry.Status,
		"duration_ms", entry.Duration.Milliseconds(),
	)
	if entry.Status == ExecutionCompleted {
		al.logger.InfoContext(ctx, "tool_result", append(attrs, "content_items", entry.ContentItems)...)
		return
	}
	al.logger.ErrorContext(ctx, "tool_error", append(attrs,
		"error_code", entry.ErrorCode,
		"error", entry.ErrorMsg,
	)...)
}
