package coordinator

import "time"

// AuditEntry is one provenance record of a tool execution or rejection
type AuditEntry struct {
	Timestamp   time.Time
	SessionID   string
	UserID      string
	DocumentID  string
	ToolName    string
	ExecutionID string
	Arguments   map[string]any
	Status      ExecutionStatus
	// ContentItems counts the result entries of a completed execution
	ContentItems int
	ErrorCode    string
	ErrorMsg     string
	Duration     time.Duration
}
