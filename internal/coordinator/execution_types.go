package coordinator

import (
	"maps"
	"slices"
	"time"

	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
)

// ExecutionStatus is the lifecycle state of a tool execution
type ExecutionStatus string

const (
	// ExecutionPending indicates the execution is waiting for a worker slot
	ExecutionPending ExecutionStatus = "pending"
	// ExecutionRunning indicates the tool is executing
	ExecutionRunning ExecutionStatus = "running"
	// ExecutionCompleted indicates the tool returned a result
	ExecutionCompleted ExecutionStatus = "completed"
	// ExecutionError indicates the execution failed
	ExecutionError ExecutionStatus = "error"
)

// Terminal reports whether no further transition is possible
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionError
}

// canTransition enforces pending -> running -> completed, with error
// reachable from either live state
func (s ExecutionStatus) canTransition(to ExecutionStatus) bool {
	switch s {
	case ExecutionPending:
		return to == ExecutionRunning || to == ExecutionError
	case ExecutionRunning:
		return to == ExecutionCompleted || to == ExecutionError
	default:
		return false
	}
}

// ExecutionFailure is the error recorded on a failed execution
type ExecutionFailure struct {
	Code      int                `json:"code"`
	ErrorCode protocol.ErrorCode `json:"error_code"`
	Message   string             `json:"message"`
	Data      map[string]any     `json:"data,omitempty"`
	Retryable bool               `json:"retryable,omitempty"`
}

func newExecutionFailure(err *protocol.Error) *ExecutionFailure {
	wire := err.RPCError()
	data := maps.Clone(wire.Data)
	delete(data, "error_code")
	delete(data, "retryable")
	if len(data) == 0 {
		data = nil
	}
	return &ExecutionFailure{
		Code:      wire.Code,
		ErrorCode: err.Code,
		Message:   wire.Message,
		Data:      data,
		Retryable: err.Retryable(),
	}
}

// AsError converts the failure back into the error taxonomy
func (f *ExecutionFailure) AsError() *protocol.Error {
	return protocol.NewError(f.ErrorCode, f.Message, maps.Clone(f.Data))
}

// ToolExecution is the tracked state of one tool invocation
type ToolExecution struct {
	ExecutionID string             `json:"execution_id"`
	SessionID   string             `json:"session_id"`
	ToolName    string             `json:"tool_name"`
	Parameters  map[string]any     `json:"parameters"`
	Status      ExecutionStatus    `json:"status"`
	Result      []protocol.Content `json:"result,omitempty"`
	Error       *ExecutionFailure  `json:"error,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	StartedAt   time.Time          `json:"started_at,omitzero"`
	CompletedAt time.Time          `json:"completed_at,omitzero"`
	// ExecutionTime is seconds from creation to completion
	ExecutionTime float64 `json:"execution_time"`
}

func (e *ToolExecution) clone() *ToolExecution {
	cp := *e
	cp.Parameters = maps.Clone(e.Parameters)
	cp.Result = slices.Clone(e.Result)
	if e.Error != nil {
		failure := *e.Error
		failure.Data = maps.Clone(e.Error.Data)
		cp.Error = &failure
	}
	return &cp
}

// ExecuteRequest asks the dispatcher to run one tool
type ExecuteRequest struct {
	SessionID  string
	ToolName   string
	Parameters map[string]any
	// Async returns as soon as the execution is dispatched
	Async bool
}
