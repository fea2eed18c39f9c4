package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrorCode is the symbolic name of a failure in the gateway taxonomy
type ErrorCode string

// Error codes. The JSON-RPC standard codes map one to one; the server-defined
// ones live in the reserved -32000..-32099 range.
const (
	CodeParseError        ErrorCode = "PARSE_ERROR"
	CodeInvalidRequest    ErrorCode = "INVALID_REQUEST"
	CodeMethodNotFound    ErrorCode = "METHOD_NOT_FOUND"
	CodeInvalidParams     ErrorCode = "INVALID_PARAMS"
	CodeInternal          ErrorCode = "INTERNAL_ERROR"
	CodeSessionExpired    ErrorCode = "SESSION_EXPIRED"
	CodeCapability        ErrorCode = "MCP_CAPABILITY_ERROR"
	CodeToolExecution     ErrorCode = "TOOL_EXECUTION_ERROR"
	CodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeServerBusy        ErrorCode = "SERVER_BUSY"
	CodeExecutionTimeout  ErrorCode = "EXECUTION_TIMEOUT"
	CodeSessionEnded      ErrorCode = "SESSION_ENDED"
	CodeNotFound          ErrorCode = "NOT_FOUND"
)

// Session failure reasons carried in Data["reason"]
const (
	ReasonUnknownSession = "unknown_session"
	ReasonExpired        = "expired"
	ReasonEnded          = "ended"
	ReasonShutdown       = "shutdown"
)

const genericInternalMessage = "internal error"

var rpcCodes = map[ErrorCode]int{
	CodeParseError:        mcp.PARSE_ERROR,
	CodeInvalidRequest:    mcp.INVALID_REQUEST,
	CodeMethodNotFound:    mcp.METHOD_NOT_FOUND,
	CodeInvalidParams:     mcp.INVALID_PARAMS,
	CodeInternal:          mcp.INTERNAL_ERROR,
	CodeSessionExpired:    -32001,
	CodeCapability:        -32002,
	CodeToolExecution:     -32003,
	CodeRateLimitExceeded: -32004,
	CodeServerBusy:        -32005,
	CodeExecutionTimeout:  -32006,
	CodeSessionEnded:      -32007,
	CodeNotFound:          -32008,
}

// Error is a categorized gateway failure. Message is safe to show to clients;
// the wrapped cause is for server-side logs only.
type Error struct {
	Code    ErrorCode
	Message string
	Data    map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// RPCCode returns the numeric JSON-RPC code
func (e *Error) RPCCode() int {
	if code, ok := rpcCodes[e.Code]; ok {
		return code
	}
	return mcp.INTERNAL_ERROR
}

// Retryable reports whether the client may retry without changing the request
func (e *Error) Retryable() bool {
	switch e.Code {
	case CodeRateLimitExceeded, CodeServerBusy, CodeExecutionTimeout:
		return true
	default:
		return false
	}
}

// HTTPStatus maps the error onto the REST surface
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeParseError, CodeInvalidRequest, CodeInvalidParams:
		return http.StatusBadRequest
	case CodeMethodNotFound, CodeNotFound:
		return http.StatusNotFound
	case CodeSessionExpired:
		if e.Data["reason"] == ReasonUnknownSession {
			return http.StatusNotFound
		}
		return http.StatusGone
	case CodeCapability:
		return http.StatusUnprocessableEntity
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeServerBusy:
		return http.StatusServiceUnavailable
	case CodeToolExecution, CodeExecutionTimeout, CodeSessionEnded:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// RPCError renders the wire error object. Internal errors never carry detail.
func (e *Error) RPCError() *RPCError {
	if e.Code == CodeInternal {
		return &RPCError{
			Code:    mcp.INTERNAL_ERROR,
			Message: genericInternalMessage,
			Data:    map[string]any{"error_code": string(CodeInternal)},
		}
	}
	data := maps.Clone(e.Data)
	if data == nil {
		data = make(map[string]any, 2)
	}
	data["error_code"] = string(e.Code)
	if e.Retryable() {
		data["retryable"] = true
	}
	return &RPCError{Code: e.RPCCode(), Message: e.Message, Data: data}
}

// WithData returns a copy of e with key set in its data
func (e *Error) WithData(key string, value any) *Error {
	cp := *e
	cp.Data = maps.Clone(e.Data)
	if cp.Data == nil {
		cp.Data = make(map[string]any, 1)
	}
	cp.Data[key] = value
	return &cp
}

// NewError builds an error with an explicit code
func NewError(code ErrorCode, message string, data map[string]any) *Error {
	return &Error{Code: code, Message: message, Data: data}
}

// FromError maps any error onto the taxonomy. Uncategorized errors become
// INTERNAL_ERROR with the original kept only as the cause.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return Internal(err)
}

// ParseError reports a payload that is not valid JSON
func ParseError(cause error) *Error {
	return &Error{Code: CodeParseError, Message: "parse error: payload is not valid JSON", cause: cause}
}

// InvalidRequest reports a structurally invalid envelope
func InvalidRequest(message string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: message}
}

// MethodNotFound reports an unknown method or tool
func MethodNotFound(kind, name string) *Error {
	return &Error{
		Code:    CodeMethodNotFound,
		Message: fmt.Sprintf("%s not found: %s", kind, name),
		Data:    map[string]any{kind: name},
	}
}

// InvalidParams reports parameters that fail validation
func InvalidParams(message string) *Error {
	return &Error{Code: CodeInvalidParams, Message: message}
}

// MalformedParams reports a value that failed to decode. The client sees
// only the offending field; the decoder error stays in the cause.
func MalformedParams(what string, cause error) *Error {
	message := fmt.Sprintf("%s: malformed value", what)
	var typeErr *json.UnmarshalTypeError
	if errors.As(cause, &typeErr) && typeErr.Field != "" {
		message = fmt.Sprintf("%s: field %q has the wrong type", what, typeErr.Field)
	}
	return &Error{Code: CodeInvalidParams, Message: message, cause: cause}
}

// Internal wraps an unexpected fault
func Internal(cause error) *Error {
	return &Error{Code: CodeInternal, Message: genericInternalMessage, cause: cause}
}

// SessionNotFound reports an unknown session id
func SessionNotFound(sessionID string) *Error {
	return &Error{
		Code:    CodeSessionExpired,
		Message: fmt.Sprintf("session not found: %s", sessionID),
		Data:    map[string]any{"session_id": sessionID, "reason": ReasonUnknownSession},
	}
}

// SessionExpired reports a session that was ended or idled out
func SessionExpired(sessionID, reason string) *Error {
	return &Error{
		Code:    CodeSessionExpired,
		Message: fmt.Sprintf("session %s is no longer active", sessionID),
		Data:    map[string]any{"session_id": sessionID, "reason": reason},
	}
}

// CapabilityMismatch reports a handshake the server cannot accept
func CapabilityMismatch(clientVersion string) *Error {
	return &Error{
		Code:    CodeCapability,
		Message: fmt.Sprintf("unsupported protocol version %q", clientVersion),
		Data: map[string]any{
			"requested": clientVersion,
			"supported": []string{ProtocolVersion},
		},
	}
}

// ToolFailure reports a failure inside a tool; message is passed through
func ToolFailure(message string, data map[string]any) *Error {
	return &Error{Code: CodeToolExecution, Message: message, Data: data}
}

// RateLimited reports an exhausted admission budget
func RateLimited(category string, limit int, reset time.Time) *Error {
	return &Error{
		Code:    CodeRateLimitExceeded,
		Message: fmt.Sprintf("rate limit exceeded for %s", category),
		Data: map[string]any{
			"category":  category,
			"limit":     limit,
			"remaining": 0,
			"reset":     ResetEpoch(reset),
		},
	}
}

// ServerBusy reports worker pool saturation
func ServerBusy(pool string, retryAfter time.Duration) *Error {
	return &Error{
		Code:    CodeServerBusy,
		Message: fmt.Sprintf("no %s worker available, retry later", pool),
		Data: map[string]any{
			"pool":                pool,
			"retry_after_seconds": int(retryAfter.Round(time.Second).Seconds()),
		},
	}
}

// ExecutionTimeout reports a tool call that exceeded its deadline
func ExecutionTimeout(timeout time.Duration) *Error {
	return &Error{
		Code:    CodeExecutionTimeout,
		Message: fmt.Sprintf("tool execution exceeded %s", timeout),
		Data:    map[string]any{"timeout_seconds": timeout.Seconds()},
	}
}

// SessionEnded reports an execution cancelled because its session ended
func SessionEnded(sessionID, reason string) *Error {
	return &Error{
		Code:    CodeSessionEnded,
		Message: "session ended before the execution completed",
		Data:    map[string]any{"session_id": sessionID, "reason": reason},
	}
}

// NotFound reports an unknown or evicted record
func NotFound(kind, id string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", kind, id),
		Data:    map[string]any{kind + "_id": id},
	}
}

// ResetEpoch rounds t up to whole unix seconds
func ResetEpoch(t time.Time) int64 {
	sec := t.Unix()
	if t.Nanosecond() > 0 {
		sec++
	}
	return sec
}
