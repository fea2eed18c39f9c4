package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var nullID = json.RawMessage("null")

// DecodeRequest parses and structurally validates one JSON-RPC envelope.
// Batches are rejected; MCP clients send single requests.
func DecodeRequest(payload []byte) (*Request, *Error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return nil, ParseError(fmt.Errorf("invalid JSON payload of %d bytes", len(payload)))
	}
	switch trimmed[0] {
	case '{':
	case '[':
		return nil, InvalidRequest("batch requests are not supported")
	default:
		return nil, InvalidRequest("request must be a JSON object")
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, InvalidRequest("malformed request envelope")
	}
	if req.JSONRPC != JSONRPCVersion {
		return &req, InvalidRequest(fmt.Sprintf("jsonrpc must be %q", JSONRPCVersion))
	}
	if req.Method == "" {
		return &req, InvalidRequest("method is required")
	}
	if !validID(req.ID) {
		req.ID = nil
		return &req, InvalidRequest("id must be a string, number or null")
	}
	if len(req.Params) > 0 {
		p := bytes.TrimSpace(req.Params)
		if !bytes.Equal(p, nullID) && p[0] != '{' {
			return &req, InvalidRequest("params must be an object")
		}
	}
	return &req, nil
}

func validID(id json.RawMessage) bool {
	if len(id) == 0 {
		return true
	}
	switch c := id[0]; {
	case c == '"', c == 'n', c == '-', c >= '0' && c <= '9':
		return true
	default:
		return false
	}
}

// DecodeParams unmarshals request params into v. Absent params leave v untouched.
func DecodeParams(req *Request, v any) *Error {
	if len(req.Params) == 0 || bytes.Equal(bytes.TrimSpace(req.Params), nullID) {
		return nil
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return MalformedParams("invalid params for "+req.Method, err)
	}
	return nil
}

// NewResult builds a success response
func NewResult(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: responseID(id), Result: result}
}

// NewErrorResponse builds an error response from any error
func NewErrorResponse(id json.RawMessage, err error) *Response {
	return &Response{
		JSONRPC: JSONRPCVersion,
		ID:      responseID(id),
		Error:   FromError(err).RPCError(),
	}
}

func responseID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return nullID
	}
	return id
}

// EncodeResponse marshals a response for the wire
func EncodeResponse(resp *Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		fallback := NewErrorResponse(resp.ID, Internal(err))
		return json.Marshal(fallback)
	}
	return data, nil
}
