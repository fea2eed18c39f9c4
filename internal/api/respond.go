package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
)

// errorResponse is the REST error body
type errorResponse struct {
	Error *protocol.RPCError `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("writing response", "error", err)
	}
}

// writeError renders err with the status its category maps to. Internal
// errors are logged here and reach the client without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	perr := protocol.FromError(err)
	if perr.Code == protocol.CodeInternal {
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}

	switch perr.Code {
	case protocol.CodeRateLimitExceeded:
		setRateLimitHeaders(w.Header(), perr.Data["limit"], 0, perr.Data["reset"])
		w.Header().Set("Retry-After", strconv.FormatInt(s.retryAfter(perr.Data["reset"]), 10))
	case protocol.CodeServerBusy:
		retry := 1
		if v, ok := perr.Data["retry_after_seconds"].(int); ok && v > 0 {
			retry = v
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
	}
	s.writeJSON(w, perr.HTTPStatus(), errorResponse{Error: perr.RPCError()})
}

func (s *Server) retryAfter(reset any) int64 {
	epoch, ok := reset.(int64)
	if !ok {
		return 1
	}
	return max(epoch-s.now().Unix(), 1)
}

func setRateLimitHeaders(h http.Header, limit, remaining, reset any) {
	h.Set("X-RateLimit-Limit", fmt.Sprint(limit))
	h.Set("X-RateLimit-Remaining", fmt.Sprint(remaining))
	h.Set("X-RateLimit-Reset", fmt.Sprint(reset))
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v as is.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	err := json.NewDecoder(body).Decode(v)
	var maxErr *http.MaxBytesError
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	case errors.As(err, &maxErr):
		return protocol.InvalidRequest("request body too large")
	default:
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
			return protocol.ParseError(err)
		}
		return protocol.MalformedParams("invalid request body", err)
	}
}
