package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
)

// handleRPC serves JSON-RPC over POST /mcp. The session travels in the
// Mcp-Session-Id header; initialize returns it in the same header.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.writeRPCError(w, protocol.ParseError(err))
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.writeRPCError(w, protocol.InvalidRequest("request body too large"))
		return
	}

	payload, sid := s.rpc.HandlePayload(r.Context(), r.Header.Get(protocol.SessionHeader), body)
	if sid != "" {
		w.Header().Set(protocol.SessionHeader, sid)
	}
	if payload == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (s *Server) writeRPCError(w http.ResponseWriter, perr *protocol.Error) {
	data, err := protocol.EncodeResponse(protocol.NewErrorResponse(nil, perr))
	if err != nil {
		http.Error(w, fmt.Sprintf("encoding error response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
