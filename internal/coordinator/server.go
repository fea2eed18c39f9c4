package coordinator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
)

// StdioServer serves the JSON-RPC router over newline-delimited stdin and
// stdout. One process serves one client, so the server binds the single
// gateway session established by the client's initialize.
type StdioServer struct {
	rpc      *RPCHandler
	sessions *SessionManager
	logger   *slog.Logger

	mu        sync.RWMutex
	sessionID string

	writeMu sync.Mutex
	calls   sync.WaitGroup
}

// NewStdioServer creates a stdio transport in front of rpc
func NewStdioServer(rpc *RPCHandler, sessions *SessionManager, logger *slog.Logger) *StdioServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StdioServer{
		rpc:      rpc,
		sessions: sessions,
		logger:   logger.With("transport", "stdio"),
	}
}

// SessionID returns the gateway session bound to this transport
func (s *StdioServer) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// HandleMessage routes one message and returns the encoded reply, or nil
// when none is due. A successful initialize rebinds the transport and ends
// the session it replaces.
func (s *StdioServer) HandleMessage(ctx context.Context, message []byte) []byte {
	bound := s.SessionID()
	reply, sid := s.rpc.HandlePayload(ctx, bound, message)
	if sid != bound {
		s.mu.Lock()
		s.sessionID = sid
		s.mu.Unlock()
		if bound != "" {
			_ = s.sessions.End(bound)
		}
	}
	return reply
}

// Serve reads messages from in until it closes or ctx is done. Tool calls
// run concurrently so a slow tool does not hold up the stream; everything
// else is answered in order. The bound session is marked disconnected once
// the last in-flight call has replied.
func (s *StdioServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("Starting MCP server with stdio transport")

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		reader := bufio.NewReader(in)
		for {
			line, err := reader.ReadBytes('\n')
			if len(bytes.TrimSpace(line)) > 0 {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		case err = <-readErr:
			break loop
		case line := <-lines:
			if isToolCall(line) {
				s.calls.Add(1)
				go func() {
					defer s.calls.Done()
					s.reply(out, s.HandleMessage(ctx, line))
				}()
				continue
			}
			if werr := s.reply(out, s.HandleMessage(ctx, line)); werr != nil {
				err = werr
				break loop
			}
		}
	}
	s.calls.Wait()

	if sid := s.SessionID(); sid != "" {
		_ = s.sessions.Disconnect(sid)
	}
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func isToolCall(line []byte) bool {
	var base struct {
		Method string `json:"method"`
	}
	return json.Unmarshal(line, &base) == nil && base.Method == protocol.MethodToolsCall
}

// reply writes one response line; writes from concurrent calls are serialized
func (s *StdioServer) reply(out io.Writer, data []byte) error {
	if data == nil {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := fmt.Fprintf(out, "%s\n", data); err != nil {
		s.logger.Error("writing stdio response", "error", err)
		return err
	}
	return nil
}
