package coordinator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
	"github.com/AltairaLabs/mcp-gateway/internal/ratelimit"
	"github.com/AltairaLabs/mcp-gateway/internal/registry"
	"github.com/AltairaLabs/mcp-gateway/internal/tools"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 11, 5, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testServerInfo = protocol.ServerInfo{Name: "mcp-gateway", Version: "test"}

type harness struct {
	clock      *fakeClock
	sessions   *SessionManager
	registry   *registry.Registry
	limiter    *ratelimit.Limiter
	dispatcher *Dispatcher
	rpc        *RPCHandler
	// started receives the execution's tool name when a blocking tool begins
	started chan string
}

type harnessOption func(*DispatcherConfig, *[]ratelimit.Option)

func withDispatcherConfig(fn func(*DispatcherConfig)) harnessOption {
	return func(c *DispatcherConfig, _ *[]ratelimit.Option) { fn(c) }
}

func withLimit(category ratelimit.Category, limit int) harnessOption {
	return func(_ *DispatcherConfig, opts *[]ratelimit.Option) {
		*opts = append(*opts, ratelimit.WithLimit(category, limit))
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	clock := newFakeClock()
	logger := discardLogger()
	dcfg := DispatcherConfig{
		Timeout:   5 * time.Second,
		QueueWait: 0,
		PoolSizes: map[tools.Pool]int{tools.PoolDocument: 10, tools.PoolSearch: 20},
		Now:       clock.Now,
	}
	limiterOpts := []ratelimit.Option{ratelimit.WithClock(clock.Now)}
	for _, opt := range opts {
		opt(&dcfg, &limiterOpts)
	}

	h := &harness{
		clock:    clock,
		sessions: NewSessionManager(SessionManagerConfig{Now: clock.Now}, logger),
		registry: registry.New(testServerInfo),
		limiter:  ratelimit.New(limiterOpts...),
		started:  make(chan string, 64),
	}
	h.registerTestTools(t)
	h.dispatcher = NewDispatcher(h.registry, h.sessions, h.limiter, dcfg, logger)
	h.rpc = NewRPCHandler(h.sessions, h.registry, h.dispatcher, h.limiter, testServerInfo, logger)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.dispatcher.Shutdown(ctx)
	})
	return h
}

func (h *harness) registerTestTools(t *testing.T) {
	t.Helper()

	echo := tools.New(
		mcp.NewTool("echo",
			mcp.WithDescription("Echo a message"),
			mcp.WithString("message", mcp.Required()),
		),
		tools.PoolDocument,
		func(_ context.Context, req mcp.CallToolRequest) (*tools.Result, error) {
			return tools.TextResult(req.GetString("message", "")), nil
		},
	)

	block := func(pool tools.Pool, name string) tools.Tool {
		return tools.New(
			mcp.NewTool(name, mcp.WithDescription("Block until cancelled")),
			pool,
			func(ctx context.Context, _ mcp.CallToolRequest) (*tools.Result, error) {
				h.started <- name
				<-ctx.Done()
				return nil, ctx.Err()
			},
		)
	}

	failing := tools.New(
		mcp.NewTool("failing", mcp.WithDescription("Always fails")),
		tools.PoolDocument,
		func(context.Context, mcp.CallToolRequest) (*tools.Result, error) {
			return nil, tools.Failure("upstream returned %d", 502)
		},
	)

	panicky := tools.New(
		mcp.NewTool("panicky", mcp.WithDescription("Always panics")),
		tools.PoolDocument,
		func(context.Context, mcp.CallToolRequest) (*tools.Result, error) {
			panic("secret internal state 0xdeadbeef")
		},
	)

	for _, tool := range []tools.Tool{echo, block(tools.PoolDocument, "slow"), block(tools.PoolSearch, "slow_search"), failing, panicky} {
		require.NoError(t, h.registry.Register(tool))
	}
}

func (h *harness) newSession(t *testing.T) *Session {
	t.Helper()
	sess, err := h.sessions.Create(context.Background(), CreateSessionRequest{
		UserID:          "user-1",
		DocumentID:      "doc-1",
		ProtocolVersion: protocol.ProtocolVersion,
		ClientInfo:      protocol.ClientInfo{Name: "test-client", Version: "1.0"},
	})
	require.NoError(t, err)
	return sess
}

func (h *harness) waitStarted(t *testing.T, name string) {
	t.Helper()
	select {
	case got := <-h.started:
		require.Equal(t, name, got)
	case <-time.After(5 * time.Second):
		t.Fatalf("tool %s did not start", name)
	}
}

func requireCode(t *testing.T, err error, code protocol.ErrorCode) *protocol.Error {
	t.Helper()
	require.Error(t, err)
	perr := protocol.FromError(err)
	require.Equal(t, code, perr.Code, "error: %v", err)
	return perr
}
