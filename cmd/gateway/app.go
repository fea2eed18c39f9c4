package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/AltairaLabs/mcp-gateway/internal/api"
	"github.com/AltairaLabs/mcp-gateway/internal/coordinator"
	"github.com/AltairaLabs/mcp-gateway/internal/coordinator/config"
	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
	"github.com/AltairaLabs/mcp-gateway/internal/ratelimit"
	"github.com/AltairaLabs/mcp-gateway/internal/registry"
	"github.com/AltairaLabs/mcp-gateway/internal/tools"
	"github.com/AltairaLabs/mcp-gateway/internal/tools/handlers/builtin"
)

const (
	// GracefulStop waits on open streams; force Stop after this
	grpcStopTimeout   = 2 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// app holds the wired gateway services
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	sessions   *coordinator.SessionManager
	registry   *registry.Registry
	limiter    *ratelimit.Limiter
	dispatcher *coordinator.Dispatcher
	rpc        *coordinator.RPCHandler
	health     *health.Server
	api        *api.Server
}

func newApp(cfg *config.Config, logger *slog.Logger, version string) (*app, error) {
	info := protocol.ServerInfo{Name: config.ServerName, Version: version}

	reg := registry.New(info)
	if err := builtin.Register(reg, cfg.Tools); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	sessions := coordinator.NewSessionManager(coordinator.SessionManagerConfig{
		IdleTimeout: cfg.Sessions.IdleTimeout,
		Retention:   cfg.Sessions.Retention,
	}, logger)

	limiter := ratelimit.New(
		ratelimit.WithWindow(cfg.RateLimits.Window),
		ratelimit.WithLimit(ratelimit.CategoryChat, cfg.RateLimits.Chat),
		ratelimit.WithLimit(ratelimit.CategoryToolExecution, cfg.RateLimits.ToolExecution),
		ratelimit.WithLimit(ratelimit.CategoryDocumentOps, cfg.RateLimits.DocumentOps),
		ratelimit.WithLimit(ratelimit.CategoryMCPOps, cfg.RateLimits.MCPOps),
	)

	dispatcher := coordinator.NewDispatcher(reg, sessions, limiter, coordinator.DispatcherConfig{
		Timeout:   cfg.Execution.Timeout,
		QueueWait: cfg.Execution.QueueWait,
		Retention: cfg.Execution.Retention,
		PoolSizes: map[tools.Pool]int{
			tools.PoolDocument: cfg.Execution.DocumentPoolSize,
			tools.PoolSearch:   cfg.Execution.SearchPoolSize,
		},
	}, logger)

	rpc := coordinator.NewRPCHandler(sessions, reg, dispatcher, limiter, info, logger)
	hs := api.NewHealthServer()

	return &app{
		cfg:        cfg,
		logger:     logger,
		sessions:   sessions,
		registry:   reg,
		limiter:    limiter,
		dispatcher: dispatcher,
		rpc:        rpc,
		health:     hs,
		api: api.NewServer(api.Deps{
			Sessions:   sessions,
			Registry:   reg,
			Dispatcher: dispatcher,
			Limiter:    limiter,
			RPC:        rpc,
			Health:     hs,
			Logger:     logger,
			Version:    version,
		}),
	}, nil
}

// run listens on the configured addresses and serves until ctx is done
func (a *app) run(ctx context.Context) error {
	lc := net.ListenConfig{}
	httpLn, err := lc.Listen(ctx, "tcp", a.cfg.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Server.HTTPAddr, err)
	}
	grpcLn, err := lc.Listen(ctx, "tcp", a.cfg.Server.GRPCAddr)
	if err != nil {
		_ = httpLn.Close()
		return fmt.Errorf("listening on %s: %w", a.cfg.Server.GRPCAddr, err)
	}
	return a.serve(ctx, httpLn, grpcLn)
}

// serve runs HTTP, the gRPC health service and the session sweeper on the
// given listeners, then shuts everything down once ctx is done or a server
// fails
func (a *app) serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	httpServer := &http.Server{
		Handler:           a.api.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	grpcServer := grpc.NewServer()
	api.RegisterHealth(grpcServer, a.health)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("Starting HTTP server", "addr", httpLn.Addr().String())
		if err := httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.logger.Info("Starting gRPC health server", "addr", grpcLn.Addr().String())
		if err := grpcServer.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.sessions.Run(gctx, a.cfg.Sessions.SweepInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown(httpServer, grpcServer)
	})

	return g.Wait()
}

// serveStdio serves a single client over in/out until the stream closes
func (a *app) serveStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := coordinator.NewStdioServer(a.rpc, a.sessions, a.logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.sessions.Run(ctx, a.cfg.Sessions.SweepInterval)

	serveErr := stdio.Serve(ctx, in, out)
	cancel()

	stopCtx, stop := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer stop()
	a.sessions.EndAll(protocol.ReasonShutdown)
	if err := a.dispatcher.Shutdown(stopCtx); err != nil {
		return errors.Join(serveErr, err)
	}
	return serveErr
}

func (a *app) shutdown(httpServer *http.Server, grpcServer *grpc.Server) error {
	a.logger.Info("Shutting down gracefully")
	a.api.Drain()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	ended := a.sessions.EndAll(protocol.ReasonShutdown)
	if err := a.dispatcher.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("dispatcher shutdown: %w", err))
	}

	stopGRPC(grpcServer, grpcStopTimeout, a.logger)

	a.logger.Info("Gateway shutdown complete", "sessions_ended", ended)
	return errors.Join(errs...)
}

func stopGRPC(gs *grpc.Server, timeout time.Duration, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("gRPC server stopped gracefully")
	case <-time.After(timeout):
		logger.Warn("Graceful shutdown timeout, forcing stop")
		gs.Stop()
		<-done
	}
}
