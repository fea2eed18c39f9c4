package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"

	"github.com/AltairaLabs/mcp-gateway/internal/coordinator/cache"
	"github.com/AltairaLabs/mcp-gateway/internal/coordinator/config"
	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
	"github.com/AltairaLabs/mcp-gateway/internal/ratelimit"
	"github.com/AltairaLabs/mcp-gateway/internal/registry"
	"github.com/AltairaLabs/mcp-gateway/internal/tools"
)

// DispatcherConfig holds execution limits
type DispatcherConfig struct {
	// Timeout is the deadline of a single tool call
	Timeout time.Duration
	// QueueWait is how long an execution may wait for a worker slot
	QueueWait time.Duration
	// Retention keeps settled executions pollable for this long
	Retention time.Duration
	// PoolSizes caps concurrent calls per pool
	PoolSizes map[tools.Pool]int
	// Now overrides the clock used for execution timestamps
	Now func() time.Time
}

// DefaultDispatcherConfig returns the production defaults
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Timeout:   config.DefaultExecutionTimeout,
		QueueWait: config.DefaultQueueWait,
		Retention: config.DefaultExecutionRetention,
		PoolSizes: map[tools.Pool]int{
			tools.PoolDocument: config.DefaultDocumentPoolSize,
			tools.PoolSearch:   config.DefaultSearchPoolSize,
		},
	}
}

// PoolStats describes one worker pool
type PoolStats struct {
	Size   int   `json:"size"`
	Active int64 `json:"active"`
}

type workerPool struct {
	name   tools.Pool
	size   int
	sem    *semaphore.Weighted
	active atomic.Int64
}

type execution struct {
	mu     sync.Mutex
	rec    ToolExecution
	userID string
	done   chan struct{}
	cancel context.CancelCauseFunc
}

func (e *execution) snapshot() *ToolExecution {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.clone()
}

type callOutcome struct {
	result *tools.Result
	err    error
}

var errShuttingDown = protocol.NewError(protocol.CodeServerBusy, config.MsgShuttingDown, nil)

// Dispatcher validates and runs tool calls under admission, concurrency and
// deadline controls, and keeps their records for polling
type Dispatcher struct {
	registry *registry.Registry
	sessions *SessionManager
	limiter  *ratelimit.Limiter
	store    *cache.ResultCache[*execution]
	pools    map[tools.Pool]*workerPool
	audit    *AuditLogger
	logger   *slog.Logger
	cfg      DispatcherConfig

	mu       sync.Mutex
	inFlight map[string]map[string]*execution // session id -> execution id
	closed   bool
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher and hooks it into session end
func NewDispatcher(
	reg *registry.Registry,
	sessions *SessionManager,
	limiter *ratelimit.Limiter,
	cfg DispatcherConfig,
	logger *slog.Logger,
) *Dispatcher {
	defaults := DefaultDispatcherConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.QueueWait < 0 {
		cfg.QueueWait = 0
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaults.Retention
	}
	if cfg.PoolSizes == nil {
		cfg.PoolSizes = defaults.PoolSizes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	pools := make(map[tools.Pool]*workerPool, len(cfg.PoolSizes))
	for name, size := range cfg.PoolSizes {
		if size <= 0 {
			size = defaults.PoolSizes[name]
		}
		if size <= 0 {
			size = 1
		}
		pools[name] = &workerPool{name: name, size: size, sem: semaphore.NewWeighted(int64(size))}
	}

	store := cache.NewResultCache[*execution](cfg.Retention,
		cache.WithClock(cfg.Now),
		cache.WithCleanupInterval(config.DefaultCacheCleanupInterval),
	)
	d := &Dispatcher{
		registry: reg,
		sessions: sessions,
		limiter:  limiter,
		store:    store,
		pools:    pools,
		audit:    NewAuditLogger(logger),
		logger:   logger,
		cfg:      cfg,
		inFlight: make(map[string]map[string]*execution),
	}
	sessions.OnEnd(func(sessionID, reason string) {
		d.CancelSession(sessionID, reason)
		limiter.Forget(sessionID)
	})
	return d
}

// Timeout returns the per-call deadline
func (d *Dispatcher) Timeout() time.Duration {
	return d.cfg.Timeout
}

// Execute runs the gate sequence and dispatches the call. Gate failures
// return an error and leave no record. Once dispatched the returned record
// is either terminal or, for async requests, the state at dispatch.
func (d *Dispatcher) Execute(ctx context.Context, req ExecuteRequest) (*ToolExecution, error) {
	sess, err := d.sessions.Require(req.SessionID)
	if err != nil {
		return nil, err
	}

	entry, err := d.registry.Lookup(req.ToolName)
	if err != nil {
		return nil, protocol.MethodNotFound("tool", req.ToolName)
	}

	if err := entry.Validate(req.Parameters); err != nil {
		return nil, protocol.InvalidParams(err.Error()).WithData("tool", req.ToolName)
	}

	if rejected := d.admit(req.SessionID, tools.IsDocumentOp(entry.Tool)); rejected != nil {
		if rejected.Code == protocol.CodeRateLimitExceeded {
			d.audit.LogRejected(ctx, &AuditEntry{
				SessionID: sess.ID,
				UserID:    sess.UserID,
				ToolName:  req.ToolName,
				ErrorCode: string(rejected.Code),
				ErrorMsg:  rejected.Message,
			})
		}
		return nil, rejected
	}
	if sess, err = d.sessions.Touch(req.SessionID); err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	exec, err := d.register(sess, req, cancel)
	if err != nil {
		cancel(err)
		return nil, err
	}

	d.audit.LogToolCall(ctx, &AuditEntry{
		Timestamp:   exec.rec.CreatedAt,
		SessionID:   sess.ID,
		UserID:      sess.UserID,
		DocumentID:  sess.DocumentID,
		ToolName:    req.ToolName,
		ExecutionID: exec.rec.ExecutionID,
		Arguments:   req.Parameters,
	})

	d.wg.Add(1)
	go d.run(execCtx, exec, entry)

	if req.Async {
		return exec.snapshot(), nil
	}
	select {
	case <-exec.done:
	case <-ctx.Done():
	}
	return exec.snapshot(), nil
}

// admit charges tool_execution and, for document tools, document_ops. The
// document budget is checked before either is charged so a document
// rejection does not spend the execution budget.
func (d *Dispatcher) admit(sessionID string, documentOp bool) *protocol.Error {
	categories := []ratelimit.Category{ratelimit.CategoryToolExecution}
	if documentOp {
		peek, err := d.limiter.Peek(sessionID, ratelimit.CategoryDocumentOps)
		if err != nil {
			return protocol.Internal(err)
		}
		if !peek.Allowed {
			return protocol.RateLimited(string(ratelimit.CategoryDocumentOps), peek.Limit, peek.Reset)
		}
		categories = append(categories, ratelimit.CategoryDocumentOps)
	}
	for _, category := range categories {
		decision, err := d.limiter.Admit(sessionID, category)
		if err != nil {
			return protocol.Internal(err)
		}
		if !decision.Allowed {
			return protocol.RateLimited(string(category), decision.Limit, decision.Reset)
		}
	}
	return nil
}

// register creates the pending record and tracks it against its session.
// The session is re-checked after tracking so an end racing this call
// either sees the record or is seen here.
func (d *Dispatcher) register(sess *Session, req ExecuteRequest, cancel context.CancelCauseFunc) (*execution, error) {
	exec := &execution{
		rec: ToolExecution{
			ExecutionID: ulid.Make().String(),
			SessionID:   sess.ID,
			ToolName:    req.ToolName,
			Parameters:  req.Parameters,
			Status:      ExecutionPending,
			CreatedAt:   d.cfg.Now(),
		},
		userID: sess.UserID,
		done:   make(chan struct{}),
		cancel: cancel,
	}

	if err := d.store.Store(exec.rec.ExecutionID, exec); err != nil {
		return nil, protocol.Internal(err)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.store.Delete(exec.rec.ExecutionID)
		return nil, errShuttingDown
	}
	byID, ok := d.inFlight[sess.ID]
	if !ok {
		byID = make(map[string]*execution)
		d.inFlight[sess.ID] = byID
	}
	byID[exec.rec.ExecutionID] = exec
	d.mu.Unlock()

	if _, err := d.sessions.Require(sess.ID); err != nil {
		d.untrack(exec)
		d.store.Delete(exec.rec.ExecutionID)
		return nil, err
	}
	return exec, nil
}

func (d *Dispatcher) untrack(exec *execution) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if byID, ok := d.inFlight[exec.rec.SessionID]; ok {
		delete(byID, exec.rec.ExecutionID)
		if len(byID) == 0 {
			delete(d.inFlight, exec.rec.SessionID)
		}
	}
}

func (d *Dispatcher) pool(name tools.Pool) *workerPool {
	if p, ok := d.pools[name]; ok {
		return p
	}
	return d.pools[tools.PoolDocument]
}

func (d *Dispatcher) run(ctx context.Context, exec *execution, entry *registry.Entry) {
	defer d.wg.Done()

	pool := d.pool(entry.Descriptor.Pool)
	if err := d.acquire(ctx, pool); err != nil {
		if ctx.Err() != nil {
			d.fail(exec, protocol.FromError(context.Cause(ctx)))
			return
		}
		d.logger.Warn("worker pool saturated",
			"pool", pool.name,
			"size", pool.size,
			"execution_id", exec.rec.ExecutionID,
		)
		d.fail(exec, protocol.ServerBusy(string(pool.name), d.cfg.QueueWait))
		return
	}
	pool.active.Add(1)

	if !d.markRunning(exec) {
		pool.active.Add(-1)
		pool.sem.Release(1)
		return
	}

	callCtx, cancelCall := context.WithTimeoutCause(ctx, d.cfg.Timeout, protocol.ExecutionTimeout(d.cfg.Timeout))
	defer cancelCall()

	outcome := make(chan callOutcome, 1)
	go func() {
		defer pool.sem.Release(1)
		defer pool.active.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("tool panicked",
					"tool_name", entry.Descriptor.Name,
					"execution_id", exec.rec.ExecutionID,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				outcome <- callOutcome{err: protocol.Internal(fmt.Errorf("tool %s panicked: %v", entry.Descriptor.Name, r))}
			}
		}()

		request := mcp.CallToolRequest{
			Params: mcp.CallToolParams{
				Name:      entry.Descriptor.Name,
				Arguments: exec.rec.Parameters,
			},
		}
		result, err := entry.Tool.Execute(callCtx, request)
		outcome <- callOutcome{result: result, err: err}
	}()

	select {
	case out := <-outcome:
		if out.err != nil {
			d.fail(exec, d.classify(callCtx, out.err))
			return
		}
		d.complete(exec, out.result)
	case <-callCtx.Done():
		d.fail(exec, protocol.FromError(context.Cause(callCtx)))
	}
}

// classify maps an error returned by a tool onto the taxonomy
func (d *Dispatcher) classify(callCtx context.Context, err error) *protocol.Error {
	var toolErr *tools.Error
	var perr *protocol.Error
	switch {
	case errors.As(err, &toolErr):
		return protocol.NewError(toolErr.Code, toolErr.Message, toolErr.Data)
	case errors.As(err, &perr):
		return perr
	case callCtx.Err() != nil:
		return protocol.FromError(context.Cause(callCtx))
	default:
		return protocol.ToolFailure(err.Error(), nil)
	}
}

// acquire takes a slot, waiting at most QueueWait. A zero QueueWait never waits.
func (d *Dispatcher) acquire(ctx context.Context, pool *workerPool) error {
	if d.cfg.QueueWait == 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !pool.sem.TryAcquire(1) {
			return context.DeadlineExceeded
		}
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, d.cfg.QueueWait)
	defer cancel()
	return pool.sem.Acquire(waitCtx, 1)
}

func (d *Dispatcher) markRunning(exec *execution) bool {
	exec.mu.Lock()
	defer exec.mu.Unlock()
	if !exec.rec.Status.canTransition(ExecutionRunning) {
		return false
	}
	exec.rec.Status = ExecutionRunning
	exec.rec.StartedAt = d.cfg.Now()
	return true
}

func (d *Dispatcher) complete(exec *execution, result *tools.Result) {
	var content []protocol.Content
	if result != nil {
		content = result.Content
	}
	if content == nil {
		content = []protocol.Content{}
	}
	d.finish(exec, ExecutionCompleted, content, nil)
}

func (d *Dispatcher) fail(exec *execution, err *protocol.Error) {
	if err.Code == protocol.CodeInternal {
		d.logger.Error("execution failed with internal error",
			"execution_id", exec.rec.ExecutionID,
			"error", err,
		)
	}
	d.finish(exec, ExecutionError, nil, newExecutionFailure(err))
}

// finish applies a terminal transition. The first terminal status wins;
// later attempts are ignored.
func (d *Dispatcher) finish(exec *execution, status ExecutionStatus, result []protocol.Content, failure *ExecutionFailure) bool {
	exec.mu.Lock()
	if !exec.rec.Status.canTransition(status) {
		exec.mu.Unlock()
		return false
	}
	now := d.cfg.Now()
	exec.rec.Status = status
	exec.rec.Result = result
	exec.rec.Error = failure
	exec.rec.CompletedAt = now
	exec.rec.ExecutionTime = now.Sub(exec.rec.CreatedAt).Seconds()
	entry := &AuditEntry{
		SessionID:    exec.rec.SessionID,
		UserID:       exec.userID,
		ToolName:     exec.rec.ToolName,
		ExecutionID:  exec.rec.ExecutionID,
		Status:       status,
		ContentItems: len(result),
		Duration:     now.Sub(exec.rec.CreatedAt),
	}
	if failure != nil {
		entry.ErrorCode = string(failure.ErrorCode)
		entry.ErrorMsg = failure.Message
	}
	exec.mu.Unlock()

	d.untrack(exec)
	d.store.Expire(exec.rec.ExecutionID)
	close(exec.done)
	d.audit.LogToolResult(context.Background(), entry)
	return true
}

// Status returns the current snapshot of an execution
func (d *Dispatcher) Status(executionID string) (*ToolExecution, error) {
	exec, err := d.store.Get(executionID)
	if err != nil {
		return nil, protocol.NotFound("execution", executionID)
	}
	return exec.snapshot(), nil
}

// Wait blocks until the execution settles or ctx is done
func (d *Dispatcher) Wait(ctx context.Context, executionID string) (*ToolExecution, error) {
	exec, err := d.store.Get(executionID)
	if err != nil {
		return nil, protocol.NotFound("execution", executionID)
	}
	select {
	case <-exec.done:
		return exec.snapshot(), nil
	case <-ctx.Done():
		return exec.snapshot(), ctx.Err()
	}
}

// CancelSession fails every in-flight execution of a session with
// SESSION_ENDED and cancels its call. Returns how many were cancelled.
func (d *Dispatcher) CancelSession(sessionID, reason string) int {
	d.mu.Lock()
	execs := make([]*execution, 0, len(d.inFlight[sessionID]))
	for _, exec := range d.inFlight[sessionID] {
		execs = append(execs, exec)
	}
	d.mu.Unlock()

	cancelled := 0
	for _, exec := range execs {
		cause := protocol.SessionEnded(sessionID, reason)
		if d.finish(exec, ExecutionError, nil, newExecutionFailure(cause)) {
			cancelled++
		}
		exec.cancel(cause)
	}
	if cancelled > 0 {
		d.logger.Info("cancelled in-flight executions",
			"session_id", sessionID,
			"reason", reason,
			"count", cancelled,
		)
	}
	return cancelled
}

// InFlight returns the number of executions not yet settled
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, byID := range d.inFlight {
		n += len(byID)
	}
	return n
}

// SessionInFlight returns the number of unsettled executions of one session
func (d *Dispatcher) SessionInFlight(sessionID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inFlight[sessionID])
}

// PoolStats reports the size and current use of each pool
func (d *Dispatcher) PoolStats() map[tools.Pool]PoolStats {
	stats := make(map[tools.Pool]PoolStats, len(d.pools))
	for name, p := range d.pools {
		stats[name] = PoolStats{Size: p.size, Active: p.active.Load()}
	}
	return stats
}

// RetainedExecutions returns the number of execution records held
func (d *Dispatcher) RetainedExecutions() int {
	return d.store.Size()
}

// Shutdown refuses new executions, fails in-flight ones and waits for their
// goroutines until ctx is done
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	sessions := make([]string, 0, len(d.inFlight))
	for id := range d.inFlight {
		sessions = append(sessions, id)
	}
	d.mu.Unlock()

	for _, id := range sessions {
		d.CancelSession(id, protocol.ReasonShutdown)
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	defer d.store.Close()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for executions: %w", ctx.Err())
	}
}
