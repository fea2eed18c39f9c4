package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AltairaLabs/mcp-gateway/internal/coordinator/config"
	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
)

const protocolDateLayout = "2006-01-02"

// SessionManagerConfig holds session lifecycle settings
type SessionManagerConfig struct {
	// IdleTimeout ends sessions without activity for longer than this
	IdleTimeout time.Duration
	// Retention keeps ended sessions queryable for this long before purge
	Retention time.Duration
	// Now overrides the clock, for tests
	Now func() time.Time
}

// DefaultSessionManagerConfig returns the production defaults
func DefaultSessionManagerConfig() SessionManagerConfig {
	return SessionManagerConfig{
		IdleTimeout: config.DefaultSessionIdleTimeout,
		Retention:   config.DefaultSessionRetention,
	}
}

type sessionEntry struct {
	mu      sync.Mutex
	session *Session
}

// SessionManager owns session records. Each record has its own lock; the map
// lock is only held to find or publish records.
type SessionManager struct {
	sessions map[string]*sessionEntry
	mu       sync.RWMutex

	hooks   []SessionEndHook
	hooksMu sync.RWMutex

	cfg    SessionManagerConfig
	logger *slog.Logger
}

// NewSessionManager creates a new session manager
func NewSessionManager(cfg SessionManagerConfig, logger *slog.Logger) *SessionManager {
	defaults := DefaultSessionManagerConfig()
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaults.IdleTimeout
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaults.Retention
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		sessions: make(map[string]*sessionEntry),
		cfg:      cfg,
		logger:   logger,
	}
}

// OnEnd registers a hook run whenever a session ends for any reason
func (sm *SessionManager) OnEnd(hook SessionEndHook) {
	sm.hooksMu.Lock()
	sm.hooks = append(sm.hooks, hook)
	sm.hooksMu.Unlock()
}

// NegotiateVersion applies the handshake rule: the server's version is
// accepted as is, a newer well-formed client version is negotiated down,
// and anything older or malformed is refused.
func NegotiateVersion(clientVersion string, allowEmpty bool) (string, error) {
	if clientVersion == protocol.ProtocolVersion {
		return protocol.ProtocolVersion, nil
	}
	if clientVersion == "" {
		if allowEmpty {
			return protocol.ProtocolVersion, nil
		}
		return "", protocol.CapabilityMismatch(clientVersion)
	}
	requested, err := time.Parse(protocolDateLayout, clientVersion)
	if err != nil {
		return "", protocol.CapabilityMismatch(clientVersion)
	}
	supported, _ := time.Parse(protocolDateLayout, protocol.ProtocolVersion)
	if requested.After(supported) {
		return protocol.ProtocolVersion, nil
	}
	return "", protocol.CapabilityMismatch(clientVersion)
}

// Create performs the handshake and publishes a connected session
func (sm *SessionManager) Create(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	version, err := NegotiateVersion(req.ProtocolVersion, req.AllowDefaultVersion)
	if err != nil {
		sm.logger.WarnContext(ctx, "handshake rejected",
			"client", req.ClientInfo.Name,
			"protocol_version", req.ProtocolVersion,
		)
		return nil, err
	}

	now := sm.cfg.Now()
	entry := &sessionEntry{session: &Session{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		DocumentID:      req.DocumentID,
		ProtocolVersion: version,
		ClientInfo:      req.ClientInfo,
		State:           SessionStateInitializing,
		CreatedAt:       now,
		LastActivity:    now,
	}}

	entry.mu.Lock()
	entry.session.Capabilities = Capabilities{
		Server: protocol.DefaultServerCapabilities(),
		Client: req.ClientCapabilities,
	}
	entry.session.State = SessionStateConnected
	snapshot := entry.session.clone()
	entry.mu.Unlock()

	sm.mu.Lock()
	sm.sessions[snapshot.ID] = entry
	sm.mu.Unlock()

	sm.logger.InfoContext(ctx, "session created",
		"session_id", snapshot.ID,
		"user_id", snapshot.UserID,
		"document_id", snapshot.DocumentID,
		"client", req.ClientInfo.Name,
		"requested_version", req.ProtocolVersion,
		"protocol_version", version,
	)
	return snapshot, nil
}

func (sm *SessionManager) entry(sessionID string) (*sessionEntry, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	e, ok := sm.sessions[sessionID]
	return e, ok
}

// liveLocked returns the failure for a non-live session, ending it first if
// it has idled out. The caller holds e.mu; ended reports whether this call
// ended the session so hooks can run after unlock.
func (sm *SessionManager) liveLocked(e *sessionEntry, now time.Time) (ended bool, err error) {
	s := e.session
	if !s.State.Live() {
		return false, protocol.SessionExpired(s.ID, s.EndReason)
	}
	if now.Sub(s.LastActivity) > sm.cfg.IdleTimeout {
		sm.endLocked(e, protocol.ReasonExpired, now)
		return true, protocol.SessionExpired(s.ID, protocol.ReasonExpired)
	}
	return false, nil
}

func (sm *SessionManager) endLocked(e *sessionEntry, reason string, now time.Time) {
	e.session.State = SessionStateEnded
	e.session.EndReason = reason
	e.session.EndedAt = now
}

func (sm *SessionManager) runHooks(sessionID, reason string) {
	sm.hooksMu.RLock()
	hooks := make([]SessionEndHook, len(sm.hooks))
	copy(hooks, sm.hooks)
	sm.hooksMu.RUnlock()

	sm.logger.Info("session ended", "session_id", sessionID, "reason", reason)
	for _, hook := range hooks {
		hook(sessionID, reason)
	}
}

// access runs the liveness check and, when live, applies mutate under the
// session lock
func (sm *SessionManager) access(sessionID string, mutate func(*Session, time.Time)) (*Session, error) {
	e, ok := sm.entry(sessionID)
	if !ok {
		return nil, protocol.SessionNotFound(sessionID)
	}

	e.mu.Lock()
	now := sm.cfg.Now()
	ended, err := sm.liveLocked(e, now)
	if err != nil {
		e.mu.Unlock()
		if ended {
			sm.runHooks(sessionID, protocol.ReasonExpired)
		}
		return nil, err
	}
	if mutate != nil {
		mutate(e.session, now)
	}
	snapshot := e.session.clone()
	e.mu.Unlock()
	return snapshot, nil
}

func bumpActivity(s *Session, now time.Time) {
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
}

// Require returns a snapshot of a live session without touching it
func (sm *SessionManager) Require(sessionID string) (*Session, error) {
	return sm.access(sessionID, nil)
}

// Touch records activity on a live session
func (sm *SessionManager) Touch(sessionID string) (*Session, error) {
	return sm.access(sessionID, bumpActivity)
}

// Heartbeat records activity and reconnects a disconnected session
func (sm *SessionManager) Heartbeat(sessionID string) (*Session, error) {
	return sm.access(sessionID, func(s *Session, now time.Time) {
		bumpActivity(s, now)
		if s.State == SessionStateDisconnected {
			s.State = SessionStateConnected
		}
	})
}

// Disconnect marks a connected session as disconnected
func (sm *SessionManager) Disconnect(sessionID string) error {
	_, err := sm.access(sessionID, func(s *Session, _ time.Time) {
		if s.State == SessionStateConnected {
			s.State = SessionStateDisconnected
		}
	})
	return err
}

// Status returns the status view of a session, ended sessions included until purged
func (sm *SessionManager) Status(sessionID string) (SessionStatus, error) {
	e, ok := sm.entry(sessionID)
	if !ok {
		return SessionStatus{}, protocol.SessionNotFound(sessionID)
	}

	e.mu.Lock()
	ended, _ := sm.liveLocked(e, sm.cfg.Now())
	s := e.session.clone()
	e.mu.Unlock()
	if ended {
		sm.runHooks(sessionID, protocol.ReasonExpired)
	}

	return SessionStatus{
		SessionID:       s.ID,
		Status:          s.State,
		ProtocolVersion: s.ProtocolVersion,
		Capabilities:    s.Capabilities,
		LastActivity:    s.LastActivity,
	}, nil
}

// Get returns a snapshot of any known session regardless of state
func (sm *SessionManager) Get(sessionID string) (*Session, bool) {
	e, ok := sm.entry(sessionID)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.clone(), true
}

// End marks a session ended and runs the end hooks. Ending an ended session
// is a no-op.
func (sm *SessionManager) End(sessionID string) error {
	return sm.EndWithReason(sessionID, protocol.ReasonEnded)
}

// EndWithReason ends a session recording why
func (sm *SessionManager) EndWithReason(sessionID, reason string) error {
	e, ok := sm.entry(sessionID)
	if !ok {
		return protocol.SessionNotFound(sessionID)
	}

	e.mu.Lock()
	if e.session.State == SessionStateEnded {
		e.mu.Unlock()
		return nil
	}
	sm.endLocked(e, reason, sm.cfg.Now())
	e.mu.Unlock()

	sm.runHooks(sessionID, reason)
	return nil
}

// EndAll ends every live session, used at shutdown
func (sm *SessionManager) EndAll(reason string) int {
	ended := 0
	for _, id := range sm.ids() {
		e, ok := sm.entry(id)
		if !ok {
			continue
		}
		e.mu.Lock()
		live := e.session.State.Live()
		if live {
			sm.endLocked(e, reason, sm.cfg.Now())
		}
		e.mu.Unlock()
		if live {
			sm.runHooks(id, reason)
			ended++
		}
	}
	return ended
}

func (sm *SessionManager) ids() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Sweep ends sessions idle past the timeout and purges ended sessions older
// than the retention window
func (sm *SessionManager) Sweep(now time.Time) (expired, purged int) {
	var purge []string
	for _, id := range sm.ids() {
		e, ok := sm.entry(id)
		if !ok {
			continue
		}
		e.mu.Lock()
		s := e.session
		justEnded := false
		switch {
		case s.State == SessionStateEnded:
			if now.Sub(s.EndedAt) > sm.cfg.Retention {
				purge = append(purge, id)
			}
		case now.Sub(s.LastActivity) > sm.cfg.IdleTimeout:
			sm.endLocked(e, protocol.ReasonExpired, now)
			justEnded = true
		}
		e.mu.Unlock()

		if justEnded {
			sm.runHooks(id, protocol.ReasonExpired)
			expired++
		}
	}

	if len(purge) > 0 {
		sm.mu.Lock()
		for _, id := range purge {
			delete(sm.sessions, id)
		}
		sm.mu.Unlock()
	}
	return expired, len(purge)
}

// Run sweeps on every tick until ctx is done
func (sm *SessionManager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			expired, purged := sm.Sweep(sm.cfg.Now())
			if expired > 0 || purged > 0 {
				sm.logger.Info("session sweep", "expired", expired, "purged", purged)
			}
		case <-ctx.Done():
			return
		}
	}
}

// SessionCounts returns how many known sessions are in each state
func (sm *SessionManager) SessionCounts() map[SessionState]int {
	counts := make(map[SessionState]int)
	for _, id := range sm.ids() {
		if s, ok := sm.Get(id); ok {
			counts[s.State]++
		}
	}
	return counts
}

// SessionCount returns the number of sessions held in memory
func (sm *SessionManager) SessionCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}
