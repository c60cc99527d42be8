package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/havenstack/widgetd/internal/infrastructure/monitoring"
	"github.com/havenstack/widgetd/internal/shared/id"
)

// DefaultTTL evicts sessions untouched for this long.
const DefaultTTL = 30 * time.Minute

// DefaultSweepInterval is how often expired sessions are collected.
const DefaultSweepInterval = 5 * time.Minute

// Manager owns the live session set. Sessions are created on first use
// and reaped after a TTL of inactivity.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	deps  Deps
	ttl   time.Duration
	sweep time.Duration

	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewManager creates a session manager building sessions from deps.
func NewManager(deps Deps, ttl, sweep time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweep <= 0 {
		sweep = DefaultSweepInterval
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		deps:     deps,
		ttl:      ttl,
		sweep:    sweep,
		metrics:  deps.Metrics,
		logger:   logger,
	}
}

// GetOrCreate returns the session for sessionID, creating it first if
// needed. An empty id mints a new session.
func (m *Manager) GetOrCreate(sessionID string) *Session {
	if sessionID == "" {
		sessionID = id.NewSessionID().String()
	}

	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		s.Touch()
		return s
	}

	m.mu.Lock()
	if s, ok = m.sessions[sessionID]; ok {
		m.mu.Unlock()
		s.Touch()
		return s
	}
	s = New(sessionID, m.deps)
	m.sessions[sessionID] = s
	count := len(m.sessions)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetSessionsActive(count)
	}
	m.logger.Info("session created", zap.String("session_id", sessionID))
	return s
}

// Get returns an existing session without creating one.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	return s, ok
}

// Remove evicts a session and closes its hub.
func (m *Manager) Remove(sessionID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.Hub.Close()
	if m.metrics != nil {
		m.metrics.SetSessionsActive(count)
	}
	m.logger.Info("session removed", zap.String("session_id", sessionID))
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Run sweeps expired sessions until ctx ends.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reap()
		}
	}
}

func (m *Manager) reap() {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	var expired []*Session
	for sid, s := range m.sessions {
		// A session with live subscribers is in use even without
		// recent HTTP traffic.
		if s.IdleSince().Before(cutoff) && s.Hub.Subscribers() == 0 {
			delete(m.sessions, sid)
			expired = append(expired, s)
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	for _, s := range expired {
		s.Hub.Close()
		m.logger.Info("session expired", zap.String("session_id", s.ID))
	}
	if len(expired) > 0 && m.metrics != nil {
		m.metrics.SetSessionsActive(count)
	}
}
