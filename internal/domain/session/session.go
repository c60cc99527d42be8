package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/havenstack/widgetd/internal/domain/dispatch"
	"github.com/havenstack/widgetd/internal/domain/ingest"
	"github.com/havenstack/widgetd/internal/domain/store"
	"github.com/havenstack/widgetd/internal/domain/template"
	"github.com/havenstack/widgetd/internal/infrastructure/monitoring"
	"github.com/havenstack/widgetd/internal/shared/types"
)

// Session binds one caller's widget state to its dispatcher. All widget
// mutations for a session flow through these two objects.
type Session struct {
	ID         string
	Store      *store.Store
	Dispatcher *dispatch.Dispatcher
	Hub        *Hub
	CreatedAt  time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

// Deps carries the shared collaborators every session is built from.
type Deps struct {
	Lifecycle   context.Context
	Registry    *template.Registry
	Transport   dispatch.Transport
	Capacities  map[types.WidgetKind]int
	IdleTimeout time.Duration
	Metrics     *monitoring.Metrics
	Logger      *zap.Logger
}

// New assembles a session: a fresh store, its ingestor, a dispatcher
// scoped to the session id, and a hub receiving every store mutation.
func New(id string, deps Deps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("session_id", id))

	st := store.New(deps.Capacities)
	if deps.Metrics != nil {
		st.WithMetrics(deps.Metrics)
	}

	hub := NewHub()
	st.SetNotifier(hub.Publish)

	in := ingest.New(st, deps.IdleTimeout, logger)
	if deps.Metrics != nil {
		in.WithMetrics(deps.Metrics)
	}

	d := dispatch.New(deps.Lifecycle, deps.Registry, st, in, deps.Transport, id, logger)
	if deps.Metrics != nil {
		d.WithMetrics(deps.Metrics)
	}

	now := time.Now()
	return &Session{
		ID:         id,
		Store:      st,
		Dispatcher: d,
		Hub:        hub,
		CreatedAt:  now,
		lastSeen:   now,
	}
}

// Touch marks the session as recently used.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// IdleSince reports the last activity time.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
