package store

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/havenstack/widgetd/internal/infrastructure/monitoring"
	"github.com/havenstack/widgetd/internal/shared/id"
	"github.com/havenstack/widgetd/internal/shared/types"
)

// DefaultCapacity bounds history for kinds without an explicit cap.
const DefaultCapacity = 25

// StubTitle marks an item that has not produced content yet.
const StubTitle = "Processing…"

const titleLimit = 48

// Notifier observes widget snapshots after each mutation. Invoked
// outside the store lock.
type Notifier func(snap types.WidgetSnapshot)

// Store is the per-session container of widget states.
type Store struct {
	mu      sync.Mutex
	widgets map[types.WidgetKind]*widgetState
	caps    map[types.WidgetKind]int
	metrics *monitoring.Metrics
	notify  Notifier
}

type widgetState struct {
	status     types.Status
	activeID   string
	current    *types.OutputHistoryItem
	history    []*types.OutputHistoryItem // newest first
	buffer     strings.Builder            // token accumulation for the active stub
	resultSeen bool                       // a structured result has been folded into the active stub
}

// New creates a store with per-kind history capacities.
func New(caps map[types.WidgetKind]int) *Store {
	s := &Store{
		widgets: make(map[types.WidgetKind]*widgetState),
		caps:    make(map[types.WidgetKind]int, len(caps)),
	}
	for k, c := range caps {
		s.caps[k] = c
	}
	return s
}

// WithMetrics adds metrics tracking to the store.
func (s *Store) WithMetrics(m *monitoring.Metrics) *Store {
	s.metrics = m
	return s
}

// SetNotifier installs the snapshot observer.
func (s *Store) SetNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = n
}

func (s *Store) state(kind types.WidgetKind) *widgetState {
	st, ok := s.widgets[kind]
	if !ok {
		st = &widgetState{status: types.StatusIdle}
		s.widgets[kind] = st
	}
	return st
}

func (s *Store) capacity(kind types.WidgetKind) int {
	if c, ok := s.caps[kind]; ok && c > 0 {
		return c
	}
	return DefaultCapacity
}

// Begin establishes req as the widget's sole active request and inserts
// its streaming stub at the head of history. An existing active request
// is superseded: its id is invalidated and its stub is left in history
// as reached, but unmarked as streaming so the new stub is the only one.
func (s *Store) Begin(req types.WidgetRequest) *types.OutputHistoryItem {
	s.mu.Lock()

	st := s.state(req.Widget)

	if st.activeID != "" {
		if old := st.itemByRequest(st.activeID); old != nil {
			old.IsStreaming = false
			old.Progress = nil
		}
		st.activeID = ""
		if s.metrics != nil {
			s.metrics.IncSupersedes(string(req.Widget))
		}
	}

	stub := &types.OutputHistoryItem{
		ID:          id.NewItemID().String(),
		RequestID:   req.ID,
		Timestamp:   time.Now(),
		Widget:      req.Widget,
		Title:       StubTitle,
		ContentKind: types.ContentText,
		IsStreaming: true,
	}

	st.history = append([]*types.OutputHistoryItem{stub}, st.history...)
	s.evict(req.Widget, st)

	st.activeID = req.ID
	st.current = stub
	st.status = types.StatusProcessing
	st.buffer.Reset()
	st.resultSeen = false

	snap := s.snapshotLocked(req.Widget, st)
	s.mu.Unlock()

	s.emit(snap)
	return stub.Clone()
}

// Apply folds one stream event into the widget's active stub. This is
// the single ingestion entry point: events whose request id does not
// match the active request are dropped here, silently.
func (s *Store) Apply(kind types.WidgetKind, ev types.StreamEvent) bool {
	s.mu.Lock()

	st := s.state(kind)
	if st.activeID == "" || st.activeID != ev.RequestID {
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.IncStaleEvents(string(kind))
		}
		return false
	}

	stub := st.itemByRequest(ev.RequestID)
	if stub == nil {
		// Begin always inserts the stub, so a missing one means the
		// history was cleared; treat like a stale event.
		st.activeID = ""
		s.mu.Unlock()
		return false
	}

	switch ev.Kind {
	case types.EventStart:
		// Diagnostic only; the stub already exists.

	case types.EventToken:
		st.buffer.WriteString(ev.Text)
		// Once a structured result has been folded it is authoritative;
		// trailing tokens no longer rewrite content.
		if !st.resultSeen {
			stub.Content = st.buffer.String()
			stub.ContentKind = types.ContentText
		}
		if st.status == types.StatusProcessing {
			st.status = types.StatusStreaming
		}

	case types.EventProgress:
		stub.Progress = ev.Progress
		// Progress may drive the displayed title while streaming, but
		// never the accumulated content.
		if ev.Progress != nil && ev.Progress.Step != "" && stub.Title == StubTitle {
			stub.Title = ev.Progress.Step
		}

	case types.EventResult:
		foldResult(stub, ev.Result)
		st.resultSeen = true

	case types.EventEnd:
		finalize(stub)
		st.status = types.StatusIdle
		st.activeID = ""
		st.buffer.Reset()

	case types.EventError:
		stub.Content = ev.Message
		stub.ContentKind = types.ContentError
		finalize(stub)
		st.status = types.StatusError
		st.activeID = ""
		st.buffer.Reset()
	}

	snap := s.snapshotLocked(kind, st)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.IncStreamEvents(string(kind), string(ev.Kind))
	}
	s.emit(snap)
	return true
}

// FailDispatch finalizes the stub of a synchronously rejected request as
// an error item and returns the widget to idle. The dispatcher never
// leaves a widget in processing without a settled stub. The same id
// guard as Apply holds: a rejection landing after the request was
// superseded settles only its orphaned stub and leaves the new active
// request's status and buffer alone.
func (s *Store) FailDispatch(kind types.WidgetKind, requestID, message string) {
	s.mu.Lock()

	st := s.state(kind)
	if stub := st.itemByRequest(requestID); stub != nil {
		stub.Content = message
		stub.ContentKind = types.ContentError
		finalize(stub)
	}
	if st.activeID == requestID {
		st.activeID = ""
		st.status = types.StatusIdle
		st.buffer.Reset()
	}

	snap := s.snapshotLocked(kind, st)
	s.mu.Unlock()

	s.emit(snap)
}

// CancelActive invalidates the widget's active request without
// dispatching a replacement. The stub is settled as a cancelled error
// item; late events for the old id are dropped by Apply.
func (s *Store) CancelActive(kind types.WidgetKind) (string, bool) {
	s.mu.Lock()

	st := s.state(kind)
	if st.activeID == "" {
		s.mu.Unlock()
		return "", false
	}

	cancelled := st.activeID
	if stub := st.itemByRequest(cancelled); stub != nil {
		stub.Content = "Request cancelled"
		stub.ContentKind = types.ContentError
		finalize(stub)
	}
	st.activeID = ""
	st.status = types.StatusIdle
	st.buffer.Reset()

	snap := s.snapshotLocked(kind, st)
	s.mu.Unlock()

	s.emit(snap)
	return cancelled, true
}

// Ack clears a surfaced error, returning the widget to idle.
func (s *Store) Ack(kind types.WidgetKind) bool {
	s.mu.Lock()

	st := s.state(kind)
	if st.status != types.StatusError {
		s.mu.Unlock()
		return false
	}
	st.status = types.StatusIdle

	snap := s.snapshotLocked(kind, st)
	s.mu.Unlock()

	s.emit(snap)
	return true
}

// SelectOutput points the widget's current output at a history item.
// Pure navigation: status and history are untouched, and selecting the
// same item twice is a no-op.
func (s *Store) SelectOutput(kind types.WidgetKind, itemID string) bool {
	s.mu.Lock()

	st := s.state(kind)
	var found *types.OutputHistoryItem
	for _, item := range st.history {
		if item.ID == itemID {
			found = item
			break
		}
	}
	if found == nil {
		s.mu.Unlock()
		return false
	}
	if st.current == found {
		s.mu.Unlock()
		return true
	}
	st.current = found

	snap := s.snapshotLocked(kind, st)
	s.mu.Unlock()

	s.emit(snap)
	return true
}

// ClearHistory empties the widget's history, abandons any in-flight
// request, and forces the widget back to idle. Late events for the
// abandoned request are discarded by Apply's id guard.
func (s *Store) ClearHistory(kind types.WidgetKind) (string, bool) {
	s.mu.Lock()

	st := s.state(kind)
	abandoned := st.activeID
	st.history = nil
	st.current = nil
	st.activeID = ""
	st.status = types.StatusIdle
	st.buffer.Reset()

	snap := s.snapshotLocked(kind, st)
	s.mu.Unlock()

	s.emit(snap)
	return abandoned, abandoned != ""
}

// ActiveRequest returns the widget's active request id, if any.
func (s *Store) ActiveRequest(kind types.WidgetKind) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(kind)
	return st.activeID, st.activeID != ""
}

// Snapshot returns a read-only copy of one widget's state.
func (s *Store) Snapshot(kind types.WidgetKind) types.WidgetSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked(kind, s.state(kind))
}

// SnapshotAll returns read-only copies for every widget kind.
func (s *Store) SnapshotAll() []types.WidgetSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snaps := make([]types.WidgetSnapshot, 0, len(types.Kinds()))
	for _, k := range types.Kinds() {
		snaps = append(snaps, s.snapshotLocked(k, s.state(k)))
	}
	return snaps
}

// evict drops the oldest non-streaming items beyond capacity.
// Must hold lock.
func (s *Store) evict(kind types.WidgetKind, st *widgetState) {
	limit := s.capacity(kind)
	for len(st.history) > limit {
		removed := false
		for i := len(st.history) - 1; i >= 0; i-- {
			if st.history[i].IsStreaming {
				continue
			}
			if st.current == st.history[i] {
				st.current = nil
			}
			st.history = append(st.history[:i], st.history[i+1:]...)
			removed = true
			if s.metrics != nil {
				s.metrics.IncHistoryEvictions(string(kind))
			}
			break
		}
		if !removed {
			break
		}
	}
}

// snapshotLocked copies widget state for readers. Must hold lock.
func (s *Store) snapshotLocked(kind types.WidgetKind, st *widgetState) types.WidgetSnapshot {
	history := make([]*types.OutputHistoryItem, len(st.history))
	for i, item := range st.history {
		history[i] = item.Clone()
	}
	return types.WidgetSnapshot{
		Widget:          kind,
		Status:          st.status,
		ActiveRequestID: st.activeID,
		Current:         st.current.Clone(),
		History:         history,
	}
}

func (s *Store) emit(snap types.WidgetSnapshot) {
	if s.notify != nil {
		s.notify(snap)
	}
}

func (st *widgetState) itemByRequest(requestID string) *types.OutputHistoryItem {
	for _, item := range st.history {
		if item.RequestID == requestID {
			return item
		}
	}
	return nil
}

// finalize freezes an item; it is never mutated again except by
// explicit deletion.
func finalize(item *types.OutputHistoryItem) {
	item.IsStreaming = false
	item.Progress = nil
	if item.Title == StubTitle {
		item.Title = deriveTitle(item.Content)
	}
}

func deriveTitle(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "Untitled result"
	}
	if nl := strings.IndexByte(trimmed, '\n'); nl > 0 {
		trimmed = trimmed[:nl]
	}
	if len(trimmed) > titleLimit {
		cut := titleLimit
		for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
			cut--
		}
		trimmed = trimmed[:cut] + "…"
	}
	return trimmed
}

// foldResult merges the authoritative structured payload into the stub.
// Well-known keys land in first-class fields; the rest goes to metadata.
func foldResult(stub *types.OutputHistoryItem, result map[string]interface{}) {
	if result == nil {
		return
	}
	rest := make(map[string]interface{})
	for k, v := range result {
		switch k {
		case "image_url":
			if u, ok := v.(string); ok {
				stub.Content = u
				stub.ContentKind = types.ContentURL
				continue
			}
		case "text":
			if t, ok := v.(string); ok {
				stub.Content = t
				stub.ContentKind = types.ContentText
				continue
			}
		case "title":
			if t, ok := v.(string); ok {
				stub.Title = t
				continue
			}
		}
		rest[k] = v
	}
	if len(rest) > 0 {
		if stub.Metadata == nil {
			stub.Metadata = make(map[string]interface{}, len(rest))
		}
		for k, v := range rest {
			stub.Metadata[k] = v
		}
		if stub.ContentKind == types.ContentText && stub.Content == "" {
			stub.ContentKind = types.ContentStructured
		}
	}
}
