package unit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/havenstack/widgetd/internal/domain/ingest"
	"github.com/havenstack/widgetd/internal/domain/session"
	"github.com/havenstack/widgetd/internal/domain/store"
	"github.com/havenstack/widgetd/internal/domain/template"
	"github.com/havenstack/widgetd/internal/shared/types"
	"github.com/havenstack/widgetd/internal/widgets"
)

// channelTransport hands back pre-opened channels keyed by dispatch
// order, letting tests drive the stream directly.
type channelTransport struct {
	streams chan chan types.StreamEvent
}

func newChannelTransport() *channelTransport {
	return &channelTransport{streams: make(chan chan types.StreamEvent, 8)}
}

func (c *channelTransport) Dispatch(_ context.Context, env types.Envelope) (<-chan types.StreamEvent, error) {
	ch := make(chan types.StreamEvent, 16)
	c.streams <- ch
	return ch, nil
}

func (c *channelTransport) Cancel(context.Context, string) error { return nil }

func newSession(t *testing.T, tr *channelTransport) *session.Session {
	t.Helper()
	reg := template.NewRegistry()
	require.NoError(t, widgets.RegisterTemplates(reg))

	return session.New("sess_unit", session.Deps{
		Lifecycle:   context.Background(),
		Registry:    reg,
		Transport:   tr,
		IdleTimeout: 5 * time.Second,
		Logger:      zap.NewNop(),
	})
}

func waitStatus(t *testing.T, st *store.Store, kind types.WidgetKind, want types.Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st.Snapshot(kind).Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("widget %s never reached %s (last: %s)", kind, want, st.Snapshot(kind).Status)
}

func TestWidgetFlow(t *testing.T) {
	t.Run("Token streaming folds in order", func(t *testing.T) {
		tr := newChannelTransport()
		s := newSession(t, tr)

		req, err := s.Dispatcher.StartProcessing(context.Background(), types.WidgetOmni, map[string]interface{}{
			"prompt": "write a haiku",
		}, "")
		require.NoError(t, err)

		stream := <-tr.streams
		stream <- types.StreamEvent{Kind: types.EventToken, RequestID: req.ID, Text: "line one\n"}
		stream <- types.StreamEvent{Kind: types.EventToken, RequestID: req.ID, Text: "line two"}
		stream <- types.StreamEvent{Kind: types.EventEnd, RequestID: req.ID}
		close(stream)

		waitStatus(t, s.Store, types.WidgetOmni, types.StatusIdle)
		snap := s.Store.Snapshot(types.WidgetOmni)
		require.NotNil(t, snap.Current)
		assert.Equal(t, "line one\nline two", snap.Current.Content)
		assert.Equal(t, "line one", snap.Current.Title)
	})

	t.Run("Error event surfaces and acks", func(t *testing.T) {
		tr := newChannelTransport()
		s := newSession(t, tr)

		req, err := s.Dispatcher.StartProcessing(context.Background(), types.WidgetProduct, map[string]interface{}{
			"query": "usb hub",
		}, "")
		require.NoError(t, err)

		stream := <-tr.streams
		stream <- types.StreamEvent{Kind: types.EventError, RequestID: req.ID, Message: "catalog offline"}
		close(stream)

		waitStatus(t, s.Store, types.WidgetProduct, types.StatusError)
		snap := s.Store.Snapshot(types.WidgetProduct)
		assert.Equal(t, types.ContentError, snap.Current.ContentKind)
		assert.Equal(t, "catalog offline", snap.Current.Content)

		assert.True(t, s.Store.Ack(types.WidgetProduct))
		assert.Equal(t, types.StatusIdle, s.Store.Snapshot(types.WidgetProduct).Status)
	})

	t.Run("Hub observes every transition", func(t *testing.T) {
		tr := newChannelTransport()
		s := newSession(t, tr)

		updates, cancel := s.Hub.Subscribe()
		defer cancel()

		req, err := s.Dispatcher.StartProcessing(context.Background(), types.WidgetDream, map[string]interface{}{
			"prompt": "a fox",
		}, "")
		require.NoError(t, err)

		stream := <-tr.streams
		stream <- types.StreamEvent{Kind: types.EventToken, RequestID: req.ID, Text: "x"}
		stream <- types.StreamEvent{Kind: types.EventEnd, RequestID: req.ID}
		close(stream)

		var statuses []types.Status
		timeout := time.After(5 * time.Second)
		for len(statuses) < 3 {
			select {
			case snap := <-updates:
				statuses = append(statuses, snap.Status)
			case <-timeout:
				t.Fatalf("saw %v before timeout", statuses)
			}
		}
		assert.Equal(t, []types.Status{types.StatusProcessing, types.StatusStreaming, types.StatusIdle}, statuses)
	})
}

func TestIngestorTimeoutFlow(t *testing.T) {
	st := store.New(nil)
	in := ingest.New(st, 30*time.Millisecond, zap.NewNop())

	req := types.WidgetRequest{ID: "req_stall", Widget: types.WidgetKnowledge}
	st.Begin(req)

	events := make(chan types.StreamEvent)
	done := make(chan struct{})
	go func() {
		in.Run(context.Background(), types.WidgetKnowledge, req.ID, events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ingestor did not time out")
	}
	close(events)

	snap := st.Snapshot(types.WidgetKnowledge)
	assert.Equal(t, types.StatusError, snap.Status)
	require.NotNil(t, snap.Current)
	assert.Equal(t, types.ContentError, snap.Current.ContentKind)
}
