package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/havenstack/widgetd/internal/domain/ingest"
	"github.com/havenstack/widgetd/internal/domain/store"
	"github.com/havenstack/widgetd/internal/domain/template"
	"github.com/havenstack/widgetd/internal/infrastructure/tracing"
	"github.com/havenstack/widgetd/internal/shared/types"
)

type fakeTransport struct {
	mu        sync.Mutex
	envelopes []types.Envelope
	cancelled []string
	streams   map[string]chan types.StreamEvent
	contexts  map[string]context.Context
	err       error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		streams:  make(map[string]chan types.StreamEvent),
		contexts: make(map[string]context.Context),
	}
}

func (f *fakeTransport) Dispatch(ctx context.Context, env types.Envelope) (<-chan types.StreamEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.envelopes = append(f.envelopes, env)
	ch := make(chan types.StreamEvent, 16)
	f.streams[env.RequestID] = ch
	f.contexts[env.RequestID] = ctx
	return ch, nil
}

func (f *fakeTransport) Cancel(_ context.Context, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, requestID)
	return nil
}

func (f *fakeTransport) stream(requestID string) chan types.StreamEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[requestID]
}

func (f *fakeTransport) context(requestID string) context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contexts[requestID]
}

func newTestRegistry(t *testing.T) *template.Registry {
	t.Helper()
	reg := template.NewRegistry()
	err := reg.Register(template.Spec{
		Kind:         types.WidgetOmni,
		PrimaryField: "prompt",
		ModeField:    "mode",
		DefaultMode:  "generic",
		Capacity:     50,
		Entries: map[string]template.Entry{
			"generic": {ID: "omni_generic_draft", Args: []string{"tone"}},
			"email":   {ID: "omni_email_draft", Args: []string{"tone", "recipient"}},
		},
	})
	if err != nil {
		t.Fatalf("register spec: %v", err)
	}
	return reg
}

func newTestDispatcher(t *testing.T, tr Transport) (*Dispatcher, *store.Store) {
	t.Helper()
	st := store.New(nil)
	in := ingest.New(st, time.Second, zap.NewNop())
	d := New(context.Background(), newTestRegistry(t), st, in, tr, "sess_test", zap.NewNop())
	return d, st
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestStartProcessingUnknownWidget(t *testing.T) {
	d, _ := newTestDispatcher(t, newFakeTransport())

	_, err := d.StartProcessing(context.Background(), types.WidgetKind("bogus"), nil, "")
	if !errors.Is(err, types.ErrUnknownWidget) {
		t.Fatalf("err = %v, want ErrUnknownWidget", err)
	}
}

func TestStartProcessingResolvesDirective(t *testing.T) {
	tr := newFakeTransport()
	d, st := newTestDispatcher(t, tr)

	req, err := d.StartProcessing(context.Background(), types.WidgetOmni, map[string]interface{}{
		"prompt": "write a greeting",
		"mode":   "email",
		"tone":   "formal",
		"rogue":  "never forwarded",
	}, "user_1")
	if err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}

	if len(tr.envelopes) != 1 {
		t.Fatalf("envelopes = %d, want 1", len(tr.envelopes))
	}
	env := tr.envelopes[0]
	if env.TemplateID != "omni_email_draft" {
		t.Fatalf("template = %s, want omni_email_draft", env.TemplateID)
	}
	if env.TemplateArgs["prompt"] != "write a greeting" || env.TemplateArgs["tone"] != "formal" {
		t.Fatalf("args missing declared keys: %v", env.TemplateArgs)
	}
	if _, leaked := env.TemplateArgs["rogue"]; leaked {
		t.Fatal("undeclared key leaked into template args")
	}
	if env.SessionID != "sess_test" || env.RequestID != req.ID {
		t.Fatalf("envelope identity mismatch: %+v", env)
	}

	snap := st.Snapshot(types.WidgetOmni)
	if snap.Status != types.StatusProcessing || snap.ActiveRequestID != req.ID {
		t.Fatalf("widget not processing for %s: %+v", req.ID, snap)
	}
}

func TestStartProcessingSyncFailureSettlesError(t *testing.T) {
	tr := newFakeTransport()
	tr.err = errors.New("connection refused")
	d, st := newTestDispatcher(t, tr)

	req, err := d.StartProcessing(context.Background(), types.WidgetOmni, map[string]interface{}{"prompt": "hi"}, "")
	if err != nil {
		t.Fatalf("transport failures must not surface: %v", err)
	}

	snap := st.Snapshot(types.WidgetOmni)
	if snap.Status != types.StatusIdle {
		t.Fatalf("status = %s, want idle after sync rejection", snap.Status)
	}
	if snap.ActiveRequestID != "" {
		t.Fatal("rejected request left active")
	}
	if len(snap.History) != 1 || snap.History[0].ContentKind != types.ContentError {
		t.Fatalf("expected one error item, got %+v", snap.History)
	}
	if snap.History[0].RequestID != req.ID {
		t.Fatal("error item not tied to rejected request")
	}
}

func TestSupersedeDiscardsOldStream(t *testing.T) {
	tr := newFakeTransport()
	d, st := newTestDispatcher(t, tr)

	params := map[string]interface{}{"prompt": "first"}
	first, err := d.StartProcessing(context.Background(), types.WidgetOmni, params, "")
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	second, err := d.StartProcessing(context.Background(), types.WidgetOmni, map[string]interface{}{"prompt": "second"}, "")
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}

	// Old stream keeps producing after the supersede.
	oldStream := tr.stream(first.ID)
	oldStream <- types.StreamEvent{Kind: types.EventToken, RequestID: first.ID, Text: "STALE"}
	close(oldStream)

	newStream := tr.stream(second.ID)
	newStream <- types.StreamEvent{Kind: types.EventToken, RequestID: second.ID, Text: "fresh"}
	newStream <- types.StreamEvent{Kind: types.EventEnd, RequestID: second.ID}
	close(newStream)

	waitFor(t, func() bool {
		return st.Snapshot(types.WidgetOmni).Status == types.StatusIdle
	})

	snap := st.Snapshot(types.WidgetOmni)
	if snap.Current == nil || snap.Current.Content != "fresh" {
		t.Fatalf("current content = %+v, want fresh", snap.Current)
	}
	for _, item := range snap.History {
		if item.Content == "STALE" {
			t.Fatal("stale token folded into history")
		}
		if item.IsStreaming {
			t.Fatal("settled history still has streaming item")
		}
	}
	if len(snap.History) != 2 {
		t.Fatalf("history = %d items, want 2", len(snap.History))
	}
}

func TestStreamContextReleasedOnCompletion(t *testing.T) {
	tr := newFakeTransport()
	d, st := newTestDispatcher(t, tr)

	req, err := d.StartProcessing(context.Background(), types.WidgetOmni, map[string]interface{}{"prompt": "x"}, "")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if tr.context(req.ID).Err() != nil {
		t.Fatal("stream context cancelled while streaming")
	}

	s := tr.stream(req.ID)
	s <- types.StreamEvent{Kind: types.EventEnd, RequestID: req.ID}
	close(s)

	waitFor(t, func() bool {
		return st.Snapshot(types.WidgetOmni).Status == types.StatusIdle
	})
	waitFor(t, func() bool {
		return tr.context(req.ID).Err() != nil
	})
}

func TestStreamContextReleasedOnCancel(t *testing.T) {
	tr := newFakeTransport()
	d, _ := newTestDispatcher(t, tr)

	req, err := d.StartProcessing(context.Background(), types.WidgetOmni, map[string]interface{}{"prompt": "x"}, "")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if !d.Cancel(context.Background(), types.WidgetOmni) {
		t.Fatal("Cancel returned false with an active request")
	}
	waitFor(t, func() bool {
		return tr.context(req.ID).Err() != nil
	})
}

func TestSupersedeReleasesOldStreamContext(t *testing.T) {
	tr := newFakeTransport()
	d, _ := newTestDispatcher(t, tr)

	first, err := d.StartProcessing(context.Background(), types.WidgetOmni, map[string]interface{}{"prompt": "first"}, "")
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	second, err := d.StartProcessing(context.Background(), types.WidgetOmni, map[string]interface{}{"prompt": "second"}, "")
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}

	// The superseded stream is released without waiting for it to
	// produce another event; the replacement keeps its context.
	waitFor(t, func() bool {
		return tr.context(first.ID).Err() != nil
	})
	if tr.context(second.ID).Err() != nil {
		t.Fatal("replacement stream context cancelled")
	}
}

func TestDispatchCarriesTraceContext(t *testing.T) {
	tr := newFakeTransport()
	d, _ := newTestDispatcher(t, tr)

	ctx := tracing.WithTrace(context.Background(), "trace-abc", "span-def")
	req, err := d.StartProcessing(ctx, types.WidgetOmni, map[string]interface{}{"prompt": "x"}, "")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	got := tr.context(req.ID)
	if tracing.GetTraceID(got) != "trace-abc" || tracing.GetSpanID(got) != "span-def" {
		t.Fatalf("trace context not carried: trace=%q span=%q",
			tracing.GetTraceID(got), tracing.GetSpanID(got))
	}
}

func TestCancelActiveRequest(t *testing.T) {
	tr := newFakeTransport()
	d, st := newTestDispatcher(t, tr)

	req, err := d.StartProcessing(context.Background(), types.WidgetOmni, map[string]interface{}{"prompt": "x"}, "")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if !d.Cancel(context.Background(), types.WidgetOmni) {
		t.Fatal("Cancel returned false with an active request")
	}
	if d.Cancel(context.Background(), types.WidgetOmni) {
		t.Fatal("Cancel returned true with nothing active")
	}

	tr.mu.Lock()
	cancelled := append([]string(nil), tr.cancelled...)
	tr.mu.Unlock()
	if len(cancelled) != 1 || cancelled[0] != req.ID {
		t.Fatalf("remote cancel = %v, want [%s]", cancelled, req.ID)
	}

	snap := st.Snapshot(types.WidgetOmni)
	if snap.Status != types.StatusIdle || snap.ActiveRequestID != "" {
		t.Fatalf("widget not idle after cancel: %+v", snap)
	}
}

func TestClearHistoryCancelsInFlight(t *testing.T) {
	tr := newFakeTransport()
	d, st := newTestDispatcher(t, tr)

	req, err := d.StartProcessing(context.Background(), types.WidgetOmni, map[string]interface{}{"prompt": "x"}, "")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	d.ClearHistory(context.Background(), types.WidgetOmni)

	tr.mu.Lock()
	cancelled := append([]string(nil), tr.cancelled...)
	tr.mu.Unlock()
	if len(cancelled) != 1 || cancelled[0] != req.ID {
		t.Fatalf("remote cancel = %v, want [%s]", cancelled, req.ID)
	}

	snap := st.Snapshot(types.WidgetOmni)
	if len(snap.History) != 0 || snap.Status != types.StatusIdle {
		t.Fatalf("history not cleared: %+v", snap)
	}
}
