// Package testutil provides testing utilities and helpers for widgetd tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/havenstack/widgetd/internal/shared/types"
)

// Frame is one scripted SSE frame the fake agent will emit.
type Frame struct {
	Event string
	Data  map[string]interface{}
	// Delay before this frame is written.
	Delay time.Duration
}

// Tokens builds token frames from text chunks.
func Tokens(chunks ...string) []Frame {
	frames := make([]Frame, 0, len(chunks))
	for _, c := range chunks {
		frames = append(frames, Frame{Event: "token", Data: map[string]interface{}{"text": c}})
	}
	return frames
}

// Script is the frames emitted for one dispatched template id.
type Script struct {
	Frames []Frame
	// Hang keeps the stream open without frames after the script,
	// simulating a stalled backend.
	Hang bool
}

// FakeAgent is an httptest server speaking the agent dispatch protocol.
type FakeAgent struct {
	Server *httptest.Server

	mu        sync.Mutex
	scripts   map[string]Script
	envelopes []types.Envelope
	cancelled []string
}

// NewFakeAgent starts a fake agent service. Call Close when done.
func NewFakeAgent(t *testing.T) *FakeAgent {
	t.Helper()
	f := &FakeAgent{scripts: make(map[string]Script)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the fake agent's base URL.
func (f *FakeAgent) URL() string { return f.Server.URL }

// ScriptFor registers the frames to stream for a template id.
func (f *FakeAgent) ScriptFor(templateID string, s Script) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[templateID] = s
}

// Envelopes returns every dispatch payload received so far.
func (f *FakeAgent) Envelopes() []types.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Envelope(nil), f.envelopes...)
}

// Cancelled returns every request id the engine asked to cancel.
func (f *FakeAgent) Cancelled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

func (f *FakeAgent) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/agent/dispatch":
		f.dispatch(w, r)
	case r.Method == http.MethodDelete:
		f.mu.Lock()
		f.cancelled = append(f.cancelled, r.URL.Path[len("/v1/agent/dispatch/"):])
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/health":
		w.WriteHeader(http.StatusOK)
	default:
		http.NotFound(w, r)
	}
}

func (f *FakeAgent) dispatch(w http.ResponseWriter, r *http.Request) {
	var env types.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.envelopes = append(f.envelopes, env)
	script, ok := f.scripts[env.TemplateID]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	flusher := w.(http.Flusher)
	flusher.Flush()

	if !ok {
		writeFrame(w, flusher, env.RequestID, Frame{Event: "error", Data: map[string]interface{}{"message": "no script for " + env.TemplateID}})
		return
	}

	for _, frame := range script.Frames {
		if frame.Delay > 0 {
			time.Sleep(frame.Delay)
		}
		writeFrame(w, flusher, env.RequestID, frame)
	}
	if script.Hang {
		<-r.Context().Done()
	}
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, requestID string, frame Frame) {
	data := make(map[string]interface{}, len(frame.Data)+1)
	for k, v := range frame.Data {
		data[k] = v
	}
	if _, ok := data["request_id"]; !ok {
		data["request_id"] = requestID
	}
	payload, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", frame.Event, payload)
	flusher.Flush()
}

// WaitFor polls cond until it holds or the deadline passes.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
