package agent

import (
	"strings"
	"testing"

	"github.com/havenstack/widgetd/internal/shared/types"
)

func collect(t *testing.T, raw, requestID string) []types.StreamEvent {
	t.Helper()
	events := make(chan types.StreamEvent, 32)
	if err := readStream(strings.NewReader(raw), requestID, events); err != nil {
		t.Fatalf("readStream: %v", err)
	}
	close(events)

	var out []types.StreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestReadStreamParsesFrames(t *testing.T) {
	raw := "" +
		"event: start\n" +
		"data: {\"request_id\":\"req_1\",\"message\":\"accepted\"}\n" +
		"\n" +
		"event: token\n" +
		"data: {\"text\":\"hel\"}\n" +
		"\n" +
		"event: token\n" +
		"data: {\"text\":\"lo\"}\n" +
		"\n" +
		"event: progress\n" +
		"data: {\"progress\":{\"tool\":\"search\",\"step\":\"querying\",\"current\":1,\"total\":3}}\n" +
		"\n" +
		"event: result\n" +
		"data: {\"result\":{\"text\":\"hello\",\"title\":\"Greeting\"}}\n" +
		"\n" +
		"event: end\n" +
		"data: {}\n" +
		"\n"

	events := collect(t, raw, "req_1")
	if len(events) != 6 {
		t.Fatalf("events = %d, want 6", len(events))
	}

	wantKinds := []types.EventKind{
		types.EventStart, types.EventToken, types.EventToken,
		types.EventProgress, types.EventResult, types.EventEnd,
	}
	for i, k := range wantKinds {
		if events[i].Kind != k {
			t.Fatalf("event[%d].Kind = %s, want %s", i, events[i].Kind, k)
		}
		if events[i].RequestID != "req_1" {
			t.Fatalf("event[%d] missing inherited request id", i)
		}
	}
	if events[1].Text != "hel" || events[2].Text != "lo" {
		t.Fatal("token text mangled")
	}
	if events[3].Progress == nil || events[3].Progress.Tool != "search" {
		t.Fatalf("progress payload = %+v", events[3].Progress)
	}
	if events[4].Result["title"] != "Greeting" {
		t.Fatalf("result payload = %v", events[4].Result)
	}
}

func TestReadStreamStopsAtTerminal(t *testing.T) {
	raw := "" +
		"event: error\n" +
		"data: {\"message\":\"model unavailable\"}\n" +
		"\n" +
		"event: token\n" +
		"data: {\"text\":\"never seen\"}\n" +
		"\n"

	events := collect(t, raw, "req_2")
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1 (terminal stops parse)", len(events))
	}
	if events[0].Kind != types.EventError || events[0].Message != "model unavailable" {
		t.Fatalf("unexpected terminal event %+v", events[0])
	}
}

func TestReadStreamSkipsNoise(t *testing.T) {
	raw := "" +
		": keep-alive\n" +
		"event: heartbeat\n" +
		"data: {\"text\":\"ignored kind\"}\n" +
		"\n" +
		"event: token\n" +
		"data: not-json\n" +
		"\n" +
		"event: token\n" +
		"data: {\"text\":\"ok\"}\n" +
		"\n"

	events := collect(t, raw, "req_3")
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Text != "ok" {
		t.Fatalf("text = %q, want ok", events[0].Text)
	}
}

func TestReadStreamFinalFrameWithoutBlankLine(t *testing.T) {
	raw := "event: end\ndata: {}"

	events := collect(t, raw, "req_4")
	if len(events) != 1 || events[0].Kind != types.EventEnd {
		t.Fatalf("trailing frame not flushed: %+v", events)
	}
}

func TestReadStreamMultilineData(t *testing.T) {
	// Multi-line data frames join with newlines per the SSE spec; the
	// joined body must still be valid JSON.
	raw := "" +
		"event: result\n" +
		"data: {\"result\":\n" +
		"data: {\"text\":\"joined\"}}\n" +
		"\n"

	events := collect(t, raw, "req_5")
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Result["text"] != "joined" {
		t.Fatalf("result = %v", events[0].Result)
	}
}
