package types

// EventKind tags one unit of the agent's incremental feed.
type EventKind string

const (
	EventStart    EventKind = "start"
	EventToken    EventKind = "token-chunk"
	EventProgress EventKind = "progress"
	EventResult   EventKind = "structured-result"
	EventEnd      EventKind = "end"
	EventError    EventKind = "error"
)

// Terminal reports whether no further events may be processed for the
// request after this kind.
func (k EventKind) Terminal() bool {
	return k == EventEnd || k == EventError
}

// Progress describes a transient tool/step status. It is surfaced to
// progress-presentation UI and never persisted into final content.
type Progress struct {
	Tool    string `json:"tool,omitempty"`
	Step    string `json:"step,omitempty"`
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
}

// StreamEvent is one unit from the incremental feed for a request.
// Events for a request arrive in submission order; the stream may
// terminate early on an error event.
type StreamEvent struct {
	Kind      EventKind              `json:"kind"`
	RequestID string                 `json:"request_id"`
	Text      string                 `json:"text,omitempty"`     // token-chunk payload
	Progress  *Progress              `json:"progress,omitempty"` // progress payload
	Result    map[string]interface{} `json:"result,omitempty"`   // structured-result payload
	Message   string                 `json:"message,omitempty"`  // start diagnostic or error summary
}
