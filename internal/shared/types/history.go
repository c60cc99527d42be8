package types

import "time"

// ContentKind distinguishes what an item's Content holds. Errored items
// remain inspectable like any other result; the flag is the only marker.
type ContentKind string

const (
	ContentText       ContentKind = "text"
	ContentURL        ContentKind = "url"
	ContentStructured ContentKind = "structured"
	ContentError      ContentKind = "error"
)

// OutputHistoryItem is one durable, user-visible result. Created as a
// stub at dispatch time, mutated in place as stream events arrive, and
// never mutated after finalization except by explicit deletion.
type OutputHistoryItem struct {
	ID          string                 `json:"id"`
	RequestID   string                 `json:"request_id"`
	Timestamp   time.Time              `json:"timestamp"`
	Widget      WidgetKind             `json:"widget"`
	Title       string                 `json:"title"`
	Content     string                 `json:"content"`
	ContentKind ContentKind            `json:"content_kind"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	IsStreaming bool                   `json:"is_streaming"`
	Progress    *Progress              `json:"progress,omitempty"` // transient, cleared on finalize
}

// Clone returns a deep-enough copy for handing to readers. Metadata is
// copied shallowly per key; readers never mutate store internals.
func (i *OutputHistoryItem) Clone() *OutputHistoryItem {
	if i == nil {
		return nil
	}
	cp := *i
	if i.Metadata != nil {
		cp.Metadata = make(map[string]interface{}, len(i.Metadata))
		for k, v := range i.Metadata {
			cp.Metadata[k] = v
		}
	}
	if i.Progress != nil {
		p := *i.Progress
		cp.Progress = &p
	}
	return &cp
}
