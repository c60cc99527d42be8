package types

// WidgetKind identifies a specialized sub-application that can handle
// a routed user request.
type WidgetKind string

const (
	WidgetDream     WidgetKind = "dream"     // image generation
	WidgetOmni      WidgetKind = "omni"      // multi-purpose content generation
	WidgetKnowledge WidgetKind = "knowledge" // knowledge retrieval
	WidgetProduct   WidgetKind = "product"   // product search
)

// Kinds returns the closed set of widget kinds in registration order.
func Kinds() []WidgetKind {
	return []WidgetKind{WidgetDream, WidgetOmni, WidgetKnowledge, WidgetProduct}
}

// Valid reports whether k is a member of the closed widget set.
func (k WidgetKind) Valid() bool {
	switch k {
	case WidgetDream, WidgetOmni, WidgetKnowledge, WidgetProduct:
		return true
	}
	return false
}

// Status represents widget lifecycle states
type Status string

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing" // dispatched, no content yet
	StatusStreaming  Status = "streaming"  // first token chunk received
	StatusError      Status = "error"
)

// WidgetSnapshot is a read-only view of one widget's state, handed to
// the UI layer. History is ordered newest first.
type WidgetSnapshot struct {
	Widget          WidgetKind           `json:"widget"`
	Status          Status               `json:"status"`
	ActiveRequestID string               `json:"active_request_id,omitempty"`
	Current         *OutputHistoryItem   `json:"current,omitempty"`
	History         []*OutputHistoryItem `json:"history"`
}
