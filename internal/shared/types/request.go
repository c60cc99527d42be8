package types

import "time"

// Directive is the backend-side template name plus its structured
// arguments, resolved client-side from widget parameters.
type Directive struct {
	TemplateID   string                 `json:"template_id"`
	TemplateArgs map[string]interface{} `json:"template_args"`
}

// WidgetRequest identifies one dispatch attempt. It is immutable once
// created; corrections require a new request with a new ID.
type WidgetRequest struct {
	ID          string     `json:"request_id"`
	Widget      WidgetKind `json:"widget"`
	SessionID   string     `json:"session_id"`
	UserID      string     `json:"user_id"`
	Directive   Directive  `json:"directive"`
	SubmittedAt time.Time  `json:"submitted_at"`
}

// Envelope is the wire shape handed to the agent transport.
type Envelope struct {
	RequestID    string                 `json:"request_id"`
	SessionID    string                 `json:"session_id"`
	UserID       string                 `json:"user_id"`
	Widget       WidgetKind             `json:"widget"`
	TemplateID   string                 `json:"template_id"`
	TemplateArgs map[string]interface{} `json:"template_args"`
}

// Envelope builds the transport envelope for a request.
func (r WidgetRequest) Envelope() Envelope {
	return Envelope{
		RequestID:    r.ID,
		SessionID:    r.SessionID,
		UserID:       r.UserID,
		Widget:       r.Widget,
		TemplateID:   r.Directive.TemplateID,
		TemplateArgs: r.Directive.TemplateArgs,
	}
}
