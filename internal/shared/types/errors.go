package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownWidget is the only failure surfaced to callers of
// StartProcessing; everything else becomes store state.
var ErrUnknownWidget = errors.New("unknown widget kind")

// DispatchError reports a synchronous transport rejection
// (network/config) before any event was received.
type DispatchError struct {
	Widget WidgetKind
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch failed for widget %s: %v", e.Widget, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// StreamError reports a backend failure mid-stream.
type StreamError struct {
	RequestID string
	Message   string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream error for request %s: %s", e.RequestID, e.Message)
}

// TimeoutError reports that no event arrived within the idle budget.
// It is treated exactly like receiving an error event.
type TimeoutError struct {
	RequestID string
	After     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no events received for request %s within %s", e.RequestID, e.After)
}

// MappingError is reserved for malformed widget-kind registration; the
// mapper itself is total over its declared domain.
type MappingError struct {
	Widget WidgetKind
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("template mapping for widget %s: %s", e.Widget, e.Reason)
}
