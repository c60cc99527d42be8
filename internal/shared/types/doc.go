// Package types provides shared data structures for the widget engine.
//
// This package defines core types used across all components,
// ensuring type safety and consistent data structures.
//
// Core Types:
//   - WidgetKind: Closed set of widget identifiers
//   - WidgetRequest: Immutable dispatch envelope
//   - StreamEvent: One unit of the agent's incremental feed
//   - OutputHistoryItem: Durable, user-visible result
//   - WidgetSnapshot: Read-only view of a widget's state
//
// State Management:
//   - Status: Widget state enum (idle, processing, streaming, error)
//   - Progress: Transient step descriptor, never merged into content
//
// Error Taxonomy:
//   - DispatchError, StreamError, TimeoutError, MappingError
package types
