/*
Package ingest drives stream events from the agent transport into the
widget store.

Each dispatched request gets one Run goroutine that forwards events in
arrival order and watches an idle timer between them. Timeouts, context
cancellation, and premature channel closure all become synthetic error
events, routed through the same store entry point as real ones so
superseded requests are discarded by the same guard.
*/
package ingest
