/*
Package dispatch coordinates the request lifecycle for widgets.

StartProcessing is the single entry point: it resolves caller
parameters through the template registry, mints an immutable request
id, installs the streaming stub in the store (superseding any in-flight
request for the same widget), and hands the envelope to the transport.
Accepted streams are drained by an ingest goroutine bound to the
session lifecycle, not to the originating HTTP request.
*/
package dispatch
