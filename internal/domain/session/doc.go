/*
Package session scopes widget state to individual callers.

Each session owns a private store, ingestor, and dispatcher, plus a hub
that fans store snapshots out to WebSocket subscribers. The manager
creates sessions lazily from the X-Session-ID header and reaps them
after a TTL of inactivity, skipping sessions with live subscribers.
*/
package session
