/*
Package ws streams widget updates to connected clients.

One connection binds to one session. Store mutations fan out through
the session hub and are classified into wire messages: a full state
snapshot plus token, progress, result, complete, and error events
derived from status transitions. Inbound messages can dispatch work,
either to an explicit widget or through intent routing of free text.
*/
package ws
