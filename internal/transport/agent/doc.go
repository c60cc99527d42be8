/*
Package agent is the HTTP transport to the backend agent service.

Dispatch posts a request envelope and parses the text/event-stream
response into StreamEvent values on a channel. The initial POST goes
through go-retryablehttp behind a rate limiter and a circuit breaker;
once the stream is open it is never retried, only read until a terminal
event or EOF. Control calls (cancel, health) use resty.
*/
package agent
