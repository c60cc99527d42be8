// Package resilience provides a circuit breaker for outbound calls.
//
// The breaker tracks consecutive and total failures per closed-state
// interval. When ReadyToTrip fires, the circuit opens and calls fail
// fast with ErrCircuitOpen for the cooldown period, after which a
// bounded number of probes decide whether to close again.
//
// Usage:
//
//	breaker := resilience.New("agent-dispatch", resilience.Settings{
//		MaxProbes: 3,
//		Cooldown:  30 * time.Second,
//	})
//
//	err := breaker.Do(func() error {
//		return client.Post(ctx, envelope)
//	})
package resilience
