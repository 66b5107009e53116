// Package security provides the anti-abuse and hardening primitives for the
// authorization core: expiry policy, per-endpoint rate limiting, brute-force
// lockout, audit logging, token encryption at rest, secure response headers,
// client IP extraction, and request ID propagation.
//
// The expiry policy is pure and stateless. The rate limiter and brute-force
// guard own the only mutable counters in this package; both serialize their
// read-increment-write sequences behind a mutex and run a background cleanup
// goroutine that is stopped with Stop().
package security
