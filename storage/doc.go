// Package storage provides interfaces and record types for persisting
// authorization codes, access/refresh tokens, and registered clients.
//
// The storage package defines the narrow mutation operations that the rest of
// the module goes through:
//   - CodeStore: single-use authorization codes with atomic consumption
//   - TokenStore: access/refresh token records with atomic rotation
//   - ClientStore: registered clients and secret verification
//
// Implementations are provided in subpackages:
//   - storage/memory: mutex-guarded in-memory storage for development,
//     testing, and single-instance deployments
//
// The atomic operations (AtomicConsumeAuthorizationCode,
// AtomicConsumeRefreshToken) are the synchronization points for the
// single-use and rotation guarantees; implementations must never expose a
// separate read-then-write to callers.
package storage
