package security

import (
	"fmt"
	"time"
)

// ExpiryKind identifies the class of record an expiry is computed for.
type ExpiryKind string

const (
	ExpiryKindState        ExpiryKind = "state"
	ExpiryKindCode         ExpiryKind = "code"
	ExpiryKindAccessToken  ExpiryKind = "access_token"
	ExpiryKindRefreshToken ExpiryKind = "refresh_token"
	ExpiryKindBlock        ExpiryKind = "block"
)

// Minimum durations enforced at configuration load. Violations are fatal at
// startup, not recoverable at runtime.
const (
	MinStateTTL       = time.Minute
	MinCodeTTL        = time.Minute
	MinAccessTokenTTL = 5 * time.Minute
)

// DefaultClockSkewGracePeriod is the grace applied to access-token expiry
// checks at the validation boundary. It prevents false expiration errors due
// to NTP drift between systems. 5 seconds handles typical drift.
const DefaultClockSkewGracePeriod = 5 * time.Second

// ExpiryPolicy computes expiry timestamps for states, codes, tokens, and
// brute-force blocks. It is pure: no side effects, no I/O, no internal clock.
type ExpiryPolicy struct {
	StateTTL        time.Duration
	CodeTTL         time.Duration
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BlockDuration   time.Duration
}

// DefaultExpiryPolicy returns the standard durations: 10 minutes for states
// and codes, 1 hour for access tokens, 30 days for refresh tokens, and
// 15 minutes for brute-force blocks.
func DefaultExpiryPolicy() ExpiryPolicy {
	return ExpiryPolicy{
		StateTTL:        10 * time.Minute,
		CodeTTL:         10 * time.Minute,
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 30 * 24 * time.Hour,
		BlockDuration:   15 * time.Minute,
	}
}

// Validate checks the policy against the configured minimums. A zero
// duration for any kind is also rejected: a policy must be fully specified
// (use DefaultExpiryPolicy and override).
func (p ExpiryPolicy) Validate() error {
	if p.StateTTL < MinStateTTL {
		return fmt.Errorf("state TTL %v is below the minimum %v", p.StateTTL, MinStateTTL)
	}
	if p.CodeTTL < MinCodeTTL {
		return fmt.Errorf("authorization code TTL %v is below the minimum %v", p.CodeTTL, MinCodeTTL)
	}
	if p.AccessTokenTTL < MinAccessTokenTTL {
		return fmt.Errorf("access token TTL %v is below the minimum %v", p.AccessTokenTTL, MinAccessTokenTTL)
	}
	if p.RefreshTokenTTL <= 0 {
		return fmt.Errorf("refresh token TTL must be positive, got %v", p.RefreshTokenTTL)
	}
	if p.BlockDuration <= 0 {
		return fmt.Errorf("block duration must be positive, got %v", p.BlockDuration)
	}
	return nil
}

// ComputeExpiry returns the expiry timestamp for a record of the given kind
// created at now. Unknown kinds fall back to the code TTL, the shortest
// credential lifetime.
func (p ExpiryPolicy) ComputeExpiry(kind ExpiryKind, now time.Time) time.Time {
	switch kind {
	case ExpiryKindState:
		return now.Add(p.StateTTL)
	case ExpiryKindCode:
		return now.Add(p.CodeTTL)
	case ExpiryKindAccessToken:
		return now.Add(p.AccessTokenTTL)
	case ExpiryKindRefreshToken:
		return now.Add(p.RefreshTokenTTL)
	case ExpiryKindBlock:
		return now.Add(p.BlockDuration)
	default:
		return now.Add(p.CodeTTL)
	}
}

// IsExpired reports whether a record with the given expiry is expired at now.
// Monotonic in now: once true for some instant, it is true for every later
// instant. A zero expiresAt means no expiration.
func IsExpired(expiresAt, now time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return !now.Before(expiresAt)
}

// IsTokenExpired checks token expiry against the current time with the
// default clock skew grace period. Used at the validation boundary where the
// caller's clock may differ from the issuer's.
func IsTokenExpired(expiresAt time.Time) bool {
	return IsTokenExpiredWithGracePeriod(expiresAt, DefaultClockSkewGracePeriod)
}

// IsTokenExpiredWithGracePeriod checks token expiry with a custom grace
// period: the token only counts as expired once it has been past expiry for
// longer than the grace period.
func IsTokenExpiredWithGracePeriod(expiresAt time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().After(expiresAt.Add(gracePeriod))
}
