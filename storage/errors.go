package storage

import "errors"

// Sentinel errors returned by storage implementations. Callers classify
// failures with errors.Is rather than matching error text.
var (
	// ErrCodeNotFound indicates the authorization code does not exist
	ErrCodeNotFound = errors.New("authorization code not found")

	// ErrCodeExpired indicates the authorization code exists but has expired
	ErrCodeExpired = errors.New("authorization code expired")

	// ErrStateMismatch is returned when the state presented at code exchange
	// does not match the state bound to the code at issuance
	ErrStateMismatch = errors.New("state mismatch")

	// ErrCodeConsumed indicates the authorization code was already exchanged
	ErrCodeConsumed = errors.New("authorization code already consumed")

	// ErrTokenNotFound indicates the token does not exist (or was rotated away)
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenExpired indicates the token exists but has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked indicates the token was explicitly revoked
	ErrTokenRevoked = errors.New("token revoked")

	// ErrClientNotFound indicates no client is registered under the given ID
	ErrClientNotFound = errors.New("client not found")

	// ErrInvalidClientSecret indicates the client secret did not match
	ErrInvalidClientSecret = errors.New("invalid client secret")
)
