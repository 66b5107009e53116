// Package identity abstracts the source of resource-owner identities. The
// authorization service issues its own tokens; the identity backend only
// answers who a user is, for userinfo responses and session establishment.
package identity

import (
	"context"
	"errors"
)

// ErrUserNotFound is returned when the identity backend has no record of the
// requested user.
var ErrUserNotFound = errors.New("user not found")

// Provider resolves user identities. Implementations may back onto a
// directory service, a user database, or a test fixture.
type Provider interface {
	// Name returns the backend name (e.g., "ldap", "database", "mock")
	Name() string

	// UserInfo returns identity claims for the given user ID.
	// Returns ErrUserNotFound if the user does not exist.
	UserInfo(ctx context.Context, userID string) (*UserInfo, error)

	// HealthCheck verifies that the backend is reachable. Useful for
	// readiness probes and startup validation.
	HealthCheck(ctx context.Context) error
}

// UserInfo represents identity claims for a resource owner
type UserInfo struct {
	// ID is the unique user identifier
	ID string `json:"sub"`

	// Email is the user's email address
	Email string `json:"email,omitempty"`

	// EmailVerified indicates if the email is verified
	EmailVerified bool `json:"email_verified,omitempty"`

	// Name is the user's full name
	Name string `json:"name,omitempty"`

	// Picture is the URL of the user's profile picture
	Picture string `json:"picture,omitempty"`
}
