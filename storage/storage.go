package storage

import (
	"context"
	"time"
)

// Token kinds. Every token record is either an access token or a refresh
// token; the two are paired when issued through the authorization-code or
// refresh-token grants.
const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
)

// CodeStore manages single-use authorization codes.
// All methods accept context.Context for tracing and cancellation.
type CodeStore interface {
	// SaveAuthorizationCode stores a newly issued authorization code
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// GetAuthorizationCode retrieves an authorization code without consuming it
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// AtomicConsumeAuthorizationCode atomically validates and consumes an
	// authorization code. The code and state must both match (a missing state
	// is treated as the empty string), the code must be unexpired and not yet
	// consumed. On success the record is marked consumed and returned in the
	// same operation.
	//
	// SECURITY: This operation MUST be atomic. Two concurrent calls for the
	// same code must result in exactly one success; the loser receives
	// ErrCodeConsumed (or ErrCodeNotFound once the record is cleaned up).
	AtomicConsumeAuthorizationCode(ctx context.Context, code, state string) (*AuthorizationCode, error)

	// DeleteAuthorizationCode removes an authorization code
	DeleteAuthorizationCode(ctx context.Context, code string) error
}

// TokenStore manages access and refresh token records. Token records are
// never mutated in place by callers; all state transitions go through these
// operations.
type TokenStore interface {
	// SaveToken stores a token record keyed by its opaque value
	SaveToken(ctx context.Context, token *Token) error

	// GetToken retrieves a token record. Returns ErrTokenRevoked for revoked
	// tokens and ErrTokenExpired for expired ones.
	GetToken(ctx context.Context, value string) (*Token, error)

	// AtomicConsumeRefreshToken atomically fetches and invalidates a refresh
	// token for rotation, revoking its paired access token in the same
	// operation. Returns the record if it was live.
	//
	// SECURITY: This operation MUST be atomic. Concurrent rotation attempts
	// against the same refresh token must yield exactly one winner; every
	// other caller receives ErrTokenNotFound or ErrTokenRevoked.
	AtomicConsumeRefreshToken(ctx context.Context, value string) (*Token, error)

	// RevokeToken marks a token terminal. If the token is a refresh token,
	// its paired access token is revoked in the same operation. Revoking an
	// unknown or already-revoked token is not an error (idempotent).
	RevokeToken(ctx context.Context, value string) error

	// DeleteToken removes a token record entirely
	DeleteToken(ctx context.Context, value string) error
}

// ClientStore manages registered OAuth clients. Client secrets are stored
// as bcrypt hashes and verified through ValidateClientSecret only.
type ClientStore interface {
	// SaveClient saves a registered client
	SaveClient(ctx context.Context, client *Client) error

	// GetClient retrieves a client by ID
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// ValidateClientSecret verifies a client's secret against its stored hash
	ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error
}

// AuthorizationCode is a single-use credential bound to the client, redirect
// URI, scope, and user it was issued for. After consumption or expiry it is
// permanently invalid.
type AuthorizationCode struct {
	Code        string
	ClientID    string
	RedirectURI string
	Scope       string
	State       string // client-supplied correlator, empty if the client sent none
	UserID      string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Consumed    bool
}

// Token is an issued access or refresh token record.
type Token struct {
	Value     string // the opaque token string, also the storage key
	Kind      string // TokenKindAccess or TokenKindRefresh
	ClientID  string
	UserID    string // empty for client-credentials tokens
	Scope     string
	IssuedAt  time.Time
	ExpiresAt time.Time

	// Pair is the opaque value of the paired token: the refresh token for an
	// access token and vice versa. Empty for tokens issued without a pair
	// (client-credentials grant).
	Pair string

	Revoked   bool
	RevokedAt time.Time
}

// Client represents a registered OAuth client.
type Client struct {
	ClientID         string
	ClientSecretHash string // bcrypt hash
	ClientName       string
	RedirectURIs     []string
	Scopes           []string
	GrantTypes       []string
	CreatedAt        time.Time
}

// AllowsGrantType reports whether the client may use the given grant type.
// An empty GrantTypes list permits all grants for backward compatibility.
func (c *Client) AllowsGrantType(grantType string) bool {
	if len(c.GrantTypes) == 0 {
		return true
	}
	for _, g := range c.GrantTypes {
		if g == grantType {
			return true
		}
	}
	return false
}
