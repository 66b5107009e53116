package security

// Event type constants for security audit logging.
// These constants ensure consistency across the codebase and prevent typos
// when logging security-relevant events.
const (
	// Token lifecycle events

	// EventTokenIssued is logged when a new access token is issued to a client
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when an access token is refreshed using a refresh token
	EventTokenRefreshed = "token_refreshed"

	// EventTokenRevoked is logged when a token is revoked by the user or client
	EventTokenRevoked = "token_revoked"

	// Authorization code events

	// EventCodeIssued is logged when an authorization code is issued
	EventCodeIssued = "authorization_code_issued"

	// EventCodeConsumed is logged when an authorization code is exchanged for tokens
	EventCodeConsumed = "authorization_code_consumed"

	// EventCodeReuseDetected is logged when a consumed authorization code is replayed
	EventCodeReuseDetected = "authorization_code_reuse_detected"

	// Security violation events

	// EventAuthFailure is logged when authentication fails (wrong credentials, etc.)
	EventAuthFailure = "auth_failure"

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"

	// EventIdentityBlocked is logged when the brute-force guard blocks an identity
	EventIdentityBlocked = "identity_blocked"

	// EventBlockedAttempt is logged when a blocked identity keeps trying
	EventBlockedAttempt = "blocked_attempt"

	// EventTokenReuseDetected is logged when a rotated refresh token is replayed (theft indicator)
	EventTokenReuseDetected = "refresh_token_reuse_detected" //nolint:gosec // G101: event type name, not a credential

	// EventScopeEscalationAttempt is logged when a client requests scopes beyond its registration
	EventScopeEscalationAttempt = "scope_escalation_attempt"

	// EventRedirectURIMismatch is logged when the redirect URI differs from the one bound at issuance
	EventRedirectURIMismatch = "redirect_uri_mismatch"
)
