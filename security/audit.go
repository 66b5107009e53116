package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection. User
// identifiers are hashed before they reach the log stream; token values
// never do.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// AuditEvent represents a security audit event
type AuditEvent struct {
	Type      string
	UserID    string
	ClientID  string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event AuditEvent) {
	if !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"client_id", event.ClientID,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogTokenIssued logs when an access token is issued
func (a *Auditor) LogTokenIssued(userID, clientID, ipAddress, scope, grantType string) {
	a.LogEvent(AuditEvent{
		Type:      EventTokenIssued,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"scope":      scope,
			"grant_type": grantType,
		},
	})
}

// LogTokenRefreshed logs when an access token is refreshed
func (a *Auditor) LogTokenRefreshed(userID, clientID, ipAddress string) {
	a.LogEvent(AuditEvent{
		Type:      EventTokenRefreshed,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"rotated": true,
		},
	})
}

// LogTokenRevoked logs when a token is revoked
func (a *Auditor) LogTokenRevoked(userID, clientID, ipAddress, tokenKind string) {
	a.LogEvent(AuditEvent{
		Type:      EventTokenRevoked,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"token_kind": tokenKind,
		},
	})
}

// LogCodeConsumed logs when an authorization code is exchanged for tokens
func (a *Auditor) LogCodeConsumed(userID, clientID, ipAddress string) {
	a.LogEvent(AuditEvent{
		Type:      EventCodeConsumed,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogAuthFailure logs an authentication failure
func (a *Auditor) LogAuthFailure(userID, clientID, ipAddress, reason string) {
	a.LogEvent(AuditEvent{
		Type:      EventAuthFailure,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(identity, endpoint, ipAddress string) {
	a.LogEvent(AuditEvent{
		Type:      EventRateLimitExceeded,
		UserID:    identity,
		IPAddress: ipAddress,
		Details: map[string]any{
			"endpoint": endpoint,
		},
	})
}

// LogIdentityBlocked logs a brute-force lockout
func (a *Auditor) LogIdentityBlocked(identity, ipAddress string, blockDuration time.Duration) {
	a.LogEvent(AuditEvent{
		Type:      EventIdentityBlocked,
		UserID:    identity,
		IPAddress: ipAddress,
		Details: map[string]any{
			"block_duration": blockDuration.String(),
		},
	})
}

// LogReuseDetected logs a replay of a consumed code or rotated refresh token
func (a *Auditor) LogReuseDetected(eventType, clientID, ipAddress string) {
	a.LogEvent(AuditEvent{
		Type:      eventType,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
