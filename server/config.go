package server

import (
	"fmt"

	"github.com/gatewarden/gatewarden/internal/util"
	"github.com/gatewarden/gatewarden/security"
)

// Config holds authorization server configuration
type Config struct {
	// Issuer is the server's issuer identifier (base URL)
	Issuer string

	// Expiry controls the lifetimes of codes, tokens, and blocks.
	// A zero policy is replaced with DefaultExpiryPolicy.
	Expiry security.ExpiryPolicy

	// BruteForce controls the lockout policy for repeated auth failures.
	// A zero config is replaced with DefaultBruteForceConfig.
	BruteForce security.BruteForceConfig

	// SupportedScopes lists the scopes the server accepts at all.
	// If empty, any scope string is accepted at the server level
	// (client-level restrictions still apply).
	SupportedScopes []string

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in front of this
	// server, counted from the right of X-Forwarded-For. Default: 1.
	TrustedProxyCount int

	// AllowInsecureHTTP permits a non-localhost http:// issuer.
	// Never enable in production: every token crosses the wire in clear.
	AllowInsecureHTTP bool

	// AuditEnabled turns on security audit logging
	AuditEnabled bool
}

// applyDefaults fills in zero values with the standard policy
func applyDefaults(config *Config) *Config {
	config.Issuer = util.NormalizeURL(config.Issuer)
	if config.Expiry == (security.ExpiryPolicy{}) {
		config.Expiry = security.DefaultExpiryPolicy()
	}
	if config.BruteForce == (security.BruteForceConfig{}) {
		config.BruteForce = security.DefaultBruteForceConfig()
	}
	if config.TrustedProxyCount == 0 {
		config.TrustedProxyCount = 1
	}
	return config
}

// Validate checks the configuration. Construction fails fast on an invalid
// config; there is no partial startup with a misconfigured policy.
func (c *Config) Validate() error {
	if err := c.Expiry.Validate(); err != nil {
		return fmt.Errorf("expiry policy: %w", err)
	}
	if err := c.BruteForce.Validate(); err != nil {
		return fmt.Errorf("brute force policy: %w", err)
	}
	return nil
}
