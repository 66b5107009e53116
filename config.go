package oauth

import (
	"log/slog"

	"github.com/gatewarden/gatewarden/security"
)

// Config holds the HTTP handler configuration. Zero values are filled with
// secure defaults; the protocol policy (expiry, lockout, scopes, issuer)
// lives in server.Config.
type Config struct {
	// RateLimits maps endpoint names (security.EndpointToken, ...) to their
	// fixed-window budgets. Nil uses security.DefaultEndpointLimits.
	RateLimits map[string]security.WindowLimit

	// AllowedOrigins lists origins permitted for CORS. Empty disables CORS
	// entirely; "*" is deliberately not supported for credentialed endpoints.
	AllowedOrigins []string

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger
}

// withDefaults returns the config with zero values filled in
func (c *Config) withDefaults() *Config {
	if c == nil {
		c = &Config{}
	}
	if c.RateLimits == nil {
		c.RateLimits = security.DefaultEndpointLimits()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
