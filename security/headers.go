package security

import (
	"net/http"
	"net/url"
)

// SetSecurityHeaders sets the hardening headers applied to every response
// from the authorization endpoints.
func SetSecurityHeaders(w http.ResponseWriter, issuerURL string) {
	// X-Frame-Options: prevent clickjacking
	w.Header().Set("X-Frame-Options", "DENY")

	// X-Content-Type-Options: prevent MIME type sniffing
	w.Header().Set("X-Content-Type-Options", "nosniff")

	// Content-Security-Policy: restrictive policy for protocol endpoints
	w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'")

	// Referrer-Policy: don't leak referrer information
	w.Header().Set("Referrer-Policy", "no-referrer")

	// Strict-Transport-Security: enforce HTTPS (only if the issuer uses HTTPS)
	if parsed, err := url.Parse(issuerURL); err == nil && parsed.Scheme == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}
}

// SetNoStoreHeaders marks a response as uncacheable. Required for every
// response carrying tokens or codes.
func SetNoStoreHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	w.Header().Set("Pragma", "no-cache")
}
