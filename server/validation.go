package server

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gatewarden/gatewarden/storage"
)

// Grant type identifiers (RFC 6749)
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeClientCredentials = "client_credentials"
)

// validateRedirectURI checks that a redirect URI is registered for the
// client, byte for byte, and passes basic security checks. Exact matching
// only: no prefix, wildcard, or normalization games an attacker could abuse.
func (s *Server) validateRedirectURI(client *storage.Client, redirectURI string) error {
	found := false
	for _, uri := range client.RedirectURIs {
		if uri == redirectURI {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("redirect URI not registered for client")
	}

	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return fmt.Errorf("invalid redirect_uri format: %w", err)
	}
	// Fragments in redirect URIs leak credentials into browser history
	if parsed.Fragment != "" {
		return fmt.Errorf("redirect_uri must not contain fragments")
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme == "http" {
		hostname := strings.ToLower(parsed.Hostname())
		if !isLocalhostHostname(hostname) && !s.Config.AllowInsecureHTTP {
			return fmt.Errorf("redirect_uri must use HTTPS outside localhost")
		}
	}

	return nil
}

// validateScopes checks requested scopes against the server-wide allow list.
// An empty SupportedScopes configuration accepts any scope string.
func (s *Server) validateScopes(scope string) error {
	if len(s.Config.SupportedScopes) == 0 || scope == "" {
		return nil
	}

	for _, reqScope := range strings.Fields(scope) {
		found := false
		for _, supported := range s.Config.SupportedScopes {
			if reqScope == supported {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unsupported scope: %s", reqScope)
		}
	}
	return nil
}

// validateClientScopes checks that requested scopes are a subset of the
// client's registered scopes. A client with no registered scopes may request
// anything the server supports; an empty request is always allowed.
func (s *Server) validateClientScopes(requestedScope string, clientScopes []string) error {
	if len(clientScopes) == 0 || requestedScope == "" {
		return nil
	}

	for _, reqScope := range strings.Fields(requestedScope) {
		found := false
		for _, allowed := range clientScopes {
			if reqScope == allowed {
				found = true
				break
			}
		}
		if !found {
			// Generic on purpose: naming the offending scope would let a
			// client enumerate another client's registration
			return fmt.Errorf("client is not authorized for one or more requested scopes")
		}
	}
	return nil
}
