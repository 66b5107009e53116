package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/gatewarden/gatewarden/identity"
	"github.com/gatewarden/gatewarden/instrumentation"
	"github.com/gatewarden/gatewarden/security"
	"github.com/gatewarden/gatewarden/storage"
)

// Server implements the authorization server logic. It coordinates the
// storage backends and the identity provider.
type Server struct {
	codeStore   storage.CodeStore
	tokenStore  storage.TokenStore
	clientStore storage.ClientStore
	identity    identity.Provider

	Auditor          *security.Auditor
	EventRateLimiter *security.EventRateLimiter // throttles security event logging
	Logger           *slog.Logger
	Config           *Config

	instrumentation *instrumentation.Instrumentation
}

// New creates a new authorization server. The configuration is validated
// before anything starts: an invalid expiry or lockout policy is a
// construction error, not a runtime surprise.
func New(
	codeStore storage.CodeStore,
	tokenStore storage.TokenStore,
	clientStore storage.ClientStore,
	idp identity.Provider,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if codeStore == nil {
		return nil, fmt.Errorf("code store is required")
	}
	if tokenStore == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if clientStore == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if idp == nil {
		return nil, fmt.Errorf("identity provider is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applyDefaults(config)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	srv := &Server{
		codeStore:   codeStore,
		tokenStore:  tokenStore,
		clientStore: clientStore,
		identity:    idp,
		Config:      config,
		Logger:      logger,
		Auditor:     security.NewAuditor(logger, config.AuditEnabled),
	}

	if err := srv.validateHTTPSEnforcement(); err != nil {
		return nil, err
	}

	return srv, nil
}

// SetAuditor replaces the auditor New builds from Config.AuditEnabled, for
// callers that audit through their own logger
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetEventRateLimiter sets the rate limiter for security event logging.
// This prevents log flooding when an attacker replays consumed codes or
// rotated refresh tokens in a tight loop.
func (s *Server) SetEventRateLimiter(rl *security.EventRateLimiter) {
	s.EventRateLimiter = rl
}

// SetInstrumentation sets OpenTelemetry instrumentation for the server
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
}

// Instrumentation returns the configured instrumentation, or nil. The HTTP
// layer uses it to share the tracer and metric instruments.
func (s *Server) Instrumentation() *instrumentation.Instrumentation {
	return s.instrumentation
}

// metrics returns the metrics holder, or nil when instrumentation is unset
func (s *Server) metrics() *instrumentation.Metrics {
	if s.instrumentation == nil {
		return nil
	}
	return s.instrumentation.Metrics()
}

// allowSecurityEvent reports whether a security event for the identifier
// should be logged, consulting the event rate limiter when one is set
func (s *Server) allowSecurityEvent(identifier string) bool {
	if s.EventRateLimiter == nil {
		return true
	}
	return s.EventRateLimiter.Allow(identifier)
}

// validateHTTPSEnforcement blocks a non-HTTPS issuer outside localhost
// unless AllowInsecureHTTP is set. Tokens over plain HTTP are readable by
// anyone on the path.
func (s *Server) validateHTTPSEnforcement() error {
	if s.Config.Issuer == "" {
		return nil
	}

	issuerURL, err := url.Parse(s.Config.Issuer)
	if err != nil {
		return fmt.Errorf("invalid issuer URL: %w", err)
	}

	switch issuerURL.Scheme {
	case "https":
		return nil
	case "http":
		hostname := issuerURL.Hostname()
		if isLocalhostHostname(hostname) {
			return nil
		}
		if !s.Config.AllowInsecureHTTP {
			return fmt.Errorf(
				"issuer must use HTTPS in production (got http://%s); "+
					"set AllowInsecureHTTP=true only for controlled environments",
				hostname)
		}
		s.Logger.Error("Running authorization server over HTTP",
			"issuer", s.Config.Issuer,
			"risk", "tokens and credentials exposed to network interception")
		return nil
	default:
		return fmt.Errorf("invalid issuer URL scheme: %s (must be http or https)", issuerURL.Scheme)
	}
}

// isLocalhostHostname checks if a hostname refers to the local machine,
// including the whole 127.0.0.0/8 range and the IPv6 loopback.
func isLocalhostHostname(hostname string) bool {
	if hostname == "localhost" || hostname == "0.0.0.0" {
		return true
	}

	clean := hostname
	if len(hostname) > 2 && hostname[0] == '[' && hostname[len(hostname)-1] == ']' {
		clean = hostname[1 : len(hostname)-1]
	}
	if ip := net.ParseIP(clean); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// generateRandomToken generates a cryptographically secure random token.
// oauth2.GenerateVerifier produces a URL-safe base64 string with 256 bits of
// entropy, suitable for codes and opaque tokens alike.
func generateRandomToken() string {
	return oauth2.GenerateVerifier()
}
