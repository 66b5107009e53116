// Package oauth exposes the authorization service over HTTP: the token,
// validate, userinfo, and revocation endpoints, the OAuth 2.0 error
// vocabulary, and the abuse controls (per-endpoint rate limiting and
// brute-force lockout) that guard them.
package oauth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/gatewarden/gatewarden/instrumentation"
	"github.com/gatewarden/gatewarden/internal/util"
	"github.com/gatewarden/gatewarden/security"
	"github.com/gatewarden/gatewarden/server"
)

const (
	defaultCORSMaxAge = 3600 // 1 hour preflight cache
	tokenTypeBearer   = "Bearer"
)

// Handler is a thin HTTP adapter for the authorization server. It handles
// the wire protocol and the abuse controls; all grant logic lives in
// server.Server.
//
// Every mutating endpoint runs the same pipeline: method check, rate limit,
// brute-force lockout check, field validation, then delegation. Auth-relevant
// failures feed the lockout guard; successes clear it.
type Handler struct {
	server      *server.Server
	rateLimiter *security.EndpointRateLimiter
	guard       *security.BruteForceGuard
	config      *Config
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewHandler creates the HTTP handler with its own rate limiter and
// brute-force guard. Call Close to stop their background cleanup goroutines.
func NewHandler(srv *server.Server, config *Config) *Handler {
	config = config.withDefaults()

	h := &Handler{
		server:      srv,
		rateLimiter: security.NewEndpointRateLimiter(config.RateLimits, config.Logger),
		guard:       security.NewBruteForceGuard(srv.Config.BruteForce, config.Logger),
		config:      config,
		logger:      config.Logger,
	}

	if inst := srv.Instrumentation(); inst != nil {
		h.tracer = inst.Tracer("http")
	}

	return h
}

// Close stops the background goroutines of the rate limiter and the
// brute-force guard. Safe to call multiple times.
func (h *Handler) Close() {
	h.rateLimiter.Stop()
	h.guard.Stop()
}

// Routes registers the protocol endpoints on the mux
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/token", h.ServeToken)
	mux.HandleFunc("/validate", h.ServeValidate)
	mux.HandleFunc("/userinfo", h.ServeUserinfo)
	mux.HandleFunc("/revoke", h.ServeRevocation)
}

// ServeToken handles POST /token for the authorization_code, refresh_token,
// and client_credentials grants. The body may be form-encoded or JSON.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()

	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "oauth.http.token")
		defer span.End()
		r = r.WithContext(ctx)
	}

	if r.Method == http.MethodOptions {
		h.servePreflight(w, r)
		return
	}
	if r.Method != http.MethodPost {
		h.writeMethodNotAllowed(w, r, security.EndpointToken, startTime)
		return
	}
	h.setCORSHeaders(w, r)

	req, err := h.parseTokenRequest(r)
	if err != nil {
		h.recordHTTPMetrics(r, security.EndpointToken, http.StatusBadRequest, startTime)
		h.writeError(w, ErrInvalidRequest("Failed to parse request body"), 0)
		return
	}

	clientIP := h.clientIP(r)
	identity := rateLimitIdentity(req.ClientID, clientIP)

	if h.rejectRateLimited(w, r, identity, clientIP, security.EndpointToken, startTime) {
		instrumentation.SetSpanError(span, "rate limit exceeded")
		return
	}
	if h.rejectBlocked(w, r, identity, clientIP, security.EndpointToken, startTime) {
		instrumentation.SetSpanError(span, "identity blocked")
		return
	}

	var grant *server.TokenGrant
	switch req.GrantType {
	case server.GrantTypeAuthorizationCode:
		grant, err = h.handleAuthorizationCodeGrant(r, req)
	case server.GrantTypeRefreshToken:
		grant, err = h.handleRefreshTokenGrant(r, req)
	case server.GrantTypeClientCredentials:
		grant, err = h.handleClientCredentialsGrant(r, req)
	default:
		h.recordHTTPMetrics(r, security.EndpointToken, http.StatusBadRequest, startTime)
		instrumentation.SetSpanError(span, "unsupported grant type")
		h.writeError(w, ErrUnsupportedGrantType(
			fmt.Sprintf("Grant type %q is not supported", req.GrantType)), 0)
		return
	}

	if err != nil {
		if isAuthFailure(err) {
			h.guard.RecordFailure(identity)
		}
		oauthErr := mapServerError(err)
		h.logger.Warn("Token request failed",
			"grant_type", req.GrantType,
			"client_id", req.ClientID,
			"ip", clientIP,
			"error_code", oauthErr.Code)
		h.recordHTTPMetrics(r, security.EndpointToken, oauthErr.Status, startTime)
		instrumentation.RecordError(span, err)
		instrumentation.SetSpanError(span, "grant failed")
		h.writeError(w, oauthErr, 0)
		return
	}

	h.guard.RecordSuccess(identity)
	h.recordHTTPMetrics(r, security.EndpointToken, http.StatusOK, startTime)
	instrumentation.SetSpanSuccess(span)
	h.writeTokenResponse(w, grant)
}

func (h *Handler) handleAuthorizationCodeGrant(r *http.Request, req *tokenRequest) (*server.TokenGrant, error) {
	if req.ClientID == "" || req.Code == "" || req.RedirectURI == "" {
		return nil, fmt.Errorf("%w: client_id, code, and redirect_uri are required", server.ErrInvalidRequest)
	}
	ctx := r.Context()
	if err := h.server.AuthenticateClient(ctx, req.ClientID, req.ClientSecret); err != nil {
		return nil, err
	}
	return h.server.ExchangeAuthorizationCode(ctx, req.ClientID, req.Code, req.State, req.RedirectURI)
}

func (h *Handler) handleRefreshTokenGrant(r *http.Request, req *tokenRequest) (*server.TokenGrant, error) {
	if req.ClientID == "" || req.RefreshToken == "" {
		return nil, fmt.Errorf("%w: client_id and refresh_token are required", server.ErrInvalidRequest)
	}
	ctx := r.Context()
	if err := h.server.AuthenticateClient(ctx, req.ClientID, req.ClientSecret); err != nil {
		return nil, err
	}
	return h.server.RefreshAccessToken(ctx, req.ClientID, req.RefreshToken, req.Scope)
}

func (h *Handler) handleClientCredentialsGrant(r *http.Request, req *tokenRequest) (*server.TokenGrant, error) {
	if req.ClientID == "" {
		return nil, fmt.Errorf("%w: client_id is required", server.ErrInvalidRequest)
	}
	ctx := r.Context()
	if err := h.server.AuthenticateClient(ctx, req.ClientID, req.ClientSecret); err != nil {
		return nil, err
	}
	return h.server.ClientCredentialsGrant(ctx, req.ClientID, req.Scope)
}

// ServeValidate handles POST /validate, resolving an access token to its
// principal for resource servers. Invalid tokens yield a 200 with
// valid=false rather than an error status, so callers can branch on the body.
func (h *Handler) ServeValidate(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	if r.Method == http.MethodOptions {
		h.servePreflight(w, r)
		return
	}
	if r.Method != http.MethodPost {
		h.writeMethodNotAllowed(w, r, security.EndpointValidate, startTime)
		return
	}
	h.setCORSHeaders(w, r)

	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.recordHTTPMetrics(r, security.EndpointValidate, http.StatusBadRequest, startTime)
		h.writeError(w, ErrInvalidRequest("Request body must be JSON with an access_token field"), 0)
		return
	}

	clientIP := h.clientIP(r)
	identity := rateLimitIdentity(req.ClientID, clientIP)
	if h.rejectRateLimited(w, r, identity, clientIP, security.EndpointValidate, startTime) {
		return
	}

	if req.AccessToken == "" {
		h.recordHTTPMetrics(r, security.EndpointValidate, http.StatusBadRequest, startTime)
		h.writeError(w, ErrInvalidRequest("access_token is required"), 0)
		return
	}

	token, err := h.server.ValidateAccessToken(r.Context(), req.AccessToken)
	if err != nil {
		h.logger.Debug("Token validation failed",
			"token_prefix", util.SafeTruncate(req.AccessToken, 8),
			"error", err)
		h.recordHTTPMetrics(r, security.EndpointValidate, http.StatusOK, startTime)
		h.writeJSON(w, http.StatusOK, &ValidateResponse{
			Valid: false,
			Error: ErrorCodeInvalidToken,
		})
		return
	}

	resp := &ValidateResponse{Valid: true, Scope: token.Scope}
	if token.UserID != "" {
		info, err := h.server.UserInfo(r.Context(), req.AccessToken)
		if err != nil {
			// The token is valid; failing the whole request over a slow or
			// unavailable identity provider would be worse than an anonymous
			// positive result
			h.logger.Warn("Failed to resolve principal for valid token", "error", err)
		} else {
			resp.User = &User{
				ID:        info.ID,
				Email:     info.Email,
				Name:      info.Name,
				AvatarURL: info.Picture,
			}
		}
	}

	h.recordHTTPMetrics(r, security.EndpointValidate, http.StatusOK, startTime)
	h.writeJSON(w, http.StatusOK, resp)
}

// ServeUserinfo handles GET /userinfo with a Bearer access token
func (h *Handler) ServeUserinfo(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	if r.Method == http.MethodOptions {
		h.servePreflight(w, r)
		return
	}
	if r.Method != http.MethodGet {
		h.writeMethodNotAllowed(w, r, security.EndpointUserinfo, startTime)
		return
	}
	h.setCORSHeaders(w, r)

	clientIP := h.clientIP(r)
	if h.rejectRateLimited(w, r, clientIP, clientIP, security.EndpointUserinfo, startTime) {
		return
	}

	accessToken, ok := extractBearerToken(r)
	if !ok {
		h.recordHTTPMetrics(r, security.EndpointUserinfo, http.StatusUnauthorized, startTime)
		h.writeError(w, ErrInvalidToken("Missing or malformed Authorization header"), 0)
		return
	}

	info, err := h.server.UserInfo(r.Context(), accessToken)
	if err != nil {
		h.recordHTTPMetrics(r, security.EndpointUserinfo, http.StatusUnauthorized, startTime)
		h.writeError(w, mapServerError(err), 0)
		return
	}

	h.recordHTTPMetrics(r, security.EndpointUserinfo, http.StatusOK, startTime)
	h.writeJSON(w, http.StatusOK, info)
}

// ServeRevocation handles POST /revoke per RFC 7009: the response is 200
// whether or not the token existed, so callers cannot probe the token space.
func (h *Handler) ServeRevocation(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	if r.Method == http.MethodOptions {
		h.servePreflight(w, r)
		return
	}
	if r.Method != http.MethodPost {
		h.writeMethodNotAllowed(w, r, security.EndpointRevoke, startTime)
		return
	}
	h.setCORSHeaders(w, r)

	req, err := h.parseRevocationRequest(r)
	if err != nil {
		h.recordHTTPMetrics(r, security.EndpointRevoke, http.StatusBadRequest, startTime)
		h.writeError(w, ErrInvalidRequest("Failed to parse request body"), 0)
		return
	}

	clientIP := h.clientIP(r)
	identity := rateLimitIdentity(req.ClientID, clientIP)

	if h.rejectRateLimited(w, r, identity, clientIP, security.EndpointRevoke, startTime) {
		return
	}
	if h.rejectBlocked(w, r, identity, clientIP, security.EndpointRevoke, startTime) {
		return
	}

	if req.Token == "" || req.ClientID == "" {
		h.recordHTTPMetrics(r, security.EndpointRevoke, http.StatusBadRequest, startTime)
		h.writeError(w, ErrInvalidRequest("token and client_id are required"), 0)
		return
	}

	if err := h.server.AuthenticateClient(r.Context(), req.ClientID, req.ClientSecret); err != nil {
		h.guard.RecordFailure(identity)
		h.recordHTTPMetrics(r, security.EndpointRevoke, http.StatusUnauthorized, startTime)
		h.writeError(w, mapServerError(err), 0)
		return
	}
	h.guard.RecordSuccess(identity)

	if err := h.server.RevokeToken(r.Context(), req.ClientID, req.Token); err != nil {
		// Per RFC 7009 the response stays 200 even when revocation fails
		h.logger.Error("Failed to revoke token", "client_id", req.ClientID, "error", err)
	}

	h.recordHTTPMetrics(r, security.EndpointRevoke, http.StatusOK, startTime)
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	w.WriteHeader(http.StatusOK)
}

// parseTokenRequest reads the token request from a form-encoded or JSON
// body. Basic auth credentials, when present, override the body's client
// credentials.
func (h *Handler) parseTokenRequest(r *http.Request) (*tokenRequest, error) {
	req := &tokenRequest{}

	if isJSONRequest(r) {
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("invalid form body: %w", err)
		}
		req.GrantType = r.PostFormValue("grant_type")
		req.ClientID = r.PostFormValue("client_id")
		req.ClientSecret = r.PostFormValue("client_secret")
		req.Code = r.PostFormValue("code")
		req.State = r.PostFormValue("state")
		req.RedirectURI = r.PostFormValue("redirect_uri")
		req.RefreshToken = r.PostFormValue("refresh_token")
		req.Scope = r.PostFormValue("scope")
	}

	if username, password, ok := r.BasicAuth(); ok && username != "" {
		req.ClientID = username
		req.ClientSecret = password
	}

	return req, nil
}

func (h *Handler) parseRevocationRequest(r *http.Request) (*revocationRequest, error) {
	req := &revocationRequest{}

	if isJSONRequest(r) {
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("invalid form body: %w", err)
		}
		req.Token = r.PostFormValue("token")
		req.ClientID = r.PostFormValue("client_id")
		req.ClientSecret = r.PostFormValue("client_secret")
	}

	if username, password, ok := r.BasicAuth(); ok && username != "" {
		req.ClientID = username
		req.ClientSecret = password
	}

	return req, nil
}

// isJSONRequest reports whether the request body is JSON
func isJSONRequest(r *http.Request) bool {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json"
}

// extractBearerToken pulls the token out of an Authorization: Bearer header
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// rateLimitIdentity picks the accounting identity for the abuse controls:
// the client_id when the request names one, otherwise the proxy-aware
// client IP.
func rateLimitIdentity(clientID, clientIP string) string {
	if clientID != "" {
		return clientID
	}
	return clientIP
}

func (h *Handler) clientIP(r *http.Request) string {
	return security.ClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
}

// rejectRateLimited enforces the endpoint's fixed-window budget. Returns
// true when the request was rejected and the response already written.
func (h *Handler) rejectRateLimited(w http.ResponseWriter, r *http.Request, identity, clientIP, endpoint string, startTime time.Time) bool {
	decision := h.rateLimiter.Allow(identity, endpoint)
	if decision.Allowed {
		return false
	}

	if m := h.metrics(); m != nil {
		m.RecordRateLimitExceeded(r.Context(), endpoint)
	}
	if h.server.Auditor != nil {
		h.server.Auditor.LogRateLimitExceeded(identity, endpoint, clientIP)
	}
	h.recordHTTPMetrics(r, endpoint, http.StatusTooManyRequests, startTime)
	h.writeError(w, ErrRateLimitExceeded("Request rate limit exceeded, slow down"), decision.RetryAfter)
	return true
}

// rejectBlocked enforces the brute-force lockout. Returns true when the
// identity is blocked and the response already written.
func (h *Handler) rejectBlocked(w http.ResponseWriter, r *http.Request, identity, clientIP, endpoint string, startTime time.Time) bool {
	blocked, remaining := h.guard.IsBlocked(identity)
	if !blocked {
		return false
	}

	if m := h.metrics(); m != nil {
		m.RecordIdentityBlocked(r.Context())
	}
	if h.server.Auditor != nil {
		h.server.Auditor.LogIdentityBlocked(identity, clientIP, remaining)
	}
	h.recordHTTPMetrics(r, endpoint, http.StatusTooManyRequests, startTime)
	h.writeError(w, ErrTooManyAttempts("Too many failed attempts, try again later"), remaining)
	return true
}

// writeTokenResponse writes a successful token response
func (h *Handler) writeTokenResponse(w http.ResponseWriter, grant *server.TokenGrant) {
	h.writeJSON(w, http.StatusOK, &TokenResponse{
		AccessToken:  grant.AccessToken,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    grant.ExpiresIn,
		RefreshToken: grant.RefreshToken,
		Scope:        grant.Scope,
	})
}

// writeError writes an OAuth error response. A positive retryAfter adds a
// Retry-After header (whole seconds, rounded up).
func (h *Handler) writeError(w http.ResponseWriter, oauthErr *Error, retryAfter time.Duration) {
	if oauthErr.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", tokenTypeBearer)
	}
	if retryAfter > 0 {
		seconds := int(math.Ceil(retryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	h.writeJSON(w, oauthErr.Status, &ErrorResponse{
		Error:            oauthErr.Code,
		ErrorDescription: oauthErr.Description,
	})
}

// writeJSON writes a JSON response body. Every response carries the
// security headers, and no-store caching per RFC 6749 section 5.1 since
// tokens or claims may be in the body.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	security.SetNoStoreHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response body", "error", err)
	}
}

// setCORSHeaders applies CORS headers for allow-listed origins
func (h *Handler) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || !h.isAllowedOrigin(origin) {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Vary", "Origin")
}

func (h *Handler) isAllowedOrigin(origin string) bool {
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

// writeMethodNotAllowed rejects an unsupported HTTP method. The security
// headers go on this response like every other.
func (h *Handler) writeMethodNotAllowed(w http.ResponseWriter, r *http.Request, endpoint string, startTime time.Time) {
	h.recordHTTPMetrics(r, endpoint, http.StatusMethodNotAllowed, startTime)
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// servePreflight answers CORS preflight requests for allow-listed origins
func (h *Handler) servePreflight(w http.ResponseWriter, r *http.Request) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	origin := r.Header.Get("Origin")
	if origin == "" || !h.isAllowedOrigin(origin) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	w.Header().Set("Access-Control-Max-Age", strconv.Itoa(defaultCORSMaxAge))
	w.Header().Set("Vary", "Origin")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) metrics() *instrumentation.Metrics {
	if inst := h.server.Instrumentation(); inst != nil {
		return inst.Metrics()
	}
	return nil
}

func (h *Handler) recordHTTPMetrics(r *http.Request, endpoint string, status int, startTime time.Time) {
	m := h.metrics()
	if m == nil {
		return
	}
	durationMs := float64(time.Since(startTime).Microseconds()) / 1000.0
	m.RecordHTTPRequest(r.Context(), r.Method, endpoint, status, durationMs)
}
