package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gatewarden/gatewarden/identity"
	"github.com/gatewarden/gatewarden/security"
	"github.com/gatewarden/gatewarden/storage"
)

// TokenGrant is the result of a successful grant operation.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string // empty for the client-credentials grant
	TokenType    string // always "Bearer"
	ExpiresIn    int64  // access token lifetime in seconds
	Scope        string
}

// CodeRequest describes an authorization code to issue.
type CodeRequest struct {
	ClientID    string
	RedirectURI string
	Scope       string
	State       string // client-supplied correlator, may be empty
	UserID      string // the authenticated resource owner
}

// IssueAuthorizationCode validates the request against the client's
// registration and issues a single-use authorization code bound to the
// client, redirect URI, scope, and user.
func (s *Server) IssueAuthorizationCode(ctx context.Context, req *CodeRequest) (*storage.AuthorizationCode, error) {
	if req == nil || req.ClientID == "" || req.RedirectURI == "" || req.UserID == "" {
		return nil, fmt.Errorf("%w: client_id, redirect_uri, and user are required", ErrInvalidRequest)
	}

	client, err := s.clientStore.GetClient(ctx, req.ClientID)
	if err != nil {
		s.auditAuthFailure(req.UserID, req.ClientID, "", "unknown client")
		return nil, fmt.Errorf("%w: unknown client", ErrInvalidClient)
	}
	if !client.AllowsGrantType(GrantTypeAuthorizationCode) {
		return nil, fmt.Errorf("%w: authorization_code grant not allowed for client", ErrUnauthorizedClient)
	}
	if err := s.validateRedirectURI(client, req.RedirectURI); err != nil {
		if s.Auditor != nil && s.allowSecurityEvent(req.ClientID) {
			s.Auditor.LogEvent(security.AuditEvent{
				Type:     security.EventRedirectURIMismatch,
				ClientID: req.ClientID,
			})
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := s.validateScopes(req.Scope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScope, err)
	}
	if err := s.validateClientScopes(req.Scope, client.Scopes); err != nil {
		if s.Auditor != nil && s.allowSecurityEvent(req.ClientID) {
			s.Auditor.LogEvent(security.AuditEvent{
				Type:     security.EventScopeEscalationAttempt,
				UserID:   req.UserID,
				ClientID: req.ClientID,
			})
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidScope, err)
	}

	now := time.Now()
	code := &storage.AuthorizationCode{
		Code:        generateRandomToken(),
		ClientID:    req.ClientID,
		RedirectURI: req.RedirectURI,
		Scope:       grantedScope(req.Scope, client.Scopes),
		State:       req.State,
		UserID:      req.UserID,
		CreatedAt:   now,
		ExpiresAt:   s.Config.Expiry.ComputeExpiry(security.ExpiryKindCode, now),
	}

	if err := s.codeStore.SaveAuthorizationCode(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to save authorization code: %w", err)
	}

	if m := s.metrics(); m != nil {
		m.RecordCodeIssued(ctx, req.ClientID)
	}
	s.Logger.Info("Authorization code issued",
		"client_id", req.ClientID,
		"scope", code.Scope)

	return code, nil
}

// ExchangeAuthorizationCode consumes an authorization code and issues an
// access/refresh token pair. The consume is atomic: of any number of
// concurrent exchanges for one code, exactly one succeeds.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, clientID, code, state, redirectURI string) (*TokenGrant, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: code is required", ErrInvalidRequest)
	}

	authCode, err := s.codeStore.AtomicConsumeAuthorizationCode(ctx, code, state)
	if err != nil {
		if errors.Is(err, storage.ErrCodeConsumed) {
			// Replay of a consumed code is a theft indicator
			if s.allowSecurityEvent(clientID) {
				s.Logger.Error("Authorization code reuse detected",
					"client_id", clientID)
				if s.Auditor != nil {
					s.Auditor.LogReuseDetected(security.EventCodeReuseDetected, clientID, "")
				}
			}
			if m := s.metrics(); m != nil {
				m.RecordCodeReuseDetected(ctx)
			}
		} else {
			s.Logger.Warn("Authorization code exchange failed",
				"client_id", clientID,
				"error", err)
		}
		// Generic error regardless of cause: the caller learns nothing about
		// whether the code was unknown, expired, consumed, or state-mismatched
		return nil, fmt.Errorf("%w: invalid authorization code", ErrInvalidGrant)
	}

	// The code is bound to the client and redirect URI it was issued for
	if authCode.ClientID != clientID {
		s.auditAuthFailure(authCode.UserID, clientID, "", "code issued to another client")
		return nil, fmt.Errorf("%w: invalid authorization code", ErrInvalidGrant)
	}
	if authCode.RedirectURI != redirectURI {
		if s.Auditor != nil && s.allowSecurityEvent(clientID) {
			s.Auditor.LogEvent(security.AuditEvent{
				Type:     security.EventRedirectURIMismatch,
				UserID:   authCode.UserID,
				ClientID: clientID,
			})
		}
		return nil, fmt.Errorf("%w: invalid authorization code", ErrInvalidGrant)
	}

	grant, err := s.issueTokenPair(ctx, clientID, authCode.UserID, authCode.Scope)
	if err != nil {
		return nil, err
	}

	if m := s.metrics(); m != nil {
		m.RecordCodeExchange(ctx, clientID)
		m.RecordTokenIssued(ctx, clientID, GrantTypeAuthorizationCode)
	}
	if s.Auditor != nil {
		s.Auditor.LogCodeConsumed(authCode.UserID, clientID, "")
		s.Auditor.LogTokenIssued(authCode.UserID, clientID, "", grant.Scope, GrantTypeAuthorizationCode)
	}
	s.Logger.Info("Authorization code exchanged",
		"client_id", clientID,
		"scope", grant.Scope)

	return grant, nil
}

// RefreshAccessToken rotates a refresh token: the presented token and its
// paired access token are invalidated and a fresh pair is issued. The
// requested scope must be a subset of the original grant; an empty request
// inherits it.
func (s *Server) RefreshAccessToken(ctx context.Context, clientID, refreshToken, requestedScope string) (*TokenGrant, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh_token is required", ErrInvalidRequest)
	}

	old, err := s.tokenStore.AtomicConsumeRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrTokenRevoked) {
			// Replay of a rotated or revoked refresh token is a theft indicator
			if s.allowSecurityEvent(clientID) {
				s.Logger.Error("Refresh token reuse detected",
					"client_id", clientID)
				if s.Auditor != nil {
					s.Auditor.LogReuseDetected(security.EventTokenReuseDetected, clientID, "")
				}
			}
			if m := s.metrics(); m != nil {
				m.RecordTokenReuseDetected(ctx)
			}
		} else {
			s.Logger.Warn("Refresh token exchange failed",
				"client_id", clientID,
				"error", err)
		}
		return nil, fmt.Errorf("%w: invalid refresh token", ErrInvalidGrant)
	}

	if old.ClientID != clientID {
		s.auditAuthFailure(old.UserID, clientID, "", "refresh token issued to another client")
		return nil, fmt.Errorf("%w: invalid refresh token", ErrInvalidGrant)
	}

	scope := old.Scope
	if requestedScope != "" {
		if err := subsetOfScope(requestedScope, old.Scope); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidScope, err)
		}
		scope = requestedScope
	}

	grant, err := s.issueTokenPair(ctx, clientID, old.UserID, scope)
	if err != nil {
		return nil, err
	}

	if m := s.metrics(); m != nil {
		m.RecordTokenRefresh(ctx, clientID)
	}
	if s.Auditor != nil {
		s.Auditor.LogTokenRefreshed(old.UserID, clientID, "")
	}
	s.Logger.Info("Access token refreshed",
		"client_id", clientID,
		"scope", scope)

	return grant, nil
}

// ClientCredentialsGrant issues an access token for the client itself.
// No refresh token is issued: the client can always authenticate again.
func (s *Server) ClientCredentialsGrant(ctx context.Context, clientID, requestedScope string) (*TokenGrant, error) {
	client, err := s.clientStore.GetClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown client", ErrInvalidClient)
	}
	if !client.AllowsGrantType(GrantTypeClientCredentials) {
		return nil, fmt.Errorf("%w: client_credentials grant not allowed for client", ErrUnauthorizedClient)
	}
	if err := s.validateScopes(requestedScope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScope, err)
	}
	if err := s.validateClientScopes(requestedScope, client.Scopes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScope, err)
	}

	scope := grantedScope(requestedScope, client.Scopes)
	now := time.Now()
	access := &storage.Token{
		Value:     generateRandomToken(),
		Kind:      storage.TokenKindAccess,
		ClientID:  clientID,
		Scope:     scope,
		IssuedAt:  now,
		ExpiresAt: s.Config.Expiry.ComputeExpiry(security.ExpiryKindAccessToken, now),
	}
	if err := s.tokenStore.SaveToken(ctx, access); err != nil {
		return nil, fmt.Errorf("failed to save access token: %w", err)
	}

	if m := s.metrics(); m != nil {
		m.RecordTokenIssued(ctx, clientID, GrantTypeClientCredentials)
	}
	if s.Auditor != nil {
		s.Auditor.LogTokenIssued("", clientID, "", scope, GrantTypeClientCredentials)
	}
	s.Logger.Info("Client credentials token issued",
		"client_id", clientID,
		"scope", scope)

	return &TokenGrant{
		AccessToken: access.Value,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.Config.Expiry.AccessTokenTTL.Seconds()),
		Scope:       scope,
	}, nil
}

// ValidateAccessToken resolves an access token to its record. Expiry is
// checked with the clock skew grace period; refresh tokens presented here
// are rejected outright.
func (s *Server) ValidateAccessToken(ctx context.Context, value string) (*storage.Token, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: token is required", ErrInvalidRequest)
	}

	token, err := s.tokenStore.GetToken(ctx, value)
	if err != nil {
		if m := s.metrics(); m != nil {
			m.RecordTokenValidation(ctx, false)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if token.Kind != storage.TokenKindAccess {
		if m := s.metrics(); m != nil {
			m.RecordTokenValidation(ctx, false)
		}
		return nil, fmt.Errorf("%w: not an access token", ErrInvalidToken)
	}

	if m := s.metrics(); m != nil {
		m.RecordTokenValidation(ctx, true)
	}
	return token, nil
}

// RevokeToken revokes a token presented by the client that owns it. Per
// RFC 7009 revocation is idempotent and never discloses whether the token
// existed: unknown tokens and tokens owned by other clients both return nil.
func (s *Server) RevokeToken(ctx context.Context, clientID, value string) error {
	if value == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidRequest)
	}

	token, err := s.tokenStore.GetToken(ctx, value)
	if err != nil {
		// Already revoked, expired, or never existed: success either way
		return nil
	}
	if token.ClientID != clientID {
		s.auditAuthFailure(token.UserID, clientID, "", "revocation attempt for another client's token")
		return nil
	}

	if err := s.tokenStore.RevokeToken(ctx, value); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	if m := s.metrics(); m != nil {
		m.RecordTokenRevocation(ctx, clientID)
	}
	if s.Auditor != nil {
		s.Auditor.LogTokenRevoked(token.UserID, clientID, "", token.Kind)
	}
	s.Logger.Info("Token revoked",
		"client_id", clientID,
		"token_kind", token.Kind)

	return nil
}

// UserInfo validates an access token and resolves the identity claims of the
// user it was issued to.
func (s *Server) UserInfo(ctx context.Context, accessToken string) (*identity.UserInfo, error) {
	token, err := s.ValidateAccessToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if token.UserID == "" {
		// Client-credentials tokens have no resource owner
		return nil, fmt.Errorf("%w: token has no associated user", ErrInvalidToken)
	}

	info, err := s.identity.UserInfo(ctx, token.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user info: %w", err)
	}
	return info, nil
}

// AuthenticateClient verifies client credentials against the client store.
func (s *Server) AuthenticateClient(ctx context.Context, clientID, clientSecret string) error {
	if clientID == "" {
		return fmt.Errorf("%w: client_id is required", ErrInvalidRequest)
	}
	if err := s.clientStore.ValidateClientSecret(ctx, clientID, clientSecret); err != nil {
		if m := s.metrics(); m != nil {
			m.RecordAuthFailure(ctx, "invalid_client")
		}
		return fmt.Errorf("%w: client authentication failed", ErrInvalidClient)
	}
	return nil
}

// issueTokenPair mints a linked access/refresh token pair and persists both
// records. Revoking the refresh token later revokes the pair.
func (s *Server) issueTokenPair(ctx context.Context, clientID, userID, scope string) (*TokenGrant, error) {
	now := time.Now()
	accessValue := generateRandomToken()
	refreshValue := generateRandomToken()

	access := &storage.Token{
		Value:     accessValue,
		Kind:      storage.TokenKindAccess,
		ClientID:  clientID,
		UserID:    userID,
		Scope:     scope,
		IssuedAt:  now,
		ExpiresAt: s.Config.Expiry.ComputeExpiry(security.ExpiryKindAccessToken, now),
		Pair:      refreshValue,
	}
	refresh := &storage.Token{
		Value:     refreshValue,
		Kind:      storage.TokenKindRefresh,
		ClientID:  clientID,
		UserID:    userID,
		Scope:     scope,
		IssuedAt:  now,
		ExpiresAt: s.Config.Expiry.ComputeExpiry(security.ExpiryKindRefreshToken, now),
		Pair:      accessValue,
	}

	if err := s.tokenStore.SaveToken(ctx, access); err != nil {
		return nil, fmt.Errorf("failed to save access token: %w", err)
	}
	if err := s.tokenStore.SaveToken(ctx, refresh); err != nil {
		// Best effort: don't leave a half-issued pair behind
		if delErr := s.tokenStore.DeleteToken(ctx, accessValue); delErr != nil {
			s.Logger.Warn("Failed to delete orphaned access token", "error", delErr)
		}
		return nil, fmt.Errorf("failed to save refresh token: %w", err)
	}

	return &TokenGrant{
		AccessToken:  accessValue,
		RefreshToken: refreshValue,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.Config.Expiry.AccessTokenTTL.Seconds()),
		Scope:        scope,
	}, nil
}

// auditAuthFailure logs an auth failure through the auditor, gated by the
// event rate limiter
func (s *Server) auditAuthFailure(userID, clientID, ipAddress, reason string) {
	if s.Auditor == nil || !s.allowSecurityEvent(clientID) {
		return
	}
	s.Auditor.LogAuthFailure(userID, clientID, ipAddress, reason)
}

// grantedScope resolves the effective scope of a grant: the requested scope
// when present, otherwise the client's full registered scope set.
func grantedScope(requested string, clientScopes []string) string {
	if requested != "" {
		return requested
	}
	return strings.Join(clientScopes, " ")
}

// subsetOfScope verifies that every requested scope appears in the original
// grant
func subsetOfScope(requested, original string) error {
	originalSet := make(map[string]struct{})
	for _, sc := range strings.Fields(original) {
		originalSet[sc] = struct{}{}
	}
	for _, sc := range strings.Fields(requested) {
		if _, ok := originalSet[sc]; !ok {
			return fmt.Errorf("requested scope exceeds the original grant")
		}
	}
	return nil
}
