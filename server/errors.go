package server

import "errors"

// Sentinel errors returned by the grant operations. The HTTP layer maps
// these onto the OAuth 2.0 error vocabulary with errors.Is; flow code wraps
// them with detail for logs.
//
// Failures inside a grant deliberately collapse onto ErrInvalidGrant: a
// caller probing with stolen codes learns nothing about whether the code was
// unknown, expired, consumed, or bound to another client.
var (
	// ErrInvalidRequest indicates a malformed or incomplete request
	ErrInvalidRequest = errors.New("invalid_request")

	// ErrInvalidClient indicates failed client authentication
	ErrInvalidClient = errors.New("invalid_client")

	// ErrInvalidGrant indicates an invalid, expired, consumed, or mismatched
	// code or refresh token
	ErrInvalidGrant = errors.New("invalid_grant")

	// ErrInvalidScope indicates a scope outside what the client may request
	ErrInvalidScope = errors.New("invalid_scope")

	// ErrUnauthorizedClient indicates the client may not use this grant type
	ErrUnauthorizedClient = errors.New("unauthorized_client")

	// ErrInvalidToken indicates an unknown, expired, or revoked token
	// presented for validation or userinfo
	ErrInvalidToken = errors.New("invalid_token")
)
