package oauth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gatewarden/gatewarden/server"
)

// OAuth error codes as constants
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeInvalidScope         = "invalid_scope"
	ErrorCodeInvalidToken         = "invalid_token"
	ErrorCodeUnauthorizedClient   = "unauthorized_client"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeServerError          = "server_error"

	// Extensions beyond RFC 6749 for the abuse controls
	ErrorCodeRateLimitExceeded = "rate_limit_exceeded"
	ErrorCodeTooManyAttempts   = "too_many_attempts"
)

// Error represents an OAuth 2.0 error response
type Error struct {
	Code        string // OAuth error code (e.g., "invalid_request", "invalid_grant")
	Description string // Human-readable error description
	Status      int    // HTTP status code
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewError creates a new OAuth error
func NewError(code, description string, status int) *Error {
	return &Error{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Common OAuth errors as reusable constructors
var (
	// ErrInvalidRequest indicates the request is malformed or missing required parameters
	ErrInvalidRequest = func(desc string) *Error {
		return NewError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
	}

	// ErrInvalidClient indicates client authentication failed
	ErrInvalidClient = func(desc string) *Error {
		return NewError(ErrorCodeInvalidClient, desc, http.StatusUnauthorized)
	}

	// ErrInvalidGrant indicates the authorization code or refresh token is invalid or expired
	ErrInvalidGrant = func(desc string) *Error {
		return NewError(ErrorCodeInvalidGrant, desc, http.StatusBadRequest)
	}

	// ErrInvalidScope indicates the requested scope is invalid or unsupported
	ErrInvalidScope = func(desc string) *Error {
		return NewError(ErrorCodeInvalidScope, desc, http.StatusBadRequest)
	}

	// ErrInvalidToken indicates the access token is invalid or expired
	ErrInvalidToken = func(desc string) *Error {
		return NewError(ErrorCodeInvalidToken, desc, http.StatusUnauthorized)
	}

	// ErrUnauthorizedClient indicates the client is not authorized for the requested grant type
	ErrUnauthorizedClient = func(desc string) *Error {
		return NewError(ErrorCodeUnauthorizedClient, desc, http.StatusBadRequest)
	}

	// ErrUnsupportedGrantType indicates the grant type is not supported
	ErrUnsupportedGrantType = func(desc string) *Error {
		return NewError(ErrorCodeUnsupportedGrantType, desc, http.StatusBadRequest)
	}

	// ErrServerError indicates an internal server error occurred
	ErrServerError = func(desc string) *Error {
		return NewError(ErrorCodeServerError, desc, http.StatusInternalServerError)
	}

	// ErrRateLimitExceeded indicates the caller exhausted its request budget
	ErrRateLimitExceeded = func(desc string) *Error {
		return NewError(ErrorCodeRateLimitExceeded, desc, http.StatusTooManyRequests)
	}

	// ErrTooManyAttempts indicates the identity is temporarily blocked after
	// repeated authentication failures
	ErrTooManyAttempts = func(desc string) *Error {
		return NewError(ErrorCodeTooManyAttempts, desc, http.StatusTooManyRequests)
	}
)

// mapServerError converts a grant-operation error into the OAuth wire error.
// Classification is by errors.Is on the server sentinels, never by string
// matching. Unrecognized errors become server_error with no detail leaked.
func mapServerError(err error) *Error {
	switch {
	case errors.Is(err, server.ErrInvalidRequest):
		return ErrInvalidRequest("The request is missing a required parameter or is otherwise malformed")
	case errors.Is(err, server.ErrInvalidClient):
		return ErrInvalidClient("Client authentication failed")
	case errors.Is(err, server.ErrInvalidGrant):
		return ErrInvalidGrant("The provided grant is invalid, expired, or revoked")
	case errors.Is(err, server.ErrInvalidScope):
		return ErrInvalidScope("The requested scope is invalid or exceeds what the client may request")
	case errors.Is(err, server.ErrUnauthorizedClient):
		return ErrUnauthorizedClient("The client is not authorized to use this grant type")
	case errors.Is(err, server.ErrInvalidToken):
		return ErrInvalidToken("The access token is invalid or expired")
	default:
		return ErrServerError("An internal error occurred")
	}
}

// isAuthFailure reports whether a grant error counts toward the brute-force
// lockout. Only credential and grant failures count; malformed requests and
// scope problems do not.
func isAuthFailure(err error) bool {
	return errors.Is(err, server.ErrInvalidClient) || errors.Is(err, server.ErrInvalidGrant)
}
