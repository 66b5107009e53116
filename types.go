package oauth

// TokenResponse represents an OAuth 2.0 token response
type TokenResponse struct {
	// AccessToken is the access token
	AccessToken string `json:"access_token"`

	// TokenType is the type of token (always "Bearer")
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// RefreshToken is the refresh token (absent for client-credentials grants)
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the scope of the access token
	Scope string `json:"scope,omitempty"`
}

// ErrorResponse represents an OAuth error response body
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`
}

// ValidateRequest is the body of a POST /validate request
type ValidateRequest struct {
	// AccessToken is the token to validate
	AccessToken string `json:"access_token"`

	// ClientID optionally identifies the caller for rate-limit accounting
	ClientID string `json:"client_id,omitempty"`
}

// ValidateResponse reports the outcome of a token validation
type ValidateResponse struct {
	// Valid reports whether the token is active
	Valid bool `json:"valid"`

	// User carries the token's principal when the token belongs to a user.
	// Absent for client-credentials tokens and invalid tokens.
	User *User `json:"user,omitempty"`

	// Scope is the scope of a valid token
	Scope string `json:"scope,omitempty"`

	// Error is the error code for invalid tokens
	Error string `json:"error,omitempty"`
}

// User is the wire representation of a token's principal
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// tokenRequest carries the parameters of a POST /token request, populated
// from either a form-encoded or a JSON body.
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
	State        string `json:"state"`
	RedirectURI  string `json:"redirect_uri"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// revocationRequest carries the parameters of a POST /revoke request
type revocationRequest struct {
	Token        string `json:"token"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}
