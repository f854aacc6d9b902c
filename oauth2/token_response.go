package oauth2

// TokenResponse is the result of a headless login.
// On success AccessToken is set and Error is empty; HTTPStatus is the status
// code returned by the token endpoint.
type TokenResponse struct {
	// AccessToken is used to access protected resources.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	AccessToken string `json:"access_token,omitempty"`

	// IdToken is the OpenID Connect ID token.
	// Only present: When "openid" scope was requested
	IdToken string `json:"id_token,omitempty"`

	// TokenType indicates how to use the access token (typically "Bearer").
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	ExpiresIn int `json:"expires_in,omitempty"`

	// RefreshToken is only issued when offline_access was requested.
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope indicates the access token's granted permissions (space separated).
	Scope string `json:"scope,omitempty"`

	// Error and ErrorDescription carry the RFC 6749 error response of the token endpoint.
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`

	HTTPStatus int `json:"-"`
}

// IsError reports whether the token endpoint returned an error response.
func (t *TokenResponse) IsError() bool {
	return t.Error != "" || t.AccessToken == ""
}
