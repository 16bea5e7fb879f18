package gatehouse

// TokenResponse is the JSON body of a successful token exchange (RFC 6749 §5.1)
type TokenResponse struct {
	// AccessToken is the opaque access token
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the access token lifetime in seconds
	ExpiresIn int64 `json:"expires_in"`

	// RefreshToken is issued alongside every access token. There is no
	// refresh grant endpoint; clients hold it for a future capability.
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the granted scope set, space-separated
	Scope string `json:"scope,omitempty"`
}

// ErrorResponse is the JSON body of an OAuth error (RFC 6749 §5.2)
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`
}

// UserInfoResponse carries the claims released by the userinfo endpoint.
// Which fields are present depends on the token's granted scope; sub is
// always present.
type UserInfoResponse struct {
	Sub          string `json:"sub"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
	ProfileImage string `json:"profile_image,omitempty"`
}

// IntrospectionResponse is the JSON body of a token introspection
// (RFC 7662). Only Active is guaranteed; the rest is present for
// active tokens.
type IntrospectionResponse struct {
	Active   bool   `json:"active"`
	Scope    string `json:"scope,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Username string `json:"username,omitempty"`
	Exp      int64  `json:"exp,omitempty"`
}
