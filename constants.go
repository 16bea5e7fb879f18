package gatehouse

// Wire-level protocol constants
const (
	// GrantTypeAuthorizationCode is the only grant type the token
	// endpoint accepts. Refresh tokens are issued but not redeemable.
	GrantTypeAuthorizationCode = "authorization_code"

	// ResponseTypeCode is the only supported response type
	ResponseTypeCode = "code"

	// TokenTypeBearer is the token_type of every issued access token
	TokenTypeBearer = "Bearer"

	// ScopeProfile releases the user's display name and profile image
	ScopeProfile = "profile"

	// ScopeEmail releases the user's email address
	ScopeEmail = "email"
)

// Consent form actions
const (
	// ConsentActionApprove is the form action value that approves the
	// authorization request; any other value is a denial.
	ConsentActionApprove = "approve"
)
