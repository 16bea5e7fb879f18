package security

// Event type constants for security audit logging. Using constants keeps
// event names consistent across the codebase and greppable in log storage.
const (
	// EventAuthorizationStarted is logged when an authorization request passes validation
	EventAuthorizationStarted = "authorization_started"

	// EventLoginSucceeded is logged when a resource owner authenticates
	EventLoginSucceeded = "login_succeeded"

	// EventLoginFailed is logged when credential verification fails
	EventLoginFailed = "login_failed"

	// EventConsentDenied is logged when the resource owner denies consent
	EventConsentDenied = "consent_denied"

	// EventCodeIssued is logged when an authorization code is issued
	EventCodeIssued = "code_issued"

	// EventCodeRedemptionFailed is logged when code redemption fails
	// (replay, expiry, client or redirect URI mismatch)
	EventCodeRedemptionFailed = "code_redemption_failed"

	// EventTokenIssued is logged when an access token is issued
	EventTokenIssued = "token_issued"

	// EventTokenDenied is logged when an access token fails validation
	EventTokenDenied = "token_denied" //nolint:gosec // event type name, not a credential

	// EventPKCEFailed is logged when PKCE verification fails
	EventPKCEFailed = "pkce_failed"

	// EventClientAuthFailed is logged when client authentication fails at
	// the token endpoint
	EventClientAuthFailed = "client_auth_failed"

	// EventAuthFailure is logged for generic authentication failures not
	// covered by a more specific event type
	EventAuthFailure = "auth_failure"

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"

	// EventInvalidRedirect is logged when an unregistered redirect URI is presented
	EventInvalidRedirect = "invalid_redirect"
)
