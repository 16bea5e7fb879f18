package storage

import (
	"context"
	"errors"
	"time"
)

// Client types.
const (
	ClientTypeConfidential = "confidential"
	ClientTypePublic       = "public"
)

// Sentinel errors returned by stores. Callers match them with errors.Is
// and translate them into protocol errors at the boundary.
var (
	// ErrUserNotFound indicates the user ID is not known to the store
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidCredentials indicates the username/password pair did not verify.
	// The same error is returned for unknown usernames to prevent enumeration.
	ErrInvalidCredentials = errors.New("invalid user credentials")

	// ErrClientNotFound indicates the client ID is not registered
	ErrClientNotFound = errors.New("client not found")

	// ErrInvalidClientSecret indicates client secret verification failed.
	// Public clients have no secret and always fail secret checks.
	ErrInvalidClientSecret = errors.New("invalid client secret")

	// ErrCodeNotFound indicates the authorization code does not exist.
	// A code that was already consumed reports this same error; a burned
	// code is indistinguishable from one that never existed.
	ErrCodeNotFound = errors.New("authorization code not found")

	// ErrCodeExpired indicates the code existed but its TTL had elapsed.
	// The code is removed before this error is reported.
	ErrCodeExpired = errors.New("authorization code expired")

	// ErrCodeClientMismatch indicates the code was issued to a different client.
	// The code is removed before this error is reported.
	ErrCodeClientMismatch = errors.New("authorization code client mismatch")

	// ErrCodeRedirectMismatch indicates the redirect URI presented at
	// redemption differs from the one bound at issuance. The code is
	// removed before this error is reported.
	ErrCodeRedirectMismatch = errors.New("authorization code redirect URI mismatch")

	// ErrTokenNotFound indicates the token does not exist (or was already
	// reaped after expiring)
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenExpired indicates the token existed but its TTL had elapsed.
	// Stores report this at most once per token: the expired record is
	// deleted during the lookup, so subsequent lookups see ErrTokenNotFound.
	ErrTokenExpired = errors.New("token expired")
)

// UserStore manages resource-owner accounts and credential verification.
// All methods accept context.Context for tracing and cancellation.
type UserStore interface {
	// SaveUser stores a user record. The PasswordHash field must already
	// be a salted hash; stores never see plaintext passwords.
	SaveUser(ctx context.Context, user *User) error

	// GetUser retrieves a user by ID
	GetUser(ctx context.Context, userID string) (*User, error)

	// VerifyUserCredentials checks a username/password pair against the
	// stored salted hash. Returns ErrInvalidCredentials for unknown users
	// and wrong passwords alike.
	VerifyUserCredentials(ctx context.Context, username, password string) (*User, error)
}

// ClientStore manages registered OAuth clients.
// All methods accept context.Context for tracing and cancellation.
type ClientStore interface {
	// SaveClient stores a client registration
	SaveClient(ctx context.Context, client *Client) error

	// GetClient retrieves a client by ID
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// ValidateClientSecret verifies a confidential client's secret against
	// its stored hash. Returns ErrInvalidClientSecret for public clients
	// and wrong secrets alike.
	ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error
}

// CodeStore is the authorization code ledger.
// All methods accept context.Context for tracing and cancellation.
type CodeStore interface {
	// SaveAuthorizationCode records an issued code with its binding
	// (client, redirect URI, user, scope, PKCE challenge) and expiry.
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// ConsumeAuthorizationCode atomically redeems a code. The record is
	// REMOVED before expiry, client, and redirect URI are checked, so a
	// code is single-use even when redemption fails partway: a replay of
	// a burned code always reports ErrCodeNotFound.
	//
	// Errors, in check order: ErrCodeNotFound, ErrCodeExpired,
	// ErrCodeClientMismatch, ErrCodeRedirectMismatch.
	ConsumeAuthorizationCode(ctx context.Context, code, clientID, redirectURI string) (*AuthorizationCode, error)
}

// TokenStore is the token ledger for opaque access and refresh tokens.
// Lookups apply lazy expiry: an expired record is deleted during the
// lookup that discovers it, reporting ErrTokenExpired exactly once.
// All methods accept context.Context for tracing and cancellation.
type TokenStore interface {
	// SaveAccessToken records an issued access token
	SaveAccessToken(ctx context.Context, token *Token) error

	// GetAccessToken retrieves an access token record by its opaque value
	GetAccessToken(ctx context.Context, token string) (*Token, error)

	// SaveRefreshToken records an issued refresh token
	SaveRefreshToken(ctx context.Context, token *Token) error

	// GetRefreshToken retrieves a refresh token record by its opaque value
	GetRefreshToken(ctx context.Context, token string) (*Token, error)
}

// User represents a resource owner account
type User struct {
	// ID is the stable subject identifier (also the login username)
	ID string

	// PasswordHash is the bcrypt hash of the user's password
	PasswordHash string

	// Name is the display name, released under the "profile" scope
	Name string

	// Email is released under the "email" scope
	Email string

	// ProfileImage is a URL, released under the "profile" scope
	ProfileImage string

	CreatedAt time.Time
}

// Client represents a registered OAuth client
type Client struct {
	ClientID string

	// ClientSecretHash is the bcrypt hash of the client secret.
	// Empty for public clients.
	ClientSecretHash string

	// ClientType is "confidential" or "public"
	ClientType string

	// RedirectURIs are matched by exact byte comparison, never by prefix
	RedirectURIs []string

	ClientName string

	// Scope is the space-separated set of scopes this client may request
	Scope string

	CreatedAt time.Time
}

// IsPublic reports whether the client is a public client (no secret)
func (c *Client) IsPublic() bool {
	return c.ClientType == ClientTypePublic
}

// AuthorizationRequest is a pending authorization awaiting login and
// consent. It is a transient value owned by the session layer and is
// never persisted in any ledger.
type AuthorizationRequest struct {
	ClientID            string
	ClientName          string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string

	// UserID is set once the resource owner has authenticated
	UserID string

	CreatedAt time.Time
}

// Authenticated reports whether the resource owner has logged in
func (r *AuthorizationRequest) Authenticated() bool {
	return r.UserID != ""
}

// AuthorizationCode is an issued, not-yet-redeemed authorization code
type AuthorizationCode struct {
	Code                string
	ClientID            string
	UserID              string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// Token is an issued opaque access or refresh token
type Token struct {
	// Token is the opaque value handed to the client, used as the ledger key
	Token string

	UserID    string
	ClientID  string
	Scope     string
	CreatedAt time.Time
	ExpiresAt time.Time
}
