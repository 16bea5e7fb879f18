package server

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gatehouse-auth/gatehouse/security"
	"github.com/gatehouse-auth/gatehouse/storage"
)

// ErrTooManyLoginAttempts is returned by AuthenticateUser when the login
// rate limiter rejects the attempt before credentials are even checked.
var ErrTooManyLoginAttempts = errors.New("too many login attempts")

// AuthorizationParams are the raw query parameters of an authorization
// request, before defaults are applied.
type AuthorizationParams struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string

	// ClientIP is used for auditing only
	ClientIP string
}

// TokenGrant is the result of a successful code exchange
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	Scope        string
}

// UserClaims are the claims released by the userinfo operation, filtered
// by the token's granted scope. Empty fields were not covered by a scope
// and must be omitted from the response.
type UserClaims struct {
	Subject      string
	Name         string
	Email        string
	ProfileImage string
}

// Introspection is the result of a token introspection. Active is false
// for unknown and expired tokens; the remaining fields are only set when
// Active is true.
type Introspection struct {
	Active    bool
	Scope     string
	ClientID  string
	Username  string
	ExpiresAt int64 // unix seconds
}

// BeginAuthorization validates an authorization request and returns the
// pending AuthorizationRequest for the session layer to carry through
// login and consent. Nothing is written to any ledger here; a pending
// request that never completes simply evaporates with its session.
//
// Requests from public clients must carry a PKCE challenge. That check
// runs before the pending request is built, so a non-compliant request
// never creates session state.
func (s *Server) BeginAuthorization(ctx context.Context, p AuthorizationParams) (*storage.AuthorizationRequest, error) {
	if p.ClientID == "" || p.RedirectURI == "" {
		return nil, ErrInvalidRequest("Missing required parameters: client_id and redirect_uri")
	}

	client, err := s.clients.GetClient(ctx, p.ClientID)
	if err != nil {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure("", p.ClientID, p.ClientIP, ErrorCodeInvalidClient)
		}
		return nil, ErrInvalidClient("Unknown client")
	}

	if err := validateRedirectURI(client, p.RedirectURI); err != nil {
		if s.Auditor != nil {
			s.Auditor.LogEvent(security.Event{
				Type:      security.EventInvalidRedirect,
				ClientID:  client.ClientID,
				IPAddress: p.ClientIP,
				Details:   map[string]any{"redirect_uri": p.RedirectURI},
			})
		}
		return nil, ErrInvalidRequest("Invalid redirect_uri")
	}

	// The client and redirect URI are checked before anything else so no
	// later failure can be attributed to an unverified caller.
	responseType := p.ResponseType
	if responseType == "" {
		responseType = "code"
	}
	if responseType != "code" {
		return nil, ErrUnsupportedResponseType(fmt.Sprintf("Unsupported response_type: %s", responseType))
	}

	if client.IsPublic() && p.CodeChallenge == "" {
		return nil, ErrInvalidRequest("PKCE is required for public clients: code_challenge is missing")
	}
	if s.Config.RequirePKCE && p.CodeChallenge == "" {
		return nil, ErrInvalidRequest("PKCE is required: code_challenge is missing")
	}

	challengeMethod := p.CodeChallengeMethod
	if p.CodeChallenge != "" {
		if challengeMethod == "" {
			challengeMethod = PKCEMethodS256
		}
		if err := validateChallengeMethod(challengeMethod); err != nil {
			return nil, ErrInvalidRequest(err.Error())
		}
	} else {
		challengeMethod = ""
	}

	scope := p.Scope
	if scope == "" {
		scope = s.Config.DefaultScope
	}
	if err := s.validateScopes(scope); err != nil {
		return nil, ErrInvalidRequest(err.Error())
	}
	if err := validateClientScopes(scope, client); err != nil {
		return nil, ErrInvalidRequest(err.Error())
	}

	if s.metrics != nil {
		s.metrics.AuthorizationStarted.Add(ctx, 1)
	}
	if s.Auditor != nil {
		s.Auditor.LogAuthorizationStarted(client.ClientID, p.ClientIP, scope)
	}
	s.Logger.Debug("Authorization request accepted",
		"client_id", client.ClientID,
		"client_type", client.ClientType,
		"scope", scope,
		"pkce", p.CodeChallenge != "")

	return &storage.AuthorizationRequest{
		ClientID:            client.ClientID,
		ClientName:          client.ClientName,
		RedirectURI:         p.RedirectURI,
		Scope:               scope,
		State:               p.State,
		CodeChallenge:       p.CodeChallenge,
		CodeChallengeMethod: challengeMethod,
		CreatedAt:           time.Now(),
	}, nil
}

// AuthenticateUser verifies the resource owner's credentials against the
// user store and binds the user to the pending request. Attempts are rate
// limited per client IP when a login limiter is attached.
func (s *Server) AuthenticateUser(ctx context.Context, req *storage.AuthorizationRequest, username, password, clientIP string) error {
	if s.metrics != nil {
		s.metrics.LoginAttempts.Add(ctx, 1)
	}

	if s.LoginLimiter != nil && !s.LoginLimiter.Allow(clientIP) {
		if s.metrics != nil {
			s.metrics.RateLimitExceeded.Add(ctx, 1)
		}
		if s.Auditor != nil {
			s.Auditor.LogRateLimitExceeded(clientIP, username)
		}
		return ErrTooManyLoginAttempts
	}

	user, err := s.users.VerifyUserCredentials(ctx, username, password)
	if err != nil {
		if s.Auditor != nil {
			s.Auditor.LogLoginFailed(username, req.ClientID, clientIP)
		}
		return err
	}

	req.UserID = user.ID

	if s.Auditor != nil {
		s.Auditor.LogLoginSucceeded(user.ID, req.ClientID, clientIP)
	}
	s.Logger.Debug("Resource owner authenticated", "client_id", req.ClientID)

	return nil
}

// ApproveAuthorization mints a single-use authorization code for an
// authenticated pending request and returns the redirect location that
// delivers it to the client.
func (s *Server) ApproveAuthorization(ctx context.Context, req *storage.AuthorizationRequest, clientIP string) (string, error) {
	if !req.Authenticated() {
		return "", ErrAccessDenied("Authorization request is not authenticated")
	}

	now := time.Now()
	code := &storage.AuthorizationCode{
		Code:                generateOpaqueToken(),
		ClientID:            req.ClientID,
		UserID:              req.UserID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		CreatedAt:           now,
		ExpiresAt:           now.Add(time.Duration(s.Config.AuthorizationCodeTTL) * time.Second),
	}

	if err := s.codes.SaveAuthorizationCode(ctx, code); err != nil {
		return "", fmt.Errorf("failed to save authorization code: %w", err)
	}

	if s.metrics != nil {
		s.metrics.CodesIssued.Add(ctx, 1)
		s.metrics.ConsentDecisions.Add(ctx, 1)
	}
	if s.Auditor != nil {
		s.Auditor.LogCodeIssued(req.UserID, req.ClientID, clientIP, req.Scope)
	}
	s.Logger.Debug("Authorization code issued",
		"client_id", req.ClientID,
		"code_prefix", safeTruncate(code.Code, 8),
		"expires_at", code.ExpiresAt)

	params := url.Values{"code": {code.Code}}
	if req.State != "" {
		params.Set("state", req.State)
	}
	return buildRedirect(req.RedirectURI, params), nil
}

// DenyAuthorization reports the resource owner's denial back to the
// client as redirect error parameters. The pending request is simply
// discarded; nothing was ever written to a ledger.
func (s *Server) DenyAuthorization(ctx context.Context, req *storage.AuthorizationRequest, clientIP string) string {
	if s.metrics != nil {
		s.metrics.ConsentDecisions.Add(ctx, 1)
	}
	if s.Auditor != nil {
		s.Auditor.LogConsentDenied(req.UserID, req.ClientID, clientIP)
	}

	params := url.Values{
		"error":             {ErrorCodeAccessDenied},
		"error_description": {"User denied access"},
	}
	if req.State != "" {
		params.Set("state", req.State)
	}
	return buildRedirect(req.RedirectURI, params)
}

// AuthenticateClient authenticates the client calling the token endpoint.
// Confidential clients must present their secret; public clients are never
// secret-checked. Run this BEFORE redeeming a code so a wrong secret does
// not burn it.
func (s *Server) AuthenticateClient(ctx context.Context, clientID, clientSecret, clientIP string) (*storage.Client, error) {
	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure("", clientID, clientIP, ErrorCodeInvalidClient)
		}
		return nil, ErrInvalidClient("Unknown client")
	}

	if client.IsPublic() {
		return client, nil
	}

	if clientSecret == "" {
		return nil, ErrInvalidClient("Client authentication required")
	}
	if err := s.clients.ValidateClientSecret(ctx, clientID, clientSecret); err != nil {
		if s.Auditor != nil {
			s.Auditor.LogEvent(security.Event{
				Type:      security.EventClientAuthFailed,
				ClientID:  clientID,
				IPAddress: clientIP,
			})
		}
		s.Logger.Debug("Client authentication failed", "client_id", clientID)
		return nil, ErrInvalidClient("Invalid client credentials")
	}

	return client, nil
}

// ExchangeAuthorizationCode redeems a code for tokens. The caller must
// have authenticated the client first; this method assumes clientID is
// trustworthy and never burns a code on behalf of an unauthenticated
// confidential client.
//
// Redemption consumes the code before anything else is checked, so every
// failure past the ledger lookup still invalidates the code.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, code, clientID, redirectURI, codeVerifier, clientIP string) (*TokenGrant, error) {
	if s.metrics != nil {
		s.metrics.CodesRedeemed.Add(ctx, 1)
	}

	rec, err := s.codes.ConsumeAuthorizationCode(ctx, code, clientID, redirectURI)
	if err != nil {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure("", clientID, clientIP, err.Error())
		}
		s.Logger.Debug("Code redemption failed",
			"client_id", clientID,
			"code_prefix", safeTruncate(code, 8),
			"reason", err)
		return nil, codeRedemptionError(err)
	}

	if rec.CodeChallenge != "" {
		if codeVerifier == "" {
			return nil, ErrInvalidRequest("code_verifier is required")
		}
		if err := validatePKCE(rec.CodeChallenge, rec.CodeChallengeMethod, codeVerifier); err != nil {
			if s.metrics != nil {
				s.metrics.PKCEFailures.Add(ctx, 1)
			}
			if s.Auditor != nil {
				s.Auditor.LogAuthFailure(rec.UserID, clientID, clientIP, "pkce: "+err.Error())
			}
			return nil, ErrInvalidGrant("PKCE verification failed")
		}
	}

	grant, err := s.issueTokens(ctx, rec.UserID, rec.ClientID, rec.Scope)
	if err != nil {
		return nil, err
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenIssued(rec.UserID, clientID, clientIP, rec.Scope)
	}
	s.Logger.Debug("Tokens issued",
		"client_id", clientID,
		"scope", rec.Scope,
		"access_token_prefix", safeTruncate(grant.AccessToken, 8))

	return grant, nil
}

// issueTokens mints and records an access/refresh token pair
func (s *Server) issueTokens(ctx context.Context, userID, clientID, scope string) (*TokenGrant, error) {
	now := time.Now()

	access := &storage.Token{
		Token:     generateOpaqueToken(),
		UserID:    userID,
		ClientID:  clientID,
		Scope:     scope,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(s.Config.AccessTokenTTL) * time.Second),
	}
	if err := s.tokens.SaveAccessToken(ctx, access); err != nil {
		return nil, fmt.Errorf("failed to save access token: %w", err)
	}

	refresh := &storage.Token{
		Token:     generateOpaqueToken(),
		UserID:    userID,
		ClientID:  clientID,
		Scope:     scope,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(s.Config.RefreshTokenTTL) * time.Second),
	}
	if err := s.tokens.SaveRefreshToken(ctx, refresh); err != nil {
		return nil, fmt.Errorf("failed to save refresh token: %w", err)
	}

	if s.metrics != nil {
		s.metrics.TokensIssued.Add(ctx, 1)
	}

	return &TokenGrant{
		AccessToken:  access.Token,
		RefreshToken: refresh.Token,
		TokenType:    "Bearer",
		ExpiresIn:    s.Config.AccessTokenTTL,
		Scope:        scope,
	}, nil
}

// VerifyAccessToken resolves an opaque access token to its ledger record.
// The ledger's lazy expiry means an expired token reports "Token expired"
// exactly once; afterwards it is indistinguishable from an unknown token.
func (s *Server) VerifyAccessToken(ctx context.Context, token string) (*storage.Token, error) {
	if s.metrics != nil {
		s.metrics.TokenValidations.Add(ctx, 1)
	}

	rec, err := s.tokens.GetAccessToken(ctx, token)
	if err != nil {
		s.Logger.Debug("Access token rejected",
			"token_prefix", safeTruncate(token, 8),
			"reason", err)
		switch {
		case errors.Is(err, storage.ErrTokenExpired):
			return nil, ErrInvalidToken("Token expired")
		case errors.Is(err, storage.ErrTokenNotFound):
			return nil, ErrInvalidToken("Invalid token")
		default:
			return nil, fmt.Errorf("token lookup failed: %w", err)
		}
	}

	return rec, nil
}

// UserInfo verifies the access token and returns the user's claims
// filtered by the granted scope: the subject is always released, "profile"
// adds name and profile image, "email" adds the email address.
func (s *Server) UserInfo(ctx context.Context, token string) (*UserClaims, error) {
	rec, err := s.VerifyAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUser(ctx, rec.UserID)
	if err != nil {
		return nil, ErrInvalidToken("Invalid token")
	}

	claims := &UserClaims{Subject: user.ID}
	if HasScope(rec.Scope, "profile") {
		claims.Name = user.Name
		claims.ProfileImage = user.ProfileImage
	}
	if HasScope(rec.Scope, "email") {
		claims.Email = user.Email
	}

	return claims, nil
}

// IntrospectToken reports the state of an access token per RFC 7662.
// Unknown and expired tokens yield Active=false, never an error: a
// resource server probing a dead token is a normal event, not a fault.
func (s *Server) IntrospectToken(ctx context.Context, token string) *Introspection {
	rec, err := s.tokens.GetAccessToken(ctx, token)
	if err != nil {
		return &Introspection{Active: false}
	}

	return &Introspection{
		Active:    true,
		Scope:     rec.Scope,
		ClientID:  rec.ClientID,
		Username:  rec.UserID,
		ExpiresAt: rec.ExpiresAt.Unix(),
	}
}

// codeRedemptionError maps ledger sentinels to protocol errors. All map
// to invalid_grant; the descriptions distinguish the failure for the
// client developer without leaking whether a burned code ever existed.
func codeRedemptionError(err error) error {
	switch {
	case errors.Is(err, storage.ErrCodeNotFound):
		return ErrInvalidGrant("Invalid authorization code")
	case errors.Is(err, storage.ErrCodeExpired):
		return ErrInvalidGrant("Authorization code expired")
	case errors.Is(err, storage.ErrCodeClientMismatch):
		return ErrInvalidGrant("Client ID mismatch")
	case errors.Is(err, storage.ErrCodeRedirectMismatch):
		return ErrInvalidGrant("Redirect URI mismatch")
	default:
		return fmt.Errorf("code redemption failed: %w", err)
	}
}

// buildRedirect appends parameters to a redirect URI, preserving any
// query the registered URI already carries.
func buildRedirect(redirectURI string, params url.Values) string {
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		// The URI was validated against the registration earlier; treat a
		// parse failure here as a plain query-string append.
		return redirectURI + "?" + params.Encode()
	}

	query := parsed.Query()
	for key, values := range params {
		for _, v := range values {
			query.Set(key, v)
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
