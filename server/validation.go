package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gatehouse-auth/gatehouse/storage"
)

// PKCE constants (RFC 7636)
const (
	MinCodeVerifierLength = 43
	MaxCodeVerifierLength = 128
	PKCEMethodS256        = "S256"
	PKCEMethodPlain       = "plain"
)

// validateRedirectURI checks that the redirect URI is registered for the
// client. Matching is byte-for-byte; prefix or pattern matching would let
// an attacker smuggle codes to a URI that merely starts like a registered
// one.
func validateRedirectURI(client *storage.Client, redirectURI string) error {
	for _, uri := range client.RedirectURIs {
		if uri == redirectURI {
			return nil
		}
	}
	return fmt.Errorf("redirect URI not registered for client")
}

// validateChallengeMethod checks the code_challenge_method presented at
// the authorization endpoint
func validateChallengeMethod(method string) error {
	switch method {
	case PKCEMethodS256, PKCEMethodPlain:
		return nil
	default:
		return fmt.Errorf("unsupported code_challenge_method: %s (supported: S256, plain)", method)
	}
}

// validatePKCE verifies a code verifier against the challenge recorded at
// authorization time, per RFC 7636. Verification fails closed: an unknown
// method is a failure, never a bypass.
func validatePKCE(challenge, method, verifier string) error {
	if len(verifier) < MinCodeVerifierLength {
		return fmt.Errorf("code_verifier must be at least %d characters (RFC 7636)", MinCodeVerifierLength)
	}
	if len(verifier) > MaxCodeVerifierLength {
		return fmt.Errorf("code_verifier must be at most %d characters (RFC 7636)", MaxCodeVerifierLength)
	}

	// RFC 7636: verifier charset is [A-Za-z0-9-._~]
	for _, ch := range verifier {
		isValid := (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') ||
			ch == '-' || ch == '.' || ch == '_' || ch == '~'
		if !isValid {
			return fmt.Errorf("code_verifier contains invalid characters (must be [A-Za-z0-9-._~])")
		}
	}

	var computedChallenge string
	switch method {
	case PKCEMethodS256:
		hash := sha256.Sum256([]byte(verifier))
		computedChallenge = base64.RawURLEncoding.EncodeToString(hash[:])
	case PKCEMethodPlain:
		computedChallenge = verifier
	default:
		return fmt.Errorf("unsupported code_challenge_method: %s", method)
	}

	if subtle.ConstantTimeCompare([]byte(computedChallenge), []byte(challenge)) != 1 {
		return fmt.Errorf("code_verifier does not match code_challenge")
	}

	return nil
}

// validateScopes checks requested scopes against the server's vocabulary
func (s *Server) validateScopes(scope string) error {
	if len(s.Config.SupportedScopes) == 0 || scope == "" {
		return nil
	}

	for _, reqScope := range SplitScope(scope) {
		if !containsScope(s.Config.SupportedScopes, reqScope) {
			return fmt.Errorf("unsupported scope: %s", reqScope)
		}
	}

	return nil
}

// validateClientScopes checks requested scopes against the client's
// registered scope set. A client registered without scopes may request
// anything the server supports.
func validateClientScopes(requestedScope string, client *storage.Client) error {
	allowed := SplitScope(client.Scope)
	if len(allowed) == 0 || requestedScope == "" {
		return nil
	}

	for _, reqScope := range SplitScope(requestedScope) {
		if !containsScope(allowed, reqScope) {
			// Generic on purpose: naming the offending scope would let
			// clients enumerate each other's registrations.
			return fmt.Errorf("client is not authorized for one or more requested scopes")
		}
	}

	return nil
}

// HasAnyScope reports whether the granted scope set intersects the
// required set. Resource gating is OR-of-scopes: holding any one of the
// required scopes is enough.
func HasAnyScope(grantedScope string, required ...string) bool {
	granted := SplitScope(grantedScope)
	for _, req := range required {
		if containsScope(granted, req) {
			return true
		}
	}
	return false
}

// HasScope reports whether a single scope was granted
func HasScope(grantedScope, scope string) bool {
	return containsScope(SplitScope(grantedScope), scope)
}

// SplitScope splits a space-separated scope string into its values
func SplitScope(scope string) []string {
	return strings.Fields(scope)
}

func containsScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}
