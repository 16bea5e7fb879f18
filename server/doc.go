// Package server implements the core authorization server logic.
//
// The Server type orchestrates the OAuth 2.0 authorization code flow with
// PKCE over the storage interfaces: it validates authorization requests,
// authenticates resource owners, issues and redeems single-use
// authorization codes, and mints and validates opaque access and refresh
// tokens. The HTTP surface lives in the root gatehouse package; this
// package is transport-agnostic.
//
// Key properties:
//   - Authorization codes are single use; redemption burns the code even
//     when validation fails afterwards
//   - Public clients must present a PKCE challenge and are never asked
//     for a secret; confidential clients authenticate on every exchange
//   - Redirect URIs are matched byte-for-byte against the registration
//   - Tokens are opaque random strings, never structured or signed
//
// Example usage:
//
//	store := memory.New()
//
//	config := &server.Config{
//	    Issuer: "https://auth.example.com",
//	}
//
//	srv, err := server.New(store, store, store, store, config, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
package server
