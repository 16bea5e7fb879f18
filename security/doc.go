// Package security provides the cross-cutting security features of the
// authorization server: audit logging with PII hashing, per-identifier
// rate limiting, client IP extraction, request ID propagation, expiry
// helpers, and response security headers.
//
// # Rate limiting
//
// RateLimiter implements per-identifier token buckets (golang.org/x/time/rate)
// with LRU eviction so memory stays bounded under distributed attacks:
//
//	limiter := security.NewRateLimiter(5, 10, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(clientIP) {
//	    // reject the login attempt
//	}
//
// # Audit logging
//
// Auditor writes structured security events through slog. User IDs are
// hashed before logging so audit trails never carry raw PII.
package security
