package server

import (
	"log/slog"
	"net/url"
)

// Config holds authorization server configuration
type Config struct {
	// Issuer is the server's issuer identifier (base URL)
	Issuer string

	// AuthorizationCodeTTL is how long authorization codes are valid
	AuthorizationCodeTTL int64 // seconds, default: 600 (10 minutes)

	// AccessTokenTTL is how long access tokens are valid
	AccessTokenTTL int64 // seconds, default: 3600 (1 hour)

	// RefreshTokenTTL is how long refresh tokens are valid
	RefreshTokenTTL int64 // seconds, default: 2592000 (30 days)

	// DefaultScope is applied when an authorization request omits scope
	DefaultScope string // default: "profile email"

	// SupportedScopes lists the scopes the server understands.
	// If empty, defaults to the scopes of DefaultScope.
	SupportedScopes []string

	// RequirePKCE forces a PKCE challenge from every client, including
	// confidential ones. Public clients must always present a challenge
	// regardless of this setting.
	RequirePKCE bool // default: false

	// LoginRateLimit is the per-IP rate (attempts per second) for the
	// login form when a rate limiter is attached
	LoginRateLimit int // default: 5

	// LoginRateBurst is the per-IP burst for login attempts
	LoginRateBurst int // default: 10

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool // default: false
}

// applySecureDefaults fills in zero values and warns about settings that
// weaken the deployment.
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	applyTimeDefaults(config)
	applyScopeDefaults(config)

	if config.LoginRateLimit == 0 {
		config.LoginRateLimit = 5
	}
	if config.LoginRateBurst == 0 {
		config.LoginRateBurst = 10
	}

	logConfigWarnings(config, logger)

	return config
}

// applyTimeDefaults sets default values for time-based configuration
func applyTimeDefaults(config *Config) {
	if config.AuthorizationCodeTTL == 0 {
		config.AuthorizationCodeTTL = 600 // 10 minutes
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = 3600 // 1 hour
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = 2592000 // 30 days
	}
}

// applyScopeDefaults sets the default scope vocabulary
func applyScopeDefaults(config *Config) {
	if config.DefaultScope == "" {
		config.DefaultScope = "profile email"
	}
	if len(config.SupportedScopes) == 0 {
		config.SupportedScopes = SplitScope(config.DefaultScope)
	}
}

// logConfigWarnings logs warnings for risky configuration settings
func logConfigWarnings(config *Config, logger *slog.Logger) {
	if config.AccessTokenTTL > 86400 {
		logger.Warn("Access token TTL exceeds 24 hours",
			"access_token_ttl_seconds", config.AccessTokenTTL,
			"recommendation", "Keep access tokens short-lived; clients hold a refresh token")
	}

	if config.TrustProxy {
		logger.Warn("Trusting proxy headers for client IP extraction",
			"risk", "IP spoofing if the proxy chain is not locked down",
			"recommendation", "Only enable behind a trusted reverse proxy")
	}

	if parsed, err := url.Parse(config.Issuer); err == nil && parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			logger.Warn("Issuer uses plain HTTP on a non-loopback host",
				"issuer", config.Issuer,
				"risk", "Codes, tokens, and credentials are exposed to interception",
				"recommendation", "Serve the authorization endpoints over HTTPS")
		}
	}
}
