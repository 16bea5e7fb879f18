package server

import (
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/gatehouse-auth/gatehouse/instrumentation"
	"github.com/gatehouse-auth/gatehouse/security"
	"github.com/gatehouse-auth/gatehouse/storage"
)

// safeTruncate truncates a string to maxLen characters without panicking.
// Used to log token and code prefixes; full values never reach the logs.
func safeTruncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// Server implements the authorization server logic over the four store
// interfaces. It is transport-agnostic; the HTTP surface lives in the
// root gatehouse package.
type Server struct {
	users   storage.UserStore
	clients storage.ClientStore
	codes   storage.CodeStore
	tokens  storage.TokenStore

	Auditor      *security.Auditor
	LoginLimiter *security.RateLimiter // per-IP limiter for login attempts
	Logger       *slog.Logger
	Config       *Config

	metrics *instrumentation.Metrics
}

// New creates a new authorization server
func New(
	users storage.UserStore,
	clients storage.ClientStore,
	codes storage.CodeStore,
	tokens storage.TokenStore,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if clients == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if codes == nil {
		return nil, fmt.Errorf("code store is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)

	return &Server{
		users:   users,
		clients: clients,
		codes:   codes,
		tokens:  tokens,
		Config:  config,
		Logger:  logger,
	}, nil
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetLoginRateLimiter sets the per-IP rate limiter for login attempts
func (s *Server) SetLoginRateLimiter(rl *security.RateLimiter) {
	s.LoginLimiter = rl
}

// SetInstrumentation wires flow metrics into the given instrumentation instance
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst != nil {
		s.metrics = inst.Metrics()
	}
}

// generateOpaqueToken generates a cryptographically secure random token.
// oauth2.GenerateVerifier produces a URL-safe base64 string carrying 256
// bits of entropy, which serves codes, access tokens, and refresh tokens
// alike.
func generateOpaqueToken() string {
	return oauth2.GenerateVerifier()
}
