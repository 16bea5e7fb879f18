// Package gatehouse is an embeddable OAuth 2.0 authorization server
// implementing the authorization code flow with PKCE. It issues opaque,
// single-use authorization codes and opaque bearer tokens backed by
// pluggable stores, and exposes the protocol over net/http handlers.
package gatehouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/gatehouse-auth/gatehouse/instrumentation"
	"github.com/gatehouse-auth/gatehouse/security"
	"github.com/gatehouse-auth/gatehouse/server"
	"github.com/gatehouse-auth/gatehouse/session"
	"github.com/gatehouse-auth/gatehouse/storage"
)

// Handler is the HTTP adapter over the authorization server. It owns
// request parsing, session plumbing, and response encoding; all protocol
// decisions live in the server package.
type Handler struct {
	srv      *server.Server
	sessions *session.Manager
	logger   *slog.Logger

	metrics *instrumentation.Metrics
	tracer  trace.Tracer
}

// NewHandler creates an HTTP handler over the given authorization server
func NewHandler(srv *server.Server, sessions *session.Manager, logger *slog.Logger) (*Handler, error) {
	if srv == nil {
		return nil, fmt.Errorf("server is required")
	}
	if sessions == nil {
		sessions = session.NewManager()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		srv:      srv,
		sessions: sessions,
		logger:   logger,
	}, nil
}

// SetInstrumentation wires HTTP metrics and tracing into the handler
func (h *Handler) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst != nil {
		h.metrics = inst.Metrics()
		h.tracer = inst.Tracer("http")
	}
}

// RegisterRoutes mounts the protocol endpoints on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/authorize", h.instrumented("/authorize", http.HandlerFunc(h.ServeAuthorize)))
	mux.Handle("/consent", h.instrumented("/consent", http.HandlerFunc(h.ServeConsent)))
	mux.Handle("/token", h.instrumented("/token", http.HandlerFunc(h.ServeToken)))
	mux.Handle("/userinfo", h.instrumented("/userinfo", http.HandlerFunc(h.ServeUserInfo)))
	mux.Handle("/introspect", h.instrumented("/introspect", http.HandlerFunc(h.ServeIntrospection)))
}

// ==================== /authorize ====================

// ServeAuthorize handles the authorization endpoint. GET validates the
// request and renders the login page; POST processes the login form.
func (h *Handler) ServeAuthorize(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.beginAuthorize(w, r)
	case http.MethodPost:
		h.handleLogin(w, r)
	default:
		h.writeError(w, NewError(ErrorCodeInvalidRequest, "Method not allowed", http.StatusMethodNotAllowed))
	}
}

// beginAuthorize validates the authorization request, opens a session
// carrying the pending request, and renders the login page. Validation
// failures are returned directly to the caller; no session is created
// for a request that does not check out.
func (h *Handler) beginAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req, err := h.srv.BeginAuthorization(r.Context(), server.AuthorizationParams{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		ResponseType:        q.Get("response_type"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		ClientIP:            h.clientIP(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.sessions.Begin(w, req)
	h.renderLoginPage(w, req, "", http.StatusOK)
}

// handleLogin authenticates the resource owner against the pending
// request in the session. Failed logins re-render the login page; a
// success moves on to consent.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := h.sessions.Lookup(r)
	if !ok {
		h.writeError(w, ErrInvalidRequest("Unknown or expired authorization session"))
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrInvalidRequest("Malformed form body"))
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	err := h.srv.AuthenticateUser(r.Context(), req, username, password, h.clientIP(r))
	switch {
	case err == nil:
		h.renderConsentPage(w, req)
	case errors.Is(err, server.ErrTooManyLoginAttempts):
		h.renderLoginPage(w, req, "Too many login attempts. Try again later.", http.StatusTooManyRequests)
	default:
		h.renderLoginPage(w, req, "Invalid username or password.", http.StatusUnauthorized)
	}
}

// ==================== /consent ====================

// ServeConsent finalizes the authorization. The session is one-shot and
// ends here regardless of the decision; approve mints a code, anything
// else reports access_denied, both via redirect to the client.
func (h *Handler) ServeConsent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, NewError(ErrorCodeInvalidRequest, "Method not allowed", http.StatusMethodNotAllowed))
		return
	}

	req, ok := h.sessions.Lookup(r)
	if !ok {
		h.writeError(w, ErrInvalidRequest("Unknown or expired authorization session"))
		return
	}
	h.sessions.End(w, r)

	if !req.Authenticated() {
		h.writeError(w, ErrInvalidRequest("Login required before consent"))
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrInvalidRequest("Malformed form body"))
		return
	}

	if r.PostFormValue("action") != ConsentActionApprove {
		location := h.srv.DenyAuthorization(r.Context(), req, h.clientIP(r))
		http.Redirect(w, r, location, http.StatusFound)
		return
	}

	location, err := h.srv.ApproveAuthorization(r.Context(), req, h.clientIP(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	http.Redirect(w, r, location, http.StatusFound)
}

// ==================== /token ====================

// ServeToken handles the token endpoint. The client is authenticated
// BEFORE the code ledger is touched, so presenting a wrong client secret
// never burns the authorization code.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, NewError(ErrorCodeInvalidRequest, "Method not allowed", http.StatusMethodNotAllowed))
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrInvalidRequest("Malformed form body"))
		return
	}

	grantType := r.PostFormValue("grant_type")
	if grantType != GrantTypeAuthorizationCode {
		h.writeError(w, ErrUnsupportedGrantType("Only authorization_code is supported"))
		return
	}

	clientID, clientSecret := h.clientCredentials(r)
	code := r.PostFormValue("code")
	redirectURI := r.PostFormValue("redirect_uri")

	if code == "" || redirectURI == "" || clientID == "" {
		h.writeError(w, ErrInvalidRequest("Missing required parameters: code, redirect_uri, client_id"))
		return
	}

	if _, err := h.srv.AuthenticateClient(r.Context(), clientID, clientSecret, h.clientIP(r)); err != nil {
		h.writeError(w, err)
		return
	}

	grant, err := h.srv.ExchangeAuthorizationCode(
		r.Context(), code, clientID, redirectURI, r.PostFormValue("code_verifier"), h.clientIP(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeTokenResponse(w, grant)
}

// clientCredentials extracts client authentication from HTTP Basic auth,
// falling back to form parameters (RFC 6749 §2.3.1 allows both).
func (h *Handler) clientCredentials(r *http.Request) (clientID, clientSecret string) {
	if id, secret, ok := r.BasicAuth(); ok {
		return id, secret
	}
	return r.PostFormValue("client_id"), r.PostFormValue("client_secret")
}

// ==================== /userinfo ====================

// ServeUserInfo returns the claims for the presented bearer token,
// filtered by the token's granted scope. sub is always present.
func (h *Handler) ServeUserInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, NewError(ErrorCodeInvalidRequest, "Method not allowed", http.StatusMethodNotAllowed))
		return
	}

	token := bearerToken(r)
	if token == "" {
		h.writeError(w, ErrInvalidToken("Missing bearer token"))
		return
	}

	claims, err := h.srv.UserInfo(r.Context(), token)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, UserInfoResponse{
		Sub:          claims.Subject,
		Name:         claims.Name,
		Email:        claims.Email,
		ProfileImage: claims.ProfileImage,
	})
}

// ==================== /introspect ====================

// ServeIntrospection reports token state per RFC 7662. Unknown and
// expired tokens answer {"active": false} with 200; only a missing token
// parameter is a client error.
func (h *Handler) ServeIntrospection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, NewError(ErrorCodeInvalidRequest, "Method not allowed", http.StatusMethodNotAllowed))
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrInvalidRequest("Malformed form body"))
		return
	}

	token := r.PostFormValue("token")
	if token == "" {
		h.writeJSON(w, http.StatusBadRequest, IntrospectionResponse{Active: false})
		return
	}

	intro := h.srv.IntrospectToken(r.Context(), token)
	h.writeJSON(w, http.StatusOK, IntrospectionResponse{
		Active:   intro.Active,
		Scope:    intro.Scope,
		ClientID: intro.ClientID,
		Username: intro.Username,
		Exp:      intro.ExpiresAt,
	})
}

// ==================== Scope middleware ====================

// tokenContextKey is the context key for the validated token record
type tokenContextKey struct{}

// TokenFromContext returns the token record injected by RequireScopes
func TokenFromContext(ctx context.Context) (*storage.Token, bool) {
	rec, ok := ctx.Value(tokenContextKey{}).(*storage.Token)
	return rec, ok
}

// RequireScopes gates a resource handler behind bearer token validation
// and scope checking. The grant must hold AT LEAST ONE of the required
// scopes. A missing or dead token answers 401 invalid_token; a live token
// without the scopes answers 403 insufficient_scope. The validated token
// record is placed on the request context for the wrapped handler.
func (h *Handler) RequireScopes(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				h.writeError(w, ErrInvalidToken("Missing bearer token"))
				return
			}

			rec, err := h.srv.VerifyAccessToken(r.Context(), token)
			if err != nil {
				h.writeError(w, err)
				return
			}

			if len(scopes) > 0 && !server.HasAnyScope(rec.Scope, scopes...) {
				h.writeError(w, ErrInsufficientScope("Token does not carry a required scope"))
				return
			}

			ctx := context.WithValue(r.Context(), tokenContextKey{}, rec)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an Authorization: Bearer header
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// ==================== Response encoding ====================

// writeTokenResponse writes a successful token exchange. Token responses
// must never be cached (RFC 6749 §5.1).
func (h *Handler) writeTokenResponse(w http.ResponseWriter, grant *server.TokenGrant) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	h.writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  grant.AccessToken,
		TokenType:    grant.TokenType,
		ExpiresIn:    grant.ExpiresIn,
		RefreshToken: grant.RefreshToken,
		Scope:        grant.Scope,
	})
}

// writeError writes an OAuth error response. 401 responses carry a
// WWW-Authenticate challenge per RFC 6750 §3.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	oe, ok := AsError(err)
	if !ok {
		h.logger.Error("Internal error serving OAuth request", "error", err)
		oe = ErrServerError("Internal server error")
	}

	if oe.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate",
			fmt.Sprintf("Bearer error=%q, error_description=%q", oe.Code, oe.Description))
	}

	h.writeJSON(w, oe.Status, ErrorResponse{
		Error:            oe.Code,
		ErrorDescription: oe.Description,
	})
}

// writeJSON encodes v as the response body with the given status
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

// clientIP extracts the caller's IP for auditing and rate limiting
func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.srv.Config.TrustProxy)
}

// ==================== HTTP instrumentation ====================

// statusWriter captures the response status for metrics
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

// instrumented wraps an endpoint with security headers, tracing, and
// HTTP metrics.
func (h *Handler) instrumented(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		security.SetSecurityHeaders(w, h.srv.Config.Issuer)

		ctx := r.Context()
		var span trace.Span
		if h.tracer != nil {
			ctx, span = h.tracer.Start(ctx, "http "+endpoint)
			defer span.End()
		}

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		if span != nil {
			instrumentation.AddHTTPAttributes(span, r.Method, endpoint, sw.status)
		}
		if h.metrics != nil {
			attrs := metric.WithAttributes(
				attribute.String(instrumentation.AttrHTTPEndpoint, endpoint),
				attribute.String(instrumentation.AttrHTTPMethod, r.Method),
				attribute.Int(instrumentation.AttrHTTPStatusCode, sw.status),
			)
			h.metrics.HTTPRequestsTotal.Add(ctx, 1, attrs)
			h.metrics.HTTPRequestDuration.Record(ctx, float64(time.Since(start).Microseconds())/1000.0, attrs)
		}
	})
}
