package gatehouse

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gatehouse-auth/gatehouse/internal/testutil"
	"github.com/gatehouse-auth/gatehouse/server"
	"github.com/gatehouse-auth/gatehouse/session"
	"github.com/gatehouse-auth/gatehouse/storage"
	"github.com/gatehouse-auth/gatehouse/storage/memory"
)

const (
	testRedirectURI       = "https://app.example.com/callback"
	testPublicRedirectURI = "http://127.0.0.1:8910/callback"
)

type testEnv struct {
	mux     *http.ServeMux
	handler *Handler
	store   *memory.Store
	srv     *server.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	store := memory.NewWithCleanupInterval(0)
	t.Cleanup(store.Stop)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := server.New(store, store, store, store,
		&server.Config{Issuer: "https://auth.example.com"}, logger)
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, store.SeedUser(ctx, "user1", "pass1",
		"Alice Adams", "alice@example.com", "https://example.com/alice.png"))
	testutil.AssertNoError(t, store.SeedClient(ctx, "web-app", "s3cret",
		storage.ClientTypeConfidential, "Web App", "profile email", []string{testRedirectURI}))
	testutil.AssertNoError(t, store.SeedClient(ctx, "cli-tool", "",
		storage.ClientTypePublic, "CLI Tool", "", []string{testPublicRedirectURI}))

	handler, err := NewHandler(srv, session.NewManager(), logger)
	testutil.AssertNoError(t, err)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	return &testEnv{mux: mux, handler: handler, store: store, srv: srv}
}

func (env *testEnv) get(t *testing.T, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, r)
	return rec
}

func (env *testEnv) postForm(t *testing.T, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		r.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, r)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func locationParam(t *testing.T, rec *httptest.ResponseRecorder, key string) string {
	t.Helper()
	parsed, err := url.Parse(rec.Header().Get("Location"))
	testutil.AssertNoError(t, err)
	return parsed.Query().Get(key)
}

// authorizeParams builds a standard confidential-client authorize query
func authorizeParams(challenge string) url.Values {
	q := url.Values{
		"client_id":     {"web-app"},
		"redirect_uri":  {testRedirectURI},
		"response_type": {"code"},
		"scope":         {"profile email"},
		"state":         {"state-123"},
	}
	if challenge != "" {
		q.Set("code_challenge", challenge)
		q.Set("code_challenge_method", "S256")
	}
	return q
}

// obtainCode drives the front channel (authorize, login, consent) and
// returns the authorization code from the final redirect.
func (env *testEnv) obtainCode(t *testing.T, query url.Values) string {
	t.Helper()

	rec := env.get(t, "/authorize?"+query.Encode())
	testutil.AssertStatus(t, rec, http.StatusOK)
	cookie := sessionCookie(t, rec)

	rec = env.postForm(t, "/authorize", url.Values{
		"username": {"user1"},
		"password": {"pass1"},
	}, cookie)
	testutil.AssertStatus(t, rec, http.StatusOK)
	testutil.AssertStringContains(t, rec.Body.String(), "Approve")

	rec = env.postForm(t, "/consent", url.Values{"action": {"approve"}}, cookie)
	testutil.AssertStatus(t, rec, http.StatusFound)

	code := locationParam(t, rec, "code")
	testutil.AssertTrue(t, code != "", "consent redirect must carry a code")
	return code
}

func TestAuthorizationCodeFlowEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	challenge, verifier := testutil.GeneratePKCEPair()

	// Front channel
	rec := env.get(t, "/authorize?"+authorizeParams(challenge).Encode())
	testutil.AssertStatus(t, rec, http.StatusOK)
	testutil.AssertStringContains(t, rec.Body.String(), "Web App")
	testutil.AssertStringContains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'none'")
	cookie := sessionCookie(t, rec)

	rec = env.postForm(t, "/authorize", url.Values{
		"username": {"user1"},
		"password": {"pass1"},
	}, cookie)
	testutil.AssertStatus(t, rec, http.StatusOK)
	testutil.AssertStringContains(t, rec.Body.String(), "profile")

	rec = env.postForm(t, "/consent", url.Values{"action": {"approve"}}, cookie)
	testutil.AssertStatus(t, rec, http.StatusFound)
	testutil.AssertEqual(t, locationParam(t, rec, "state"), "state-123")
	code := locationParam(t, rec, "code")

	// Back channel
	rec = env.postForm(t, "/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"client_id":     {"web-app"},
		"client_secret": {"s3cret"},
		"code_verifier": {verifier},
	})
	testutil.AssertStatus(t, rec, http.StatusOK)
	testutil.AssertEqual(t, rec.Header().Get("Cache-Control"), "no-store")
	testutil.AssertEqual(t, rec.Header().Get("Pragma"), "no-cache")

	grant := decodeJSON[TokenResponse](t, rec)
	testutil.AssertEqual(t, grant.TokenType, "Bearer")
	testutil.AssertEqual(t, grant.ExpiresIn, int64(3600))
	testutil.AssertEqual(t, grant.Scope, "profile email")
	testutil.AssertTrue(t, grant.AccessToken != "", "response must carry an access token")
	testutil.AssertTrue(t, grant.RefreshToken != "", "response must carry a refresh token")

	// Userinfo
	r := httptest.NewRequest(http.MethodGet, "/userinfo", nil)
	r.Header.Set("Authorization", "Bearer "+grant.AccessToken)
	userRec := httptest.NewRecorder()
	env.mux.ServeHTTP(userRec, r)
	testutil.AssertStatus(t, userRec, http.StatusOK)

	claims := decodeJSON[UserInfoResponse](t, userRec)
	testutil.AssertEqual(t, claims.Sub, "user1")
	testutil.AssertEqual(t, claims.Name, "Alice Adams")
	testutil.AssertEqual(t, claims.Email, "alice@example.com")

	// Introspection
	rec = env.postForm(t, "/introspect", url.Values{"token": {grant.AccessToken}})
	testutil.AssertStatus(t, rec, http.StatusOK)
	intro := decodeJSON[IntrospectionResponse](t, rec)
	testutil.AssertTrue(t, intro.Active, "fresh token must introspect active")
	testutil.AssertEqual(t, intro.ClientID, "web-app")
	testutil.AssertEqual(t, intro.Username, "user1")

	// Replay of the consumed code
	rec = env.postForm(t, "/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"client_id":     {"web-app"},
		"client_secret": {"s3cret"},
		"code_verifier": {verifier},
	})
	testutil.AssertStatus(t, rec, http.StatusBadRequest)
	resp := decodeJSON[ErrorResponse](t, rec)
	testutil.AssertEqual(t, resp.Error, ErrorCodeInvalidGrant)
	testutil.AssertEqual(t, resp.ErrorDescription, "Invalid authorization code")
}

func TestPublicClientFlowEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	challenge, verifier := testutil.GeneratePKCEPair()

	query := url.Values{
		"client_id":             {"cli-tool"},
		"redirect_uri":          {testPublicRedirectURI},
		"response_type":         {"code"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}
	code := env.obtainCode(t, query)

	// No client_secret: public clients authenticate by PKCE alone.
	rec := env.postForm(t, "/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testPublicRedirectURI},
		"client_id":     {"cli-tool"},
		"code_verifier": {verifier},
	})
	testutil.AssertStatus(t, rec, http.StatusOK)

	grant := decodeJSON[TokenResponse](t, rec)
	testutil.AssertEqual(t, grant.Scope, "profile email")
}

func TestAuthorizeEndpointErrors(t *testing.T) {
	t.Run("UnknownClient", func(t *testing.T) {
		env := newTestEnv(t)
		q := authorizeParams("")
		q.Set("client_id", "ghost")
		rec := env.get(t, "/authorize?"+q.Encode())
		testutil.AssertStatus(t, rec, http.StatusUnauthorized)

		resp := decodeJSON[ErrorResponse](t, rec)
		testutil.AssertEqual(t, resp.Error, ErrorCodeInvalidClient)
		testutil.AssertEqual(t, resp.ErrorDescription, "Unknown client")
	})

	t.Run("UnregisteredRedirect", func(t *testing.T) {
		env := newTestEnv(t)
		q := authorizeParams("")
		q.Set("redirect_uri", "https://evil.example.com/callback")
		rec := env.get(t, "/authorize?"+q.Encode())
		testutil.AssertStatus(t, rec, http.StatusBadRequest)

		resp := decodeJSON[ErrorResponse](t, rec)
		testutil.AssertEqual(t, resp.ErrorDescription, "Invalid redirect_uri")
	})

	t.Run("PublicClientWithoutPKCE", func(t *testing.T) {
		env := newTestEnv(t)
		q := url.Values{
			"client_id":    {"cli-tool"},
			"redirect_uri": {testPublicRedirectURI},
		}
		rec := env.get(t, "/authorize?"+q.Encode())
		testutil.AssertStatus(t, rec, http.StatusBadRequest)

		resp := decodeJSON[ErrorResponse](t, rec)
		testutil.AssertStringContains(t, resp.ErrorDescription, "PKCE is required")
	})

	t.Run("LoginWithoutSession", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.postForm(t, "/authorize", url.Values{
			"username": {"user1"},
			"password": {"pass1"},
		})
		testutil.AssertStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("MethodNotAllowed", func(t *testing.T) {
		env := newTestEnv(t)
		r := httptest.NewRequest(http.MethodDelete, "/authorize", nil)
		rec := httptest.NewRecorder()
		env.mux.ServeHTTP(rec, r)
		testutil.AssertStatus(t, rec, http.StatusMethodNotAllowed)
	})
}

func TestLoginRetryAfterWrongPassword(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/authorize?"+authorizeParams("").Encode())
	cookie := sessionCookie(t, rec)

	rec = env.postForm(t, "/authorize", url.Values{
		"username": {"user1"},
		"password": {"wrong"},
	}, cookie)
	testutil.AssertStatus(t, rec, http.StatusUnauthorized)
	testutil.AssertStringContains(t, rec.Body.String(), "Invalid username or password")

	// The session survives a failed login; retrying with the right
	// password reaches the consent page.
	rec = env.postForm(t, "/authorize", url.Values{
		"username": {"user1"},
		"password": {"pass1"},
	}, cookie)
	testutil.AssertStatus(t, rec, http.StatusOK)
	testutil.AssertStringContains(t, rec.Body.String(), "Approve")
}

func TestConsentDeny(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/authorize?"+authorizeParams("").Encode())
	cookie := sessionCookie(t, rec)

	rec = env.postForm(t, "/authorize", url.Values{
		"username": {"user1"},
		"password": {"pass1"},
	}, cookie)
	testutil.AssertStatus(t, rec, http.StatusOK)

	rec = env.postForm(t, "/consent", url.Values{"action": {"deny"}}, cookie)
	testutil.AssertStatus(t, rec, http.StatusFound)
	testutil.AssertEqual(t, locationParam(t, rec, "error"), ErrorCodeAccessDenied)
	testutil.AssertEqual(t, locationParam(t, rec, "error_description"), "User denied access")
	testutil.AssertEqual(t, locationParam(t, rec, "state"), "state-123")
	testutil.AssertEqual(t, locationParam(t, rec, "code"), "")

	// The session is one-shot; replaying the consent form fails.
	rec = env.postForm(t, "/consent", url.Values{"action": {"approve"}}, cookie)
	testutil.AssertStatus(t, rec, http.StatusBadRequest)
}

func TestConsentBeforeLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/authorize?"+authorizeParams("").Encode())
	cookie := sessionCookie(t, rec)

	// Skipping the login step must not mint a code.
	rec = env.postForm(t, "/consent", url.Values{"action": {"approve"}}, cookie)
	testutil.AssertStatus(t, rec, http.StatusBadRequest)
}

func TestTokenEndpointErrors(t *testing.T) {
	t.Run("WrongGrantType", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.postForm(t, "/token", url.Values{
			"grant_type": {"client_credentials"},
		})
		testutil.AssertStatus(t, rec, http.StatusBadRequest)
		resp := decodeJSON[ErrorResponse](t, rec)
		testutil.AssertEqual(t, resp.Error, ErrorCodeUnsupportedGrantType)
	})

	t.Run("MissingParameters", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.postForm(t, "/token", url.Values{
			"grant_type": {"authorization_code"},
			"code":       {"some-code"},
		})
		testutil.AssertStatus(t, rec, http.StatusBadRequest)
		resp := decodeJSON[ErrorResponse](t, rec)
		testutil.AssertEqual(t, resp.Error, ErrorCodeInvalidRequest)
	})

	t.Run("GetNotAllowed", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.get(t, "/token")
		testutil.AssertStatus(t, rec, http.StatusMethodNotAllowed)
	})

	t.Run("ExpiredCode", func(t *testing.T) {
		env := newTestEnv(t)
		code := testutil.NewTestAuthorizationCode()
		code.ClientID = "web-app"
		code.RedirectURI = testRedirectURI
		code.ExpiresAt = time.Now().Add(-1 * time.Second)
		testutil.AssertNoError(t, env.store.SaveAuthorizationCode(context.Background(), code))

		rec := env.postForm(t, "/token", url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {code.Code},
			"redirect_uri":  {testRedirectURI},
			"client_id":     {"web-app"},
			"client_secret": {"s3cret"},
		})
		testutil.AssertStatus(t, rec, http.StatusBadRequest)
		resp := decodeJSON[ErrorResponse](t, rec)
		testutil.AssertEqual(t, resp.ErrorDescription, "Authorization code expired")
	})
}

func TestTokenEndpointClientAuthentication(t *testing.T) {
	t.Run("WrongSecretDoesNotBurnCode", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.obtainCode(t, authorizeParams(""))

		rec := env.postForm(t, "/token", url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {code},
			"redirect_uri":  {testRedirectURI},
			"client_id":     {"web-app"},
			"client_secret": {"wrong"},
		})
		testutil.AssertStatus(t, rec, http.StatusUnauthorized)
		testutil.AssertStringContains(t, rec.Header().Get("WWW-Authenticate"), ErrorCodeInvalidClient)
		resp := decodeJSON[ErrorResponse](t, rec)
		testutil.AssertEqual(t, resp.ErrorDescription, "Invalid client credentials")

		// The code survived the failed authentication.
		rec = env.postForm(t, "/token", url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {code},
			"redirect_uri":  {testRedirectURI},
			"client_id":     {"web-app"},
			"client_secret": {"s3cret"},
		})
		testutil.AssertStatus(t, rec, http.StatusOK)
	})

	t.Run("MissingSecret", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.obtainCode(t, authorizeParams(""))

		rec := env.postForm(t, "/token", url.Values{
			"grant_type":   {"authorization_code"},
			"code":         {code},
			"redirect_uri": {testRedirectURI},
			"client_id":    {"web-app"},
		})
		testutil.AssertStatus(t, rec, http.StatusUnauthorized)
	})

	t.Run("BasicAuth", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.obtainCode(t, authorizeParams(""))

		form := url.Values{
			"grant_type":   {"authorization_code"},
			"code":         {code},
			"redirect_uri": {testRedirectURI},
		}
		r := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		r.SetBasicAuth("web-app", "s3cret")
		rec := httptest.NewRecorder()
		env.mux.ServeHTTP(rec, r)

		testutil.AssertStatus(t, rec, http.StatusOK)
	})
}

func TestUserInfoEndpoint(t *testing.T) {
	issue := func(t *testing.T, env *testEnv, scope string) string {
		t.Helper()
		tok := testutil.NewTestToken()
		tok.UserID = "user1"
		tok.Scope = scope
		testutil.AssertNoError(t, env.store.SaveAccessToken(context.Background(), tok))
		return tok.Token
	}

	get := func(env *testEnv, token string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/userinfo", nil)
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		env.mux.ServeHTTP(rec, r)
		return rec
	}

	t.Run("MissingToken", func(t *testing.T) {
		env := newTestEnv(t)
		rec := get(env, "")
		testutil.AssertStatus(t, rec, http.StatusUnauthorized)
		testutil.AssertStringContains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
	})

	t.Run("UnknownToken", func(t *testing.T) {
		env := newTestEnv(t)
		rec := get(env, "no-such-token")
		testutil.AssertStatus(t, rec, http.StatusUnauthorized)
		resp := decodeJSON[ErrorResponse](t, rec)
		testutil.AssertEqual(t, resp.ErrorDescription, "Invalid token")
	})

	t.Run("ScopeFiltering", func(t *testing.T) {
		env := newTestEnv(t)
		rec := get(env, issue(t, env, "profile"))
		testutil.AssertStatus(t, rec, http.StatusOK)

		claims := decodeJSON[UserInfoResponse](t, rec)
		testutil.AssertEqual(t, claims.Sub, "user1")
		testutil.AssertEqual(t, claims.Name, "Alice Adams")
		testutil.AssertEqual(t, claims.Email, "")

		// The JSON must omit ungranted fields entirely.
		testutil.AssertFalse(t, strings.Contains(rec.Body.String(), "email"),
			"ungranted email field must be omitted")
	})
}

func TestIntrospectEndpoint(t *testing.T) {
	t.Run("MissingToken", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.postForm(t, "/introspect", url.Values{})
		testutil.AssertStatus(t, rec, http.StatusBadRequest)

		intro := decodeJSON[IntrospectionResponse](t, rec)
		testutil.AssertFalse(t, intro.Active, "missing token is not active")
	})

	t.Run("UnknownToken", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.postForm(t, "/introspect", url.Values{"token": {"no-such-token"}})
		testutil.AssertStatus(t, rec, http.StatusOK)

		intro := decodeJSON[IntrospectionResponse](t, rec)
		testutil.AssertFalse(t, intro.Active, "unknown token is not active")
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		env := newTestEnv(t)
		tok := testutil.NewTestToken()
		tok.ExpiresAt = time.Now().Add(-1 * time.Second)
		testutil.AssertNoError(t, env.store.SaveAccessToken(context.Background(), tok))

		rec := env.postForm(t, "/introspect", url.Values{"token": {tok.Token}})
		testutil.AssertStatus(t, rec, http.StatusOK)

		intro := decodeJSON[IntrospectionResponse](t, rec)
		testutil.AssertFalse(t, intro.Active, "expired token is not active")
	})
}

func TestRequireScopes(t *testing.T) {
	setup := func(t *testing.T, scopes ...string) (*testEnv, *http.ServeMux) {
		env := newTestEnv(t)
		mux := http.NewServeMux()
		mux.Handle("/api/orders", env.handler.RequireScopes(scopes...)(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				rec, ok := TokenFromContext(r.Context())
				if !ok {
					http.Error(w, "no token in context", http.StatusInternalServerError)
					return
				}
				w.Write([]byte(rec.UserID))
			})))
		return env, mux
	}

	issue := func(t *testing.T, env *testEnv, scope string) string {
		t.Helper()
		tok := testutil.NewTestToken()
		tok.UserID = "user1"
		tok.Scope = scope
		testutil.AssertNoError(t, env.store.SaveAccessToken(context.Background(), tok))
		return tok.Token
	}

	call := func(mux *http.ServeMux, token string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, r)
		return rec
	}

	t.Run("MissingToken", func(t *testing.T) {
		_, mux := setup(t, "email")
		rec := call(mux, "")
		testutil.AssertStatus(t, rec, http.StatusUnauthorized)
		testutil.AssertStringContains(t, rec.Header().Get("WWW-Authenticate"), ErrorCodeInvalidToken)
	})

	t.Run("InsufficientScope", func(t *testing.T) {
		env, mux := setup(t, "email")
		rec := call(mux, issue(t, env, "profile"))
		testutil.AssertStatus(t, rec, http.StatusForbidden)

		resp := decodeJSON[ErrorResponse](t, rec)
		testutil.AssertEqual(t, resp.Error, ErrorCodeInsufficientScope)
	})

	t.Run("AnyOfRequiredScopes", func(t *testing.T) {
		env, mux := setup(t, "admin", "email")
		rec := call(mux, issue(t, env, "email"))
		testutil.AssertStatus(t, rec, http.StatusOK)
		testutil.AssertEqual(t, rec.Body.String(), "user1")
	})

	t.Run("NoScopesRequired", func(t *testing.T) {
		env, mux := setup(t)
		rec := call(mux, issue(t, env, ""))
		testutil.AssertStatus(t, rec, http.StatusOK)
	})
}
