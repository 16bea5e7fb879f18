package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gatehouse-auth/gatehouse/internal/testutil"
	"github.com/gatehouse-auth/gatehouse/storage"
)

func testRequest() *storage.AuthorizationRequest {
	return &storage.AuthorizationRequest{
		ClientID:    "web-app",
		RedirectURI: "https://app.example.com/callback",
		Scope:       "profile email",
		State:       "xyz",
		CreatedAt:   time.Now(),
	}
}

// sessionCookie extracts the session cookie set on a recorded response
func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestBeginAndLookup(t *testing.T) {
	m := NewManager()
	rec := httptest.NewRecorder()

	handle := m.Begin(rec, testRequest())
	testutil.AssertTrue(t, handle != "", "Begin must return a handle")

	cookie := sessionCookie(t, rec)
	testutil.AssertEqual(t, cookie.Value, handle)
	testutil.AssertTrue(t, cookie.HttpOnly, "session cookie must be HttpOnly")
	testutil.AssertEqual(t, cookie.SameSite, http.SameSiteLaxMode)

	r := httptest.NewRequest(http.MethodPost, "/authorize", nil)
	r.AddCookie(cookie)

	req, ok := m.Lookup(r)
	testutil.AssertTrue(t, ok, "lookup must find the fresh session")
	testutil.AssertEqual(t, req.ClientID, "web-app")
	testutil.AssertEqual(t, req.State, "xyz")
}

func TestLookupWithoutCookie(t *testing.T) {
	m := NewManager()
	r := httptest.NewRequest(http.MethodPost, "/authorize", nil)

	_, ok := m.Lookup(r)
	testutil.AssertFalse(t, ok, "lookup without a cookie must miss")
}

func TestLookupUnknownHandle(t *testing.T) {
	m := NewManager()
	r := httptest.NewRequest(http.MethodPost, "/authorize", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "no-such-handle"})

	_, ok := m.Lookup(r)
	testutil.AssertFalse(t, ok, "lookup of an unknown handle must miss")
}

func TestLookupExpired(t *testing.T) {
	m := NewManagerWithTTL(1 * time.Nanosecond)
	rec := httptest.NewRecorder()
	m.Begin(rec, testRequest())

	time.Sleep(time.Millisecond)

	r := httptest.NewRequest(http.MethodPost, "/authorize", nil)
	r.AddCookie(sessionCookie(t, rec))

	_, ok := m.Lookup(r)
	testutil.AssertFalse(t, ok, "expired session must miss")
	testutil.AssertEqual(t, m.Len(), 0)
}

func TestEnd(t *testing.T) {
	m := NewManager()
	rec := httptest.NewRecorder()
	m.Begin(rec, testRequest())
	cookie := sessionCookie(t, rec)

	r := httptest.NewRequest(http.MethodPost, "/consent", nil)
	r.AddCookie(cookie)

	endRec := httptest.NewRecorder()
	m.End(endRec, r)

	testutil.AssertEqual(t, m.Len(), 0)

	expired := sessionCookie(t, endRec)
	testutil.AssertEqual(t, expired.Value, "")
	testutil.AssertEqual(t, expired.MaxAge, -1)

	_, ok := m.Lookup(r)
	testutil.AssertFalse(t, ok, "ended session must miss")
}

func TestEachBeginGetsFreshHandle(t *testing.T) {
	m := NewManager()

	rec1 := httptest.NewRecorder()
	rec2 := httptest.NewRecorder()
	h1 := m.Begin(rec1, testRequest())
	h2 := m.Begin(rec2, testRequest())

	testutil.AssertNotEqual(t, h1, h2)
	testutil.AssertEqual(t, m.Len(), 2)
}

func TestCleanup(t *testing.T) {
	m := NewManagerWithTTL(1 * time.Nanosecond)
	m.Begin(httptest.NewRecorder(), testRequest())
	m.Begin(httptest.NewRecorder(), testRequest())

	time.Sleep(time.Millisecond)
	m.Cleanup()

	testutil.AssertEqual(t, m.Len(), 0)
}
