// Package session manages the short-lived browser sessions that carry a
// pending authorization request between the authorize, login, and consent
// steps. A session is an explicit value keyed by an opaque handle; the
// handle travels in an HttpOnly cookie, the request itself never leaves
// the server.
package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse-auth/gatehouse/storage"
)

const (
	// CookieName is the session cookie set on the authorize endpoint
	CookieName = "gatehouse_session"

	// DefaultTTL bounds how long a login/consent interaction may take
	DefaultTTL = 15 * time.Minute
)

type entry struct {
	request   *storage.AuthorizationRequest
	expiresAt time.Time
}

// Manager holds pending authorization requests in memory, keyed by an
// opaque session handle. All operations are safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration

	// Secure controls the Secure flag on session cookies. Enable when
	// serving over HTTPS.
	Secure bool
}

// NewManager creates a session manager with the default TTL
func NewManager() *Manager {
	return NewManagerWithTTL(DefaultTTL)
}

// NewManagerWithTTL creates a session manager with a custom TTL
func NewManagerWithTTL(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		entries: make(map[string]*entry),
		ttl:     ttl,
	}
}

// Begin stores the pending request under a fresh handle and sets the
// session cookie on the response. Any session the browser already held
// is replaced, not reused: each authorization request gets its own handle.
func (m *Manager) Begin(w http.ResponseWriter, req *storage.AuthorizationRequest) string {
	handle := uuid.NewString()
	expiresAt := time.Now().Add(m.ttl)

	m.mu.Lock()
	m.entries[handle] = &entry{request: req, expiresAt: expiresAt}
	m.mu.Unlock()

	http.SetCookie(w, m.buildCookie(handle, expiresAt))
	return handle
}

// Lookup returns the pending request for the session cookie on r.
// Expired sessions are removed during the lookup that discovers them.
func (m *Manager) Lookup(r *http.Request) (*storage.AuthorizationRequest, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[cookie.Value]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(m.entries, cookie.Value)
		return nil, false
	}
	return e.request, true
}

// End removes the session for the cookie on r and expires the cookie.
// Sessions are one-shot: the consent decision always ends them.
func (m *Manager) End(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return
	}

	m.mu.Lock()
	delete(m.entries, cookie.Value)
	m.mu.Unlock()

	expired := m.buildCookie("", time.Unix(0, 0))
	expired.MaxAge = -1
	http.SetCookie(w, expired)
}

// Cleanup removes all expired sessions
func (m *Manager) Cleanup() {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for handle, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, handle)
		}
	}
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) buildCookie(handle string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    handle,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
