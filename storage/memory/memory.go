package memory

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse-auth/gatehouse/instrumentation"
	"github.com/gatehouse-auth/gatehouse/storage"
)

// Compile-time interface checks
var (
	_ storage.UserStore   = (*Store)(nil)
	_ storage.ClientStore = (*Store)(nil)
	_ storage.CodeStore   = (*Store)(nil)
	_ storage.TokenStore  = (*Store)(nil)
)

// DefaultCleanupInterval is how often the background loop reaps expired
// codes and tokens.
const DefaultCleanupInterval = 5 * time.Minute

// Store is an in-memory implementation of all four store interfaces.
// All operations are safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	users         map[string]*storage.User
	clients       map[string]*storage.Client
	codes         map[string]*storage.AuthorizationCode
	accessTokens  map[string]*storage.Token
	refreshTokens map[string]*storage.Token

	logger          *slog.Logger
	instrumentation *instrumentation.Instrumentation

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once

	// Statistics (updated atomically, read by gauges and tests)
	codesIssued   int64
	codesConsumed int64
	codesExpired  int64
	tokensIssued  int64
	tokensExpired int64
}

// New creates a new in-memory store with the default cleanup interval
func New() *Store {
	return NewWithCleanupInterval(DefaultCleanupInterval)
}

// NewWithCleanupInterval creates a new in-memory store with a custom
// cleanup interval. An interval of 0 disables the background loop;
// expired records are then only reaped lazily at lookup.
func NewWithCleanupInterval(interval time.Duration) *Store {
	s := &Store{
		users:           make(map[string]*storage.User),
		clients:         make(map[string]*storage.Client),
		codes:           make(map[string]*storage.AuthorizationCode),
		accessTokens:    make(map[string]*storage.Token),
		refreshTokens:   make(map[string]*storage.Token),
		logger:          slog.Default(),
		cleanupInterval: interval,
		stopCleanup:     make(chan struct{}),
	}

	if interval > 0 {
		go s.cleanupLoop()
	}

	return s
}

// SetLogger sets the logger used for cleanup and debug messages
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetInstrumentation wires the store's size gauges into the given
// instrumentation instance.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) error {
	s.instrumentation = inst
	return inst.RegisterStorageSizeCallbacks(
		func() int64 { s.mu.RLock(); defer s.mu.RUnlock(); return int64(len(s.users)) },
		func() int64 { s.mu.RLock(); defer s.mu.RUnlock(); return int64(len(s.clients)) },
		func() int64 { s.mu.RLock(); defer s.mu.RUnlock(); return int64(len(s.codes)) },
		func() int64 { s.mu.RLock(); defer s.mu.RUnlock(); return int64(len(s.accessTokens)) },
		func() int64 { s.mu.RLock(); defer s.mu.RUnlock(); return int64(len(s.refreshTokens)) },
	)
}

// Stop terminates the background cleanup goroutine. Safe to call more
// than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// ==================== UserStore ====================

// SaveUser stores a user record. PasswordHash must already be a bcrypt hash.
func (s *Store) SaveUser(_ context.Context, user *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := *user
	s.users[u.ID] = &u
	return nil
}

// GetUser retrieves a user by ID
func (s *Store) GetUser(_ context.Context, userID string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	u := *user
	return &u, nil
}

// VerifyUserCredentials checks a username/password pair against the stored
// bcrypt hash. Unknown usernames run a dummy bcrypt comparison so the
// response time does not reveal whether the account exists.
func (s *Store) VerifyUserCredentials(_ context.Context, username, password string) (*storage.User, error) {
	s.mu.RLock()
	user, ok := s.users[username]
	s.mu.RUnlock()

	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, storage.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, storage.ErrInvalidCredentials
	}

	u := *user
	return &u, nil
}

// dummyHash is compared against when the username is unknown, keeping
// credential verification constant-cost for present and absent accounts.
// bcrypt hash of an unguessable random string.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// ==================== ClientStore ====================

// SaveClient stores a client registration
func (s *Store) SaveClient(_ context.Context, client *storage.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *client
	c.RedirectURIs = append([]string(nil), client.RedirectURIs...)
	s.clients[c.ClientID] = &c
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(_ context.Context, clientID string) (*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		return nil, storage.ErrClientNotFound
	}
	c := *client
	c.RedirectURIs = append([]string(nil), client.RedirectURIs...)
	return &c, nil
}

// ValidateClientSecret verifies a confidential client's secret against its
// bcrypt hash. Public clients carry no hash and always fail this check.
func (s *Store) ValidateClientSecret(_ context.Context, clientID, clientSecret string) error {
	s.mu.RLock()
	client, ok := s.clients[clientID]
	s.mu.RUnlock()

	if !ok {
		return storage.ErrClientNotFound
	}
	if client.ClientSecretHash == "" {
		return storage.ErrInvalidClientSecret
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.ClientSecretHash), []byte(clientSecret)); err != nil {
		return storage.ErrInvalidClientSecret
	}
	return nil
}

// ==================== CodeStore ====================

// SaveAuthorizationCode records an issued authorization code
func (s *Store) SaveAuthorizationCode(_ context.Context, code *storage.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *code
	s.codes[c.Code] = &c
	atomic.AddInt64(&s.codesIssued, 1)
	return nil
}

// ConsumeAuthorizationCode atomically redeems an authorization code.
// The record is removed from the ledger BEFORE expiry, client, and
// redirect URI are validated. A failed redemption therefore still burns
// the code: replaying it reports storage.ErrCodeNotFound.
func (s *Store) ConsumeAuthorizationCode(_ context.Context, code, clientID, redirectURI string) (*storage.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.codes[code]
	if !ok {
		return nil, storage.ErrCodeNotFound
	}

	// Single use: remove first, validate after.
	delete(s.codes, code)
	atomic.AddInt64(&s.codesConsumed, 1)

	if time.Now().After(rec.ExpiresAt) {
		atomic.AddInt64(&s.codesExpired, 1)
		return nil, storage.ErrCodeExpired
	}
	if rec.ClientID != clientID {
		return nil, storage.ErrCodeClientMismatch
	}
	if rec.RedirectURI != redirectURI {
		return nil, storage.ErrCodeRedirectMismatch
	}

	return rec, nil
}

// ==================== TokenStore ====================

// SaveAccessToken records an issued access token
func (s *Store) SaveAccessToken(_ context.Context, token *storage.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := *token
	s.accessTokens[t.Token] = &t
	atomic.AddInt64(&s.tokensIssued, 1)
	return nil
}

// GetAccessToken retrieves an access token record by its opaque value.
// Expired records are deleted during the lookup that discovers them, so
// storage.ErrTokenExpired is reported at most once per token.
func (s *Store) GetAccessToken(_ context.Context, token string) (*storage.Token, error) {
	return s.getToken(s.accessTokens, token)
}

// SaveRefreshToken records an issued refresh token
func (s *Store) SaveRefreshToken(_ context.Context, token *storage.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := *token
	s.refreshTokens[t.Token] = &t
	atomic.AddInt64(&s.tokensIssued, 1)
	return nil
}

// GetRefreshToken retrieves a refresh token record by its opaque value,
// with the same lazy-expiry contract as GetAccessToken.
func (s *Store) GetRefreshToken(_ context.Context, token string) (*storage.Token, error) {
	return s.getToken(s.refreshTokens, token)
}

// getToken implements the shared lookup-with-lazy-expiry path for both
// token ledgers. Must NOT be called with the mutex held.
func (s *Store) getToken(ledger map[string]*storage.Token, token string) (*storage.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := ledger[token]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}

	if time.Now().After(rec.ExpiresAt) {
		delete(ledger, token)
		atomic.AddInt64(&s.tokensExpired, 1)
		return nil, storage.ErrTokenExpired
	}

	t := *rec
	return &t, nil
}

// ==================== Seeding helpers ====================

// SeedUser hashes the plaintext password with bcrypt and stores the user.
// Intended for bootstrapping development and test fixtures; production
// callers should provision users with pre-hashed credentials via SaveUser.
func (s *Store) SeedUser(ctx context.Context, id, password, name, email, profileImage string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.SaveUser(ctx, &storage.User{
		ID:           id,
		PasswordHash: string(hash),
		Name:         name,
		Email:        email,
		ProfileImage: profileImage,
		CreatedAt:    time.Now(),
	})
}

// SeedClient hashes the plaintext secret with bcrypt and stores the client.
// Pass an empty secret for public clients.
func (s *Store) SeedClient(ctx context.Context, clientID, secret, clientType, clientName, scope string, redirectURIs []string) error {
	var secretHash string
	if secret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		secretHash = string(hash)
	}
	return s.SaveClient(ctx, &storage.Client{
		ClientID:         clientID,
		ClientSecretHash: secretHash,
		ClientType:       clientType,
		RedirectURIs:     redirectURIs,
		ClientName:       clientName,
		Scope:            scope,
		CreatedAt:        time.Now(),
	})
}

// ==================== Cleanup ====================

// cleanupLoop periodically removes expired codes and tokens
func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// Cleanup removes all expired codes and tokens. It is invoked by the
// background loop and may also be called directly in tests.
func (s *Store) Cleanup() {
	now := time.Now()
	removed := 0

	s.mu.Lock()
	for code, rec := range s.codes {
		if now.After(rec.ExpiresAt) {
			delete(s.codes, code)
			atomic.AddInt64(&s.codesExpired, 1)
			removed++
		}
	}
	for tok, rec := range s.accessTokens {
		if now.After(rec.ExpiresAt) {
			delete(s.accessTokens, tok)
			atomic.AddInt64(&s.tokensExpired, 1)
			removed++
		}
	}
	for tok, rec := range s.refreshTokens {
		if now.After(rec.ExpiresAt) {
			delete(s.refreshTokens, tok)
			atomic.AddInt64(&s.tokensExpired, 1)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Debug("Storage cleanup completed", "removed", removed)
	}
}

// Stats holds store statistics for monitoring
type Stats struct {
	Users         int
	Clients       int
	Codes         int
	AccessTokens  int
	RefreshTokens int
	CodesIssued   int64
	CodesConsumed int64
	CodesExpired  int64
	TokensIssued  int64
	TokensExpired int64
}

// GetStats returns current store statistics
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Users:         len(s.users),
		Clients:       len(s.clients),
		Codes:         len(s.codes),
		AccessTokens:  len(s.accessTokens),
		RefreshTokens: len(s.refreshTokens),
		CodesIssued:   atomic.LoadInt64(&s.codesIssued),
		CodesConsumed: atomic.LoadInt64(&s.codesConsumed),
		CodesExpired:  atomic.LoadInt64(&s.codesExpired),
		TokensIssued:  atomic.LoadInt64(&s.tokensIssued),
		TokensExpired: atomic.LoadInt64(&s.tokensExpired),
	}
}
