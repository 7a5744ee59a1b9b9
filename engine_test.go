package authcore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// mockUserStore is an in-memory UserStore for engine tests.
type mockUserStore struct {
	mu    sync.Mutex
	users map[string]*User
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: make(map[string]*User)}
}

func (s *mockUserStore) add(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

func (s *mockUserStore) get(id string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (s *mockUserStore) GetByID(_ context.Context, userID string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *mockUserStore) GetByEmail(_ context.Context, tenantID, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.TenantID == tenantID && strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *mockUserStore) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = newHash
	return nil
}

func (s *mockUserStore) SetTwoFactorSecret(_ context.Context, userID string, secret []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.TwoFactorSecret = append([]byte(nil), secret...)
	u.TwoFactorEnabled = true
	return nil
}

func (s *mockUserStore) ClearTwoFactorSecret(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.TwoFactorSecret = nil
	u.TwoFactorEnabled = false
	return nil
}

func (s *mockUserStore) SetStatus(_ context.Context, userID string, status UserStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Status = status
	return nil
}

// memRefreshStore is an in-memory RefreshTokenStore whose Rotate is atomic
// under one mutex, matching the contract the SQL implementation provides
// with a transaction.
type memRefreshStore struct {
	mu     sync.Mutex
	tokens map[string]*RefreshToken
}

func newMemRefreshStore() *memRefreshStore {
	return &memRefreshStore{tokens: make(map[string]*RefreshToken)}
}

func (s *memRefreshStore) Create(_ context.Context, token *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *token
	s.tokens[token.TokenValue] = &cp
	return nil
}

func (s *memRefreshStore) GetByValue(_ context.Context, tokenValue string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[tokenValue]
	if !ok {
		return nil, ErrRefreshTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memRefreshStore) Rotate(_ context.Context, presentedValue string, successor *RefreshToken, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.tokens[presentedValue]
	if !ok {
		return ErrRefreshTokenNotFound
	}
	if old.Revoked {
		return ErrRefreshTokenRevoked
	}
	old.Revoked = true
	old.RevokedAt = at
	old.RevokedReason = RevokeReasonRotated
	old.ReplacedBy = successor.ID
	cp := *successor
	s.tokens[successor.TokenValue] = &cp
	return nil
}

func (s *memRefreshStore) Revoke(_ context.Context, tokenValue, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[tokenValue]
	if !ok || t.Revoked {
		return nil
	}
	t.Revoked = true
	t.RevokedAt = at
	t.RevokedReason = reason
	return nil
}

func (s *memRefreshStore) RevokeAllForUser(_ context.Context, userID, reason string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			t.RevokedAt = at
			t.RevokedReason = reason
			n++
		}
	}
	return n, nil
}

func (s *memRefreshStore) activeCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tokens {
		if t.UserID == userID && !t.Revoked {
			n++
		}
	}
	return n
}

func (s *memRefreshStore) get(tokenValue string) *RefreshToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[tokenValue]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func testConfig(t *testing.T) Config {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating keys: %v", err)
	}
	cfg := defaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	// Light hashing keeps the suite fast; production parameters are
	// exercised in the password package's own tests.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

type testFixture struct {
	engine *Engine
	users  *mockUserStore
	tokens *memRefreshStore
	redis  *miniredis.Miniredis
}

func newTestEngine(t *testing.T, mutate ...func(*Config)) *testFixture {
	t.Helper()
	mr, client := newTestRedis(t)
	cfg := testConfig(t)
	for _, fn := range mutate {
		fn(&cfg)
	}
	users := newMockUserStore()
	tokens := newMemRefreshStore()
	eng, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(users).
		WithRefreshTokenStore(tokens).
		Build()
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}
	t.Cleanup(eng.Close)
	return &testFixture{engine: eng, users: users, tokens: tokens, redis: mr}
}

const (
	testTenant   = "uni-01"
	testPassword = "correct horse battery staple"
)

// seedUser hashes testPassword with the engine's hasher and registers an
// active user.
func (f *testFixture) seedUser(t *testing.T, id, email string) *User {
	t.Helper()
	hash, err := f.engine.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	u := &User{
		ID:           id,
		TenantID:     testTenant,
		Email:        email,
		FullName:     "Test User",
		PasswordHash: hash,
		Role:         RoleStudent,
		Status:       StatusActive,
	}
	f.users.add(u)
	return u
}

// enableTwoFactor equips a seeded user with a known TOTP secret.
func (f *testFixture) enableTwoFactor(t *testing.T, userID string) []byte {
	t.Helper()
	secret := []byte("12345678901234567890")
	if err := f.users.SetTwoFactorSecret(context.Background(), userID, secret); err != nil {
		t.Fatalf("setting secret: %v", err)
	}
	return secret
}

// currentCode computes the TOTP value the engine expects right now.
func (f *testFixture) currentCode(secret []byte) string {
	counter := f.engine.now().Unix() / int64(f.engine.cfg.TwoFactor.Period)
	return f.engine.totp.hotpCode(secret, uint64(counter))
}

func tenantCtx() context.Context {
	return WithTenant(context.Background(), testTenant)
}
