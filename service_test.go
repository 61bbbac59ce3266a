package authcore

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// fakeStore is an in-memory CredentialStore for service-level tests. Its
// CreateIfAbsent holds the lock across check and insert, mirroring a
// database unique constraint.
type fakeStore struct {
	mu      sync.Mutex
	byEmail map[string]*User
	byID    map[string]*User
	seq     int

	failAll bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byEmail: make(map[string]*User),
		byID:    make(map[string]*User),
	}
}

func (f *fakeStore) FindByEmail(_ context.Context, email string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, ErrStoreUnavailable
	}
	u, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeStore) FindByID(_ context.Context, id string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, ErrStoreUnavailable
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeStore) CreateIfAbsent(_ context.Context, input NewUserInput) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, ErrStoreUnavailable
	}
	key := strings.ToLower(input.Email)
	if _, exists := f.byEmail[key]; exists {
		return nil, ErrDuplicateEmail
	}
	f.seq++
	now := time.Now()
	u := &User{
		ID:           "user-" + strconv.Itoa(f.seq),
		Email:        key,
		PasswordHash: input.PasswordHash,
		Role:         input.Role,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.byEmail[key] = u
	f.byID[u.ID] = u
	copied := *u
	return &copied, nil
}

func (f *fakeStore) SetPasswordHash(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeStore) SetLastLogin(_ context.Context, id string, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.LastLoginAt = &ts
	return nil
}

func (f *fakeStore) setActive(id string, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		u.IsActive = active
	}
}

func testConfig() Config {
	cfg := PresetDefault()
	cfg.Token.AccessSecret = []byte("test-access-secret-0123456789abcdef")
	cfg.Token.RefreshSecret = []byte("test-refresh-secret-0123456789abcde")
	return cfg
}

func newTestService(t *testing.T, cfg Config) (*Service, *fakeStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := newFakeStore()
	svc, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc, store, mr
}

const testPassword = "Secret123!"

func registerTestUser(t *testing.T, svc *Service, email string) *AuthSession {
	t.Helper()
	sess, err := svc.Register(context.Background(), RegisterRequest{
		Email:    email,
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return sess
}
