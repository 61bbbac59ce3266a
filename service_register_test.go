package authcore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestRegisterIssuesTokenPair(t *testing.T) {
	svc, store, _ := newTestService(t, testConfig())

	sess := registerTestUser(t, svc, "Alice@Example.com")
	if sess.User == nil || sess.User.ID == "" {
		t.Fatal("expected created user")
	}
	if sess.User.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", sess.User.Email)
	}
	if sess.AccessToken == "" || sess.RefreshToken == "" {
		t.Fatal("expected token pair with auto-login enabled")
	}
	if sess.User.Role != "member" {
		t.Fatalf("expected default role, got %q", sess.User.Role)
	}

	stored, err := store.FindByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("stored user lookup failed: %v", err)
	}
	if stored.PasswordHash == testPassword {
		t.Fatal("password must not be stored in plaintext")
	}
}

func TestRegisterWithoutAutoLogin(t *testing.T) {
	cfg := testConfig()
	cfg.Account.AutoLogin = false
	svc, _, _ := newTestService(t, cfg)

	sess := registerTestUser(t, svc, "bob@example.com")
	if sess.AccessToken != "" || sess.RefreshToken != "" {
		t.Fatal("expected no tokens with auto-login disabled")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig())

	registerTestUser(t, svc, "carol@example.com")
	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "CAROL@example.com",
		Password: testPassword,
	})
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestRegisterConcurrentSameEmailExactlyOneWins(t *testing.T) {
	svc, store, _ := newTestService(t, testConfig())

	const workers = 8
	var wg sync.WaitGroup
	var created, duplicate atomic.Int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Register(context.Background(), RegisterRequest{
				Email:    "race@example.com",
				Password: testPassword,
			})
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, ErrAccountExists):
				duplicate.Add(1)
			default:
				t.Errorf("unexpected register error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created.Load() != 1 {
		t.Fatalf("expected exactly 1 successful registration, got %d", created.Load())
	}
	if duplicate.Load() != workers-1 {
		t.Fatalf("expected %d duplicates, got %d", workers-1, duplicate.Load())
	}
	if len(store.byEmail) != 1 {
		t.Fatalf("expected single stored account, got %d", len(store.byEmail))
	}
}

func TestRegisterPasswordPolicy(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig())

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"too short", "short@example.com", "abc1234"},
		{"empty", "empty@example.com", ""},
		{"over 72 bytes", "long@example.com", string(make([]byte, 80))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), RegisterRequest{
				Email:    tc.email,
				Password: tc.password,
			})
			if !errors.Is(err, ErrPasswordPolicy) {
				t.Fatalf("expected ErrPasswordPolicy, got %v", err)
			}
		})
	}
}

func TestRegisterRejectsMalformedEmail(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig())

	for _, email := range []string{"", "no-at-sign", "@nouser.com", "trailing@", "no@dot"} {
		if _, err := svc.Register(context.Background(), RegisterRequest{
			Email:    email,
			Password: testPassword,
		}); err == nil {
			t.Fatalf("expected error for email %q", email)
		}
	}
}
