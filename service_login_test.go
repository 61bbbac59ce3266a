package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestLoginHappyPath(t *testing.T) {
	svc, store, _ := newTestService(t, testConfig())
	registered := registerTestUser(t, svc, "alice@example.com")

	sess, err := svc.Login(context.Background(), "alice@example.com", testPassword, "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if sess.AccessToken == "" || sess.RefreshToken == "" {
		t.Fatal("expected token pair")
	}
	if sess.User.ID != registered.User.ID {
		t.Fatalf("expected same user, got %q vs %q", sess.User.ID, registered.User.ID)
	}
	if sess.User.LastLoginAt == nil {
		t.Fatal("expected last-login timestamp")
	}

	stored, _ := store.FindByID(context.Background(), sess.User.ID)
	if stored.LastLoginAt == nil {
		t.Fatal("expected persisted last-login timestamp")
	}

	// The pair must be usable immediately.
	result, err := svc.ValidateAccess(context.Background(), sess.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess failed: %v", err)
	}
	if result.UserID != sess.User.ID || result.Email != "alice@example.com" {
		t.Fatalf("unexpected identity: %+v", result)
	}
}

func TestLoginEmailIsCaseInsensitive(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig())
	registerTestUser(t, svc, "alice@example.com")

	if _, err := svc.Login(context.Background(), "ALICE@Example.COM", testPassword, ""); err != nil {
		t.Fatalf("case-variant login failed: %v", err)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig())
	registerTestUser(t, svc, "alice@example.com")

	_, unknownErr := svc.Login(context.Background(), "nobody@example.com", testPassword, "")
	_, wrongErr := svc.Login(context.Background(), "alice@example.com", "WrongPass1!", "")

	if !errors.Is(unknownErr, ErrInvalidCredentials) {
		t.Fatalf("unknown user: expected ErrInvalidCredentials, got %v", unknownErr)
	}
	if !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("error messages differ: %q vs %q", unknownErr, wrongErr)
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	svc, store, _ := newTestService(t, testConfig())
	sess := registerTestUser(t, svc, "alice@example.com")
	store.setActive(sess.User.ID, false)

	if _, err := svc.Login(context.Background(), "alice@example.com", testPassword, ""); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
	// Wrong password on a disabled account must not leak its status.
	if _, err := svc.Login(context.Background(), "alice@example.com", "WrongPass1!", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginRequireVerifiedEmail(t *testing.T) {
	cfg := testConfig()
	cfg.Account.RequireVerifiedEmail = true
	svc, _, _ := newTestService(t, cfg)
	registerTestUser(t, svc, "alice@example.com")

	if _, err := svc.Login(context.Background(), "alice@example.com", testPassword, ""); !errors.Is(err, ErrAccountUnverified) {
		t.Fatalf("expected ErrAccountUnverified, got %v", err)
	}
}

func TestMeResolvesTokenSubject(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig())
	sess := registerTestUser(t, svc, "alice@example.com")

	user, err := svc.Me(context.Background(), sess.AccessToken)
	if err != nil {
		t.Fatalf("Me failed: %v", err)
	}
	if user.ID != sess.User.ID {
		t.Fatalf("expected %q, got %q", sess.User.ID, user.ID)
	}

	if _, err := svc.Me(context.Background(), "not-a-token"); !errors.Is(err, ErrAccessInvalid) {
		t.Fatalf("expected ErrAccessInvalid, got %v", err)
	}
}
