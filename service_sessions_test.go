package authcore

import (
	"context"
	"errors"
	"testing"
)

func loginN(t *testing.T, svc *Service, email string, n int) []*AuthSession {
	t.Helper()
	sessions := make([]*AuthSession, 0, n)
	for i := 0; i < n; i++ {
		sess, err := svc.Login(context.Background(), email, testPassword, "")
		if err != nil {
			t.Fatalf("Login #%d failed: %v", i+1, err)
		}
		sessions = append(sessions, sess)
	}
	return sessions
}

func TestListSessionsEnumeratesLiveRecords(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig())
	reg := registerTestUser(t, svc, "alice@example.com")
	loginN(t, svc, "alice@example.com", 2)

	infos, err := svc.ListSessions(context.Background(), reg.User.ID)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	// One session from registration auto-login plus two logins.
	if len(infos) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(infos))
	}
	for _, info := range infos {
		if info.TokenID == "" || info.SessionID == "" {
			t.Fatalf("incomplete session info: %+v", info)
		}
		if info.ExpiresIn <= 0 {
			t.Fatalf("expected positive remaining TTL, got %v", info.ExpiresIn)
		}
	}
}

func TestRevokeSingleSession(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig())
	reg := registerTestUser(t, svc, "alice@example.com")
	other := loginN(t, svc, "alice@example.com", 1)[0]

	infos, err := svc.ListSessions(context.Background(), reg.User.ID)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(infos))
	}

	// Revoke the registration session by token ID; the other login must
	// keep working.
	var revoked bool
	for _, info := range infos {
		if err := svc.Revoke(context.Background(), reg.User.ID, info.TokenID); err != nil {
			t.Fatalf("Revoke failed: %v", err)
		}
		revoked = true
		break
	}
	if !revoked {
		t.Fatal("nothing revoked")
	}

	remaining, err := svc.ListSessions(context.Background(), reg.User.ID)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected 1 session left, got %d", len(remaining))
	}
	_ = other
}

func TestRevokeAllKillsEverySession(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig())
	reg := registerTestUser(t, svc, "alice@example.com")
	logins := loginN(t, svc, "alice@example.com", 2)

	n, err := svc.RevokeAll(context.Background(), reg.User.ID)
	if err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 revoked records, got %d", n)
	}

	for i, sess := range append(logins, reg) {
		if _, err := svc.RefreshAccess(context.Background(), sess.RefreshToken); !errors.Is(err, ErrSessionRevoked) {
			t.Fatalf("session #%d: expected ErrSessionRevoked, got %v", i, err)
		}
	}

	infos, err := svc.ListSessions(context.Background(), reg.User.ID)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("expected no sessions, got %d", len(infos))
	}
}

func TestChangePasswordRotatesHashAndRevokesSessions(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig())
	reg := registerTestUser(t, svc, "alice@example.com")

	const newPassword = "Changed456!"
	if err := svc.ChangePassword(context.Background(), reg.User.ID, testPassword, newPassword); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	if _, err := svc.RefreshAccess(context.Background(), reg.RefreshToken); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected old session revoked, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "alice@example.com", testPassword, ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "alice@example.com", newPassword, ""); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestChangePasswordGuards(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig())
	reg := registerTestUser(t, svc, "alice@example.com")

	if err := svc.ChangePassword(context.Background(), reg.User.ID, "WrongPass1!", "Changed456!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := svc.ChangePassword(context.Background(), reg.User.ID, testPassword, testPassword); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
	if err := svc.ChangePassword(context.Background(), reg.User.ID, testPassword, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if err := svc.ChangePassword(context.Background(), "ghost", testPassword, "Changed456!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}
