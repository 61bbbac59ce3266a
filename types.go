package authcore

import (
	"context"
	"time"
)

// User is the minimal account record the core needs from its
// [CredentialStore]. The backing schema may carry more; the core only ever
// reads these fields.
type User struct {
	ID            string
	Email         string
	PasswordHash  string
	Role          string
	FirstName     string
	LastName      string
	IsActive      bool
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastLoginAt   *time.Time
}

// NewUserInput is the input for [CredentialStore.CreateIfAbsent].
type NewUserInput struct {
	Email        string
	PasswordHash string
	Role         string
	FirstName    string
	LastName     string
}

// CredentialStore is the interface callers implement over their user
// database. CreateIfAbsent must detect duplicates through the store's own
// uniqueness constraint inside a transactional region, not through a
// check-then-insert, and must report that case as [ErrDuplicateEmail].
// Lookups report absent users as [ErrUserNotFound].
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	CreateIfAbsent(ctx context.Context, input NewUserInput) (*User, error)
	SetPasswordHash(ctx context.Context, id, hash string) error
	SetLastLogin(ctx context.Context, id string, ts time.Time) error
}

// AuthSession is returned by Register and Login: the authenticated user
// plus a freshly issued token pair.
type AuthSession struct {
	User         *User
	AccessToken  string
	RefreshToken string
}

// AuthResult is the decoded identity of a verified access token.
type AuthResult struct {
	UserID    string
	Email     string
	Role      string
	SessionID string
}

// SessionInfo is one row of ListSessions ("your devices" UX). ExpiresIn is
// the remaining record TTL at read time.
type SessionInfo struct {
	TokenID   string
	SessionID string
	CreatedAt time.Time
	LastUsed  time.Time
	ExpiresIn time.Duration
}

// TwoFactorEnrollment is returned by BeginTwoFactorSetup. BackupCodes are
// plaintext here and in the pending setup record only; once the setup is
// confirmed the core keeps hashes.
type TwoFactorEnrollment struct {
	Secret      string
	URI         string
	BackupCodes []string
}

// RegisterRequest is the input for [Service.Register]. Role defaults to
// [AccountConfig.DefaultRole] when empty.
type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
}

// PasswordResetIssue is the challenge handed back by RequestPasswordReset
// for the caller's mailer. It is nil when the email is unknown, which the
// caller must not reveal.
type PasswordResetIssue struct {
	Token     string
	ExpiresAt time.Time
}
