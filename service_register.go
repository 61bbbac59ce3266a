package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/invozo/authcore/internal"
)

// NormalizeEmail canonicalizes an email address for storage and lookup:
// trimmed and lowercased. Both Register and Login apply it, so case
// variants of one address always hit the same account.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	return strings.Contains(email[at+1:], ".")
}

func (s *Service) checkPasswordPolicy(plaintext string) error {
	if !utf8.ValidString(plaintext) {
		return fmt.Errorf("%w: password is not valid UTF-8", ErrPasswordPolicy)
	}
	if utf8.RuneCountInString(plaintext) < s.config.Password.MinLength {
		return fmt.Errorf("%w: password shorter than %d characters",
			ErrPasswordPolicy, s.config.Password.MinLength)
	}
	// bcrypt silently truncates beyond 72 bytes; reject instead.
	if len(plaintext) > 72 {
		return fmt.Errorf("%w: password exceeds 72 bytes", ErrPasswordPolicy)
	}
	return nil
}

// Register creates an account and, when auto-login is enabled, issues its
// first token pair. The uniqueness race lives entirely inside the
// credential store's constraint: two concurrent registrations for one
// email yield exactly one account and one ErrAccountExists.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthSession, error) {
	if s == nil || s.creds == nil {
		return nil, ErrServiceNotReady
	}

	email := NormalizeEmail(req.Email)
	if !validEmail(email) {
		return nil, ErrEmailInvalid
	}
	if err := s.checkPasswordPolicy(req.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	role := req.Role
	if role == "" {
		role = s.config.Account.DefaultRole
	}

	user, err := s.creds.CreateIfAbsent(ctx, NewUserInput{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			s.metricInc(MetricRegisterDuplicate)
			s.emitAudit(ctx, auditEventRegisterDuplicate, false, "", "", ErrAccountExists, nil)
			return nil, ErrAccountExists
		}
		s.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, nil)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.metricInc(MetricRegisterSuccess)

	result := &AuthSession{User: user}
	if s.config.Account.AutoLogin {
		sessionID := internal.NewSessionID()
		access, refresh, err := s.issueTokenPair(ctx, user, sessionID)
		if err != nil {
			return nil, err
		}
		result.AccessToken = access
		result.RefreshToken = refresh
		_ = s.creds.SetLastLogin(ctx, user.ID, time.Now())
		s.emitAudit(ctx, auditEventRegisterSuccess, true, user.ID, sessionID, nil, nil)
		return result, nil
	}

	s.emitAudit(ctx, auditEventRegisterSuccess, true, user.ID, "", nil, nil)
	return result, nil
}
