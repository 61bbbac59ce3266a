package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/invozo/authcore/internal"
	"github.com/invozo/authcore/twofactor"
)

// dummyHash is compared against when the email is unknown, so the
// rejection path burns the same bcrypt work as a real mismatch.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// Login authenticates with email and password, plus a second factor when
// the account has two-factor enabled. Unknown users and wrong passwords
// both come back as ErrInvalidCredentials; when a second factor is needed
// and secondFactor is empty, the error is ErrTwoFactorRequired and the
// caller should prompt and retry with the same credentials.
func (s *Service) Login(ctx context.Context, email, password, secondFactor string) (*AuthSession, error) {
	if s == nil || s.creds == nil {
		return nil, ErrServiceNotReady
	}

	user, err := s.creds.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_, _ = s.hasher.Verify(password, dummyHash)
			s.metricInc(MetricLoginFailure)
			s.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !ok {
		s.metricInc(MetricLoginFailure)
		s.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	// Account gates come after the password check so a disabled-account
	// response never confirms a password guess for free.
	if !user.IsActive {
		s.metricInc(MetricLoginFailure)
		s.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}
	if s.config.Account.RequireVerifiedEmail && !user.EmailVerified {
		s.metricInc(MetricLoginFailure)
		s.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", ErrAccountUnverified, nil)
		return nil, ErrAccountUnverified
	}

	if err := s.checkSecondFactor(ctx, user.ID, secondFactor); err != nil {
		return nil, err
	}

	sessionID := internal.NewSessionID()
	access, refresh, err := s.issueTokenPair(ctx, user, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	_ = s.creds.SetLastLogin(ctx, user.ID, now)
	user.LastLoginAt = &now

	if s.config.Password.UpgradeOnLogin {
		s.maybeUpgradeHash(ctx, user, password)
	}

	s.metricInc(MetricLoginSuccess)
	s.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, sessionID, nil, nil)

	return &AuthSession{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// checkSecondFactor enforces two-factor during login. No committed record
// means the account simply has no second factor; a pending, unconfirmed
// setup does not count.
func (s *Service) checkSecondFactor(ctx context.Context, userID, secondFactor string) error {
	if !s.config.TwoFactor.Enabled {
		return nil
	}
	rec, err := s.twoFactor.GetRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, twofactor.ErrNotConfigured) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !rec.Enabled {
		return nil
	}
	if secondFactor == "" {
		s.metricInc(MetricTwoFactorRequired)
		s.emitAudit(ctx, auditEventTwoFactorRequired, false, userID, "", ErrTwoFactorRequired, nil)
		return ErrTwoFactorRequired
	}
	return s.verifySecondFactor(ctx, userID, rec, secondFactor)
}

// verifySecondFactor accepts either factor form, told apart by shape: 8
// hex characters is a backup code, anything else goes through TOTP.
func (s *Service) verifySecondFactor(ctx context.Context, userID string, rec *twofactor.Record, code string) error {
	canonical := internal.CanonicalizeBackupCode(code)
	if internal.IsBackupCodeShape(canonical) {
		return s.consumeBackupCode(ctx, userID, canonical)
	}

	matched, counter, err := s.totp.VerifyCode(rec.Secret, code, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !matched {
		s.metricInc(MetricTwoFactorFailure)
		s.emitAudit(ctx, auditEventTwoFactorFailure, false, userID, "", ErrTwoFactorInvalid, nil)
		return ErrTwoFactorInvalid
	}
	if s.config.TwoFactor.EnforceReplayProtection && counter <= rec.LastCounter {
		s.metricInc(MetricTwoFactorReplay)
		s.emitAudit(ctx, auditEventTwoFactorFailure, false, userID, "", ErrTwoFactorInvalid, nil)
		return ErrTwoFactorInvalid
	}

	rec.LastUsed = time.Now().Unix()
	if counter > rec.LastCounter {
		rec.LastCounter = counter
	}
	if err := s.twoFactor.TouchRecord(ctx, userID, rec, s.config.TwoFactor.RecordTTL); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.metricInc(MetricTwoFactorSuccess)
	return nil
}

// consumeBackupCode burns one backup code. The store-side delete is
// atomic, so one code never authenticates two racing logins.
func (s *Service) consumeBackupCode(ctx context.Context, userID, canonical string) error {
	consumed, err := s.twoFactor.ConsumeCode(ctx, userID, internal.BackupCodeHash(userID, canonical))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !consumed {
		s.metricInc(MetricBackupCodeFailed)
		s.emitAudit(ctx, auditEventTwoFactorFailure, false, userID, "", ErrBackupCodeInvalid, nil)
		return ErrBackupCodeInvalid
	}
	s.metricInc(MetricBackupCodeUsed)
	s.emitAudit(ctx, auditEventBackupCodeUsed, true, userID, "", nil, func() map[string]string {
		remaining, err := s.twoFactor.RemainingCodes(ctx, userID)
		if err != nil {
			return nil
		}
		return map[string]string{"remaining_codes": fmt.Sprintf("%d", remaining)}
	})
	return nil
}

// maybeUpgradeHash rehashes at the configured cost when the stored hash
// was derived with a weaker one. Best effort; login already succeeded.
func (s *Service) maybeUpgradeHash(ctx context.Context, user *User, password string) {
	upgrade, err := s.hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !upgrade {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return
	}
	if err := s.creds.SetPasswordHash(ctx, user.ID, hash); err == nil {
		user.PasswordHash = hash
	}
}
