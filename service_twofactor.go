package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/invozo/authcore/internal"
	"github.com/invozo/authcore/twofactor"
)

// BeginTwoFactorSetup generates a fresh secret and backup codes and parks
// them as a pending setup. Nothing is committed until the first code is
// confirmed; an abandoned setup expires on its own and a repeat call
// overwrites the previous one. Calling it while two-factor is already
// enabled starts a re-enrollment that replaces the old secret on confirm.
func (s *Service) BeginTwoFactorSetup(ctx context.Context, userID string) (*TwoFactorEnrollment, error) {
	if s == nil || s.twoFactor == nil {
		return nil, ErrServiceNotReady
	}
	if !s.config.TwoFactor.Enabled {
		return nil, ErrTwoFactorDisabled
	}

	user, err := s.creds.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	_, secret, err := internal.NewTOTPSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	codes, err := s.newBackupCodes()
	if err != nil {
		return nil, err
	}

	setup := &twofactor.Setup{
		Secret:    secret,
		Codes:     codes,
		CreatedAt: time.Now().Unix(),
	}
	if err := s.twoFactor.SaveSetup(ctx, userID, setup, s.config.TwoFactor.SetupTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.metricInc(MetricTwoFactorSetupStarted)
	s.emitAudit(ctx, auditEventTwoFactorSetupStarted, true, userID, "", nil, nil)

	return &TwoFactorEnrollment{
		Secret:      secret,
		URI:         s.totp.ProvisionURI(secret, user.Email),
		BackupCodes: codes,
	}, nil
}

// ConfirmTwoFactorSetup proves the authenticator holds the pending secret
// and commits it: the enabled record and the hashed backup codes go live
// in one batch, and the pending setup disappears. After the setup TTL the
// confirmation fails with ErrTwoFactorSetupExpired and the user starts
// over.
func (s *Service) ConfirmTwoFactorSetup(ctx context.Context, userID, code string) error {
	if s == nil || s.twoFactor == nil {
		return ErrServiceNotReady
	}
	if !s.config.TwoFactor.Enabled {
		return ErrTwoFactorDisabled
	}

	setup, err := s.twoFactor.GetSetup(ctx, userID)
	if err != nil {
		if errors.Is(err, twofactor.ErrSetupNotFound) {
			return ErrTwoFactorSetupExpired
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	matched, counter, err := s.totp.VerifyCode(setup.Secret, code, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !matched {
		s.metricInc(MetricTwoFactorFailure)
		s.emitAudit(ctx, auditEventTwoFactorFailure, false, userID, "", ErrTwoFactorInvalid, nil)
		return ErrTwoFactorInvalid
	}

	now := time.Now().Unix()
	rec := &twofactor.Record{
		Secret:      setup.Secret,
		Enabled:     true,
		CreatedAt:   now,
		LastUsed:    now,
		LastCounter: counter,
	}
	hashes := make([]string, 0, len(setup.Codes))
	for _, c := range setup.Codes {
		hashes = append(hashes, internal.BackupCodeHash(userID, c))
	}
	if err := s.twoFactor.Promote(ctx, userID, rec, hashes, s.config.TwoFactor.RecordTTL); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.metricInc(MetricTwoFactorEnabled)
	s.emitAudit(ctx, auditEventTwoFactorEnabled, true, userID, "", nil, nil)
	return nil
}

// VerifyTwoFactor checks a second factor outside of login, for step-up
// confirmation of sensitive actions. Accepts a TOTP code or a backup code,
// told apart by shape.
func (s *Service) VerifyTwoFactor(ctx context.Context, userID, code string) error {
	if s == nil || s.twoFactor == nil {
		return ErrServiceNotReady
	}
	if !s.config.TwoFactor.Enabled {
		return ErrTwoFactorDisabled
	}

	rec, err := s.twoFactor.GetRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, twofactor.ErrNotConfigured) {
			return ErrTwoFactorNotConfigured
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !rec.Enabled {
		return ErrTwoFactorNotConfigured
	}
	return s.verifySecondFactor(ctx, userID, rec, code)
}

// DisableTwoFactor tears down all two-factor state for the user: pending
// setup, enabled record and every remaining backup code. Idempotent.
func (s *Service) DisableTwoFactor(ctx context.Context, userID string) error {
	if s == nil || s.twoFactor == nil {
		return ErrServiceNotReady
	}
	if err := s.twoFactor.DeleteAll(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.metricInc(MetricTwoFactorDisabled)
	s.emitAudit(ctx, auditEventTwoFactorDisabled, true, userID, "", nil, nil)
	return nil
}

// RegenerateBackupCodes replaces the whole backup-code set with a fresh
// one and returns the new plaintext codes, shown to the user exactly once.
// Old codes stop working immediately.
func (s *Service) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	if s == nil || s.twoFactor == nil {
		return nil, ErrServiceNotReady
	}
	if !s.config.TwoFactor.Enabled {
		return nil, ErrTwoFactorDisabled
	}

	rec, err := s.twoFactor.GetRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, twofactor.ErrNotConfigured) {
			return nil, ErrTwoFactorNotConfigured
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !rec.Enabled {
		return nil, ErrTwoFactorNotConfigured
	}

	codes, err := s.newBackupCodes()
	if err != nil {
		return nil, err
	}
	hashes := make([]string, 0, len(codes))
	for _, c := range codes {
		hashes = append(hashes, internal.BackupCodeHash(userID, c))
	}
	if err := s.twoFactor.ReplaceCodes(ctx, userID, hashes, s.config.TwoFactor.RecordTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.metricInc(MetricBackupCodesRegenerated)
	s.emitAudit(ctx, auditEventBackupCodesRegenerated, true, userID, "", nil, func() map[string]string {
		return map[string]string{"codes": strconv.Itoa(len(codes))}
	})
	return codes, nil
}

func (s *Service) newBackupCodes() ([]string, error) {
	codes := make([]string, 0, s.config.TwoFactor.BackupCodeCount)
	seen := make(map[string]struct{}, s.config.TwoFactor.BackupCodeCount)
	for len(codes) < s.config.TwoFactor.BackupCodeCount {
		code, err := internal.NewBackupCode()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternal, err)
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}
