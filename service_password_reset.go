package authcore

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/invozo/authcore/internal"
	"github.com/invozo/authcore/internal/stores"
)

// RequestPasswordReset issues a single-use reset challenge for the given
// email. Delivery is the caller's concern: the returned token goes into
// the caller's mailer and nowhere else. For an unknown email the call
// still succeeds and returns nil, so the response never reveals whether
// an account exists.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (*PasswordResetIssue, error) {
	if s == nil || s.resets == nil {
		return nil, ErrServiceNotReady
	}
	if !s.config.PasswordReset.Enabled {
		return nil, ErrPasswordResetDisabled
	}

	user, err := s.creds.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !user.IsActive {
		return nil, nil
	}

	challengeID := uuid.New()
	secret, err := internal.NewResetSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	token, err := internal.EncodeResetToken(challengeID, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	now := time.Now()
	ch := &stores.ResetChallenge{
		UserID:     user.ID,
		SecretHash: internal.HashResetSecret(secret),
		CreatedAt:  now.Unix(),
	}
	if err := s.resets.Save(ctx, challengeID.String(), ch, s.config.PasswordReset.ResetTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.metricInc(MetricPasswordResetRequested)
	s.emitAudit(ctx, auditEventPasswordResetRequested, true, user.ID, "", nil, nil)

	return &PasswordResetIssue{
		Token:     token,
		ExpiresAt: now.Add(s.config.PasswordReset.ResetTTL),
	}, nil
}

// ConfirmPasswordReset consumes a challenge, stores the new hash and
// revokes every session. The challenge is deleted before the secret is
// compared, so a wrong guess burns it; expired, unknown and replayed
// tokens all come back as ErrPasswordResetInvalid.
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if s == nil || s.resets == nil {
		return ErrServiceNotReady
	}
	if !s.config.PasswordReset.Enabled {
		return ErrPasswordResetDisabled
	}
	if err := s.checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	challengeID, secret, err := internal.DecodeResetToken(token)
	if err != nil {
		return ErrPasswordResetInvalid
	}

	ch, err := s.resets.Consume(ctx, challengeID.String())
	if err != nil {
		if errors.Is(err, stores.ErrResetChallengeNotFound) {
			s.emitAudit(ctx, auditEventPasswordResetFailure, false, "", "", ErrPasswordResetInvalid, nil)
			return ErrPasswordResetInvalid
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	hash := internal.HashResetSecret(secret)
	if subtle.ConstantTimeCompare([]byte(hash), []byte(ch.SecretHash)) != 1 {
		s.emitAudit(ctx, auditEventPasswordResetFailure, false, ch.UserID, "", ErrPasswordResetInvalid, nil)
		return ErrPasswordResetInvalid
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if err := s.creds.SetPasswordHash(ctx, ch.UserID, newHash); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if _, err := s.sessions.DeleteAllForUser(ctx, ch.UserID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.metricInc(MetricPasswordResetConfirmed)
	s.emitAudit(ctx, auditEventPasswordResetConfirmed, true, ch.UserID, "", nil, nil)
	return nil
}
