package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/invozo/authcore/jwt"
	"github.com/invozo/authcore/session"
)

// RefreshAccess exchanges a valid refresh token for a fresh access token.
// The refresh token itself is untouched: its record's TTL is re-armed to
// the full refresh window, so active sessions slide forward and idle ones
// expire. A cryptographically valid token whose record is gone comes back
// as ErrSessionRevoked.
func (s *Service) RefreshAccess(ctx context.Context, refreshToken string) (string, error) {
	if s == nil || s.codec == nil {
		return "", ErrServiceNotReady
	}

	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		s.metricInc(MetricRefreshFailure)
		s.emitAudit(ctx, auditEventRefreshFailure, false, "", "", err, nil)
		return "", fmt.Errorf("%w: %v", ErrRefreshInvalid, err)
	}

	rec, err := s.sessions.Touch(ctx, claims.Subject, claims.ID, s.config.Token.RefreshTTL, time.Now())
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.metricInc(MetricRefreshFailure)
			s.emitAudit(ctx, auditEventRefreshFailure, false, claims.Subject, claims.SessionID, ErrSessionRevoked, nil)
			return "", ErrSessionRevoked
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Identity claims come from the record, not the token: a role change
	// propagates on the next refresh without reissuing refresh tokens.
	access, err := s.codec.IssueAccess(rec.UserID, rec.Email, rec.Role, rec.SessionID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInternal, err)
	}

	s.metricInc(MetricRefreshSuccess)
	s.emitAudit(ctx, auditEventRefreshSuccess, true, rec.UserID, rec.SessionID, nil, nil)
	return access, nil
}

// Logout revokes the session behind a refresh token. Idempotent: logging
// out an already revoked session succeeds. Expired tokens are rejected,
// their records are already gone.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if s == nil || s.codec == nil {
		return ErrServiceNotReady
	}

	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRefreshInvalid, err)
	}

	if err := s.sessions.Delete(ctx, claims.Subject, claims.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.metricInc(MetricLogout)
	s.emitAudit(ctx, auditEventLogout, true, claims.Subject, claims.SessionID, nil, nil)
	return nil
}
