package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Revoke deletes one session record by its token ID, invalidating the
// matching refresh token server-side. Revoking an absent record succeeds.
func (s *Service) Revoke(ctx context.Context, userID, tokenID string) error {
	if s == nil || s.sessions == nil {
		return ErrServiceNotReady
	}
	if err := s.sessions.Delete(ctx, userID, tokenID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.metricInc(MetricSessionRevoked)
	s.emitAudit(ctx, auditEventSessionRevoked, true, userID, "", nil, func() map[string]string {
		return map[string]string{"token_id": tokenID}
	})
	return nil
}

// RevokeAll deletes every session record for the user ("log out
// everywhere"). Returns how many records were removed. A session created
// concurrently with the call may survive; it is a fresh login, not a
// stale one.
func (s *Service) RevokeAll(ctx context.Context, userID string) (int, error) {
	if s == nil || s.sessions == nil {
		return 0, ErrServiceNotReady
	}
	n, err := s.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.metricInc(MetricSessionsRevokedAll)
	s.emitAudit(ctx, auditEventSessionsRevokedAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(n)}
	})
	return n, nil
}

// ListSessions enumerates the user's live sessions for "your devices"
// surfaces. Read-only: it never extends or shortens any TTL.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if s == nil || s.sessions == nil {
		return nil, ErrServiceNotReady
	}
	entries, err := s.sessions.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	infos := make([]SessionInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, SessionInfo{
			TokenID:   e.TokenID,
			SessionID: e.Record.SessionID,
			CreatedAt: time.Unix(e.Record.CreatedAt, 0),
			LastUsed:  time.Unix(e.Record.LastUsed, 0),
			ExpiresIn: e.ExpiresIn,
		})
	}
	return infos, nil
}

// ChangePassword verifies the current password, stores the new hash and
// revokes every session. The caller re-authenticates with the new
// password; any stolen refresh token dies with the old ones.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if s == nil || s.creds == nil {
		return ErrServiceNotReady
	}

	user, err := s.creds.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := s.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !ok {
		s.emitAudit(ctx, auditEventLoginFailure, false, userID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if err := s.checkPasswordPolicy(newPassword); err != nil {
		return err
	}
	if oldPassword == newPassword {
		return ErrPasswordReuse
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if err := s.creds.SetPasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if _, err := s.sessions.DeleteAllForUser(ctx, userID); err != nil {
		// Hash is already rotated; report the partial failure rather than
		// pretending the sessions are gone.
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.metricInc(MetricPasswordChanged)
	s.emitAudit(ctx, auditEventPasswordChanged, true, userID, "", nil, nil)
	return nil
}
