package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/invozo/authcore/internal"
	"github.com/invozo/authcore/internal/stores"
	"github.com/invozo/authcore/jwt"
	"github.com/invozo/authcore/password"
	"github.com/invozo/authcore/session"
	"github.com/invozo/authcore/twofactor"
)

// Service orchestrates the token and session lifecycle. Construct it with
// [New]; a zero Service is not usable. Safe for concurrent use.
type Service struct {
	config    Config
	creds     CredentialStore
	codec     *jwt.Manager
	hasher    *password.Hasher
	sessions  *session.Store
	twoFactor *twofactor.Store
	resets    *stores.ResetStore
	totp      *totpManager
	audit     *auditDispatcher
	metrics   *Metrics
}

// Close flushes and stops the audit dispatcher. The Redis client and the
// credential store stay open; they belong to the caller.
func (s *Service) Close() {
	if s == nil {
		return
	}
	if s.audit != nil {
		s.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped under
// backpressure.
func (s *Service) AuditDropped() uint64 {
	if s == nil {
		return 0
	}
	return s.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (s *Service) MetricsSnapshot() MetricsSnapshot {
	if s == nil || s.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return s.metrics.Snapshot()
}

func (s *Service) metricInc(id MetricID) {
	if s == nil || s.metrics == nil {
		return
	}
	s.metrics.Inc(id)
}

// emitAudit builds the event lazily: metaFn runs only when auditing is on.
func (s *Service) emitAudit(ctx context.Context, kind string, success bool, userID, sessionID string, failure error, metaFn func() map[string]string) {
	if s == nil || s.audit == nil {
		return
	}
	event := AuditEvent{
		Time:      time.Now(),
		Kind:      kind,
		Success:   success,
		UserID:    userID,
		SessionID: sessionID,
		ClientIP:  clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}
	if failure != nil {
		event.Error = failure.Error()
	}
	if metaFn != nil {
		event.Meta = metaFn()
	}
	s.audit.Dispatch(event)
}

// issueTokenPair mints a token pair and persists the refresh record with
// the full refresh TTL. The record write is the binding between the
// stateless JWT and stateful revocation.
func (s *Service) issueTokenPair(ctx context.Context, user *User, sessionID string) (string, string, error) {
	tokenID := internal.NewTokenID()

	accessToken, err := s.codec.IssueAccess(user.ID, user.Email, user.Role, sessionID)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInternal, err)
	}
	refreshToken, err := s.codec.IssueRefresh(user.ID, tokenID, sessionID)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInternal, err)
	}

	now := time.Now()
	rec := &session.Record{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		SessionID: sessionID,
		CreatedAt: now.Unix(),
		LastUsed:  now.Unix(),
	}
	if err := s.sessions.Save(ctx, tokenID, rec, s.config.Token.RefreshTTL); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return accessToken, refreshToken, nil
}

// ValidateAccess verifies an access token and returns the identity it
// asserts. Purely cryptographic: access tokens are self-contained for
// their 15-minute life.
func (s *Service) ValidateAccess(ctx context.Context, accessToken string) (*AuthResult, error) {
	if s == nil || s.codec == nil {
		return nil, ErrServiceNotReady
	}
	claims, err := s.codec.VerifyAccess(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccessInvalid, err)
	}
	return &AuthResult{
		UserID:    claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
	}, nil
}

// Me resolves the access token's subject against the credential store.
func (s *Service) Me(ctx context.Context, accessToken string) (*User, error) {
	result, err := s.ValidateAccess(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	user, err := s.creds.FindByID(ctx, result.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	return user, nil
}
