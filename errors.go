package authcore

import "errors"

var (
	// ErrInvalidCredentials is returned for unknown users and wrong
	// passwords alike, so callers cannot distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountExists is returned by Register when the email is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountDisabled is returned when the account is deactivated.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrAccountUnverified is returned when email verification is required
	// for login and the account has not verified yet.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrUserNotFound is returned by CredentialStore lookups for absent
	// users. Login paths translate it to ErrInvalidCredentials.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateEmail is the typed error a CredentialStore must return
	// from CreateIfAbsent when the unique email constraint fires.
	ErrDuplicateEmail = errors.New("duplicate email")

	// ErrRefreshInvalid covers malformed, badly signed or expired refresh
	// tokens.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrAccessInvalid covers malformed, badly signed or expired access
	// tokens.
	ErrAccessInvalid = errors.New("invalid access token")
	// ErrSessionRevoked is returned when a refresh token verifies
	// cryptographically but its backing session record is gone.
	ErrSessionRevoked = errors.New("session revoked or unknown")

	// ErrTwoFactorRequired signals the caller to prompt for a second
	// factor and retry the login.
	ErrTwoFactorRequired = errors.New("two-factor code required")
	// ErrTwoFactorInvalid is returned for wrong or expired TOTP codes.
	ErrTwoFactorInvalid = errors.New("invalid two-factor code")
	// ErrTwoFactorNotConfigured is returned by 2FA operations that need an
	// enabled record when none exists.
	ErrTwoFactorNotConfigured = errors.New("two-factor not configured")
	// ErrTwoFactorSetupExpired is returned by ConfirmTwoFactorSetup when
	// no pending setup exists (never started, or the 10-minute window
	// lapsed).
	ErrTwoFactorSetupExpired = errors.New("two-factor setup missing or expired")
	// ErrBackupCodeInvalid is returned for unknown or already consumed
	// backup codes.
	ErrBackupCodeInvalid = errors.New("invalid backup code")

	// ErrEmailInvalid is returned by Register for malformed email input.
	ErrEmailInvalid = errors.New("malformed email address")
	// ErrPasswordPolicy is returned when a new password fails policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned by ChangePassword when the new password
	// equals the current one.
	ErrPasswordReuse = errors.New("new password must differ from current password")
	// ErrPasswordResetInvalid is returned for unknown, expired or already
	// consumed reset challenges.
	ErrPasswordResetInvalid = errors.New("password reset challenge invalid")
	// ErrPasswordResetDisabled is returned when the reset feature is off.
	ErrPasswordResetDisabled = errors.New("password reset disabled")
	// ErrTwoFactorDisabled is returned when the 2FA feature is off.
	ErrTwoFactorDisabled = errors.New("two-factor feature disabled")

	// ErrStoreUnavailable wraps credential or session store faults. Callers
	// must fail closed on it.
	ErrStoreUnavailable = errors.New("backing store unavailable")
	// ErrInternal wraps hashing and codec faults that are never the
	// caller's fault and never a plain mismatch.
	ErrInternal = errors.New("internal failure")
	// ErrServiceNotReady is returned when a Service is used before Build
	// completed its wiring.
	ErrServiceNotReady = errors.New("service not initialized")
)
