package internaldefs

import (
	"github.com/invozo/authcore"
)

// CounterDef pairs a core metric ID with its stable exported name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter. Both exporters iterate this
// slice, so names stay identical across backends.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricRegisterSuccess, Name: "authcore_register_success_total", Help: "Successful registrations."},
	{ID: authcore.MetricRegisterDuplicate, Name: "authcore_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful login attempts."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed login attempts."},
	{ID: authcore.MetricTwoFactorRequired, Name: "authcore_two_factor_required_total", Help: "Logins deferred for a second factor."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful access-token refreshes."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Logout operations."},
	{ID: authcore.MetricSessionRevoked, Name: "authcore_session_revoked_total", Help: "Single-session revocations."},
	{ID: authcore.MetricSessionsRevokedAll, Name: "authcore_sessions_revoked_all_total", Help: "Revoke-all operations."},
	{ID: authcore.MetricTwoFactorSetupStarted, Name: "authcore_two_factor_setup_started_total", Help: "Two-factor setup secrets generated."},
	{ID: authcore.MetricTwoFactorEnabled, Name: "authcore_two_factor_enabled_total", Help: "Confirmed two-factor enablements."},
	{ID: authcore.MetricTwoFactorDisabled, Name: "authcore_two_factor_disabled_total", Help: "Two-factor disablements."},
	{ID: authcore.MetricTwoFactorSuccess, Name: "authcore_two_factor_success_total", Help: "Successful TOTP verifications."},
	{ID: authcore.MetricTwoFactorFailure, Name: "authcore_two_factor_failure_total", Help: "Failed TOTP verifications."},
	{ID: authcore.MetricTwoFactorReplay, Name: "authcore_two_factor_replay_total", Help: "Replayed TOTP counters rejected."},
	{ID: authcore.MetricBackupCodeUsed, Name: "authcore_backup_code_used_total", Help: "Consumed backup codes."},
	{ID: authcore.MetricBackupCodeFailed, Name: "authcore_backup_code_failed_total", Help: "Rejected backup codes."},
	{ID: authcore.MetricBackupCodesRegenerated, Name: "authcore_backup_codes_regenerated_total", Help: "Backup-code regenerations."},
	{ID: authcore.MetricPasswordChanged, Name: "authcore_password_changed_total", Help: "Password changes."},
	{ID: authcore.MetricPasswordResetRequested, Name: "authcore_password_reset_requested_total", Help: "Password reset challenges issued."},
	{ID: authcore.MetricPasswordResetConfirmed, Name: "authcore_password_reset_confirmed_total", Help: "Password reset confirmations."},
	{ID: authcore.MetricJanitorPruned, Name: "authcore_janitor_pruned_total", Help: "Index entries pruned by the janitor."},
}
