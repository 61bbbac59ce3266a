package authcore

import "sync/atomic"

// MetricID identifies one in-process counter.
type MetricID int

const (
	// MetricRegisterSuccess counts successful registrations.
	MetricRegisterSuccess MetricID = iota
	// MetricRegisterDuplicate counts registrations rejected as duplicates.
	MetricRegisterDuplicate
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess
	// MetricLoginFailure counts failed logins.
	MetricLoginFailure
	// MetricTwoFactorRequired counts logins deferred for a second factor.
	MetricTwoFactorRequired
	// MetricRefreshSuccess counts successful access-token refreshes.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refresh attempts.
	MetricRefreshFailure
	// MetricLogout counts logouts.
	MetricLogout
	// MetricSessionRevoked counts single-session revocations.
	MetricSessionRevoked
	// MetricSessionsRevokedAll counts revoke-all operations.
	MetricSessionsRevokedAll
	// MetricTwoFactorSetupStarted counts setup secrets generated.
	MetricTwoFactorSetupStarted
	// MetricTwoFactorEnabled counts confirmed enablements.
	MetricTwoFactorEnabled
	// MetricTwoFactorDisabled counts disablements.
	MetricTwoFactorDisabled
	// MetricTwoFactorSuccess counts successful TOTP verifications.
	MetricTwoFactorSuccess
	// MetricTwoFactorFailure counts failed TOTP verifications.
	MetricTwoFactorFailure
	// MetricTwoFactorReplay counts replayed TOTP counters rejected.
	MetricTwoFactorReplay
	// MetricBackupCodeUsed counts consumed backup codes.
	MetricBackupCodeUsed
	// MetricBackupCodeFailed counts rejected backup codes.
	MetricBackupCodeFailed
	// MetricBackupCodesRegenerated counts backup-code regenerations.
	MetricBackupCodesRegenerated
	// MetricPasswordChanged counts password changes.
	MetricPasswordChanged
	// MetricPasswordResetRequested counts reset challenges issued.
	MetricPasswordResetRequested
	// MetricPasswordResetConfirmed counts reset confirmations.
	MetricPasswordResetConfirmed
	// MetricJanitorPruned counts index entries pruned by the janitor.
	MetricJanitorPruned

	metricIDCount
)

// MetricIDCount is the number of defined metric IDs, for exporters.
const MetricIDCount = int(metricIDCount)

// Metrics holds lock-free counters. All operations are no-ops when the
// metrics system is disabled.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]atomic.Uint64
}

// NewMetrics creates a Metrics instance per cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add increments one counter by n.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id < 0 || id >= metricIDCount {
		return
	}
	m.counters[id].Add(n)
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricIDCount)}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
