package authcore

import (
	"bytes"
	"errors"
	"time"
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	Token         TokenConfig
	Session       SessionConfig
	Password      PasswordConfig
	Account       AccountConfig
	TwoFactor     TwoFactorConfig
	PasswordReset PasswordResetConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Janitor       JanitorConfig
}

// TokenConfig configures the token codec. Access and refresh tokens are
// signed with independent secrets so leaking one key class cannot forge
// the other.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
}

// SessionConfig configures the Redis refresh-record store.
type SessionConfig struct {
	RedisPrefix string
}

// PasswordConfig configures bcrypt hashing.
type PasswordConfig struct {
	Cost           int
	MinLength      int
	UpgradeOnLogin bool
}

// AccountConfig configures registration behavior.
type AccountConfig struct {
	DefaultRole          string
	AutoLogin            bool
	RequireVerifiedEmail bool
}

// TwoFactorConfig configures TOTP and backup codes.
type TwoFactorConfig struct {
	Enabled          bool
	Issuer           string
	Digits           int
	Period           int
	Algorithm        string
	Skew             int
	SetupTTL         time.Duration
	RecordTTL        time.Duration
	BackupCodeCount  int
	BackupCodeLength int
	// EnforceReplayProtection rejects a TOTP counter at or below the last
	// accepted one. Off by default so the documented skew window stays
	// observable for repeated verifications within one step.
	EnforceReplayProtection bool
}

// PasswordResetConfig configures the reset challenge flow. Delivery of the
// challenge is the caller's concern.
type PasswordResetConfig struct {
	Enabled  bool
	ResetTTL time.Duration
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig configures in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// JanitorConfig configures the optional background TTL sweep. The sweep is
// a safety net over Redis native expiry, not the primary mechanism.
type JanitorConfig struct {
	Enabled  bool
	Interval time.Duration
}

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultSetupTTL   = 10 * time.Minute
	defaultRecordTTL  = 30 * 24 * time.Hour
	defaultResetTTL   = 15 * time.Minute
)

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  defaultAccessTTL,
			RefreshTTL: defaultRefreshTTL,
			Issuer:     "authcore",
			Audience:   "authcore",
		},
		Session: SessionConfig{
			RedisPrefix: "ac",
		},
		Password: PasswordConfig{
			Cost:           12,
			MinLength:      8,
			UpgradeOnLogin: true,
		},
		Account: AccountConfig{
			DefaultRole: "member",
			AutoLogin:   true,
		},
		TwoFactor: TwoFactorConfig{
			Enabled:          true,
			Issuer:           "authcore",
			Digits:           6,
			Period:           30,
			Algorithm:        "SHA1",
			Skew:             2,
			SetupTTL:         defaultSetupTTL,
			RecordTTL:        defaultRecordTTL,
			BackupCodeCount:  10,
			BackupCodeLength: 8,
		},
		PasswordReset: PasswordResetConfig{
			Enabled:  true,
			ResetTTL: defaultResetTTL,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Janitor: JanitorConfig{
			Interval: 5 * time.Minute,
		},
	}
}

// PresetDefault returns the balanced default configuration. Secrets must
// still be filled in by the caller.
func PresetDefault() Config {
	return defaultConfig()
}

// PresetHardened enables TOTP replay protection and verified-email login
// on top of the defaults.
func PresetHardened() Config {
	cfg := defaultConfig()
	cfg.TwoFactor.EnforceReplayProtection = true
	cfg.Account.RequireVerifiedEmail = true
	cfg.Password.MinLength = 10
	return cfg
}

func validateConfig(cfg Config) error {
	if len(cfg.Token.AccessSecret) < 32 {
		return errors.New("token access secret must be at least 32 bytes")
	}
	if len(cfg.Token.RefreshSecret) < 32 {
		return errors.New("token refresh secret must be at least 32 bytes")
	}
	if bytes.Equal(cfg.Token.AccessSecret, cfg.Token.RefreshSecret) {
		return errors.New("access and refresh secrets must differ")
	}
	if cfg.Token.AccessTTL <= 0 || cfg.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if cfg.Token.RefreshTTL <= cfg.Token.AccessTTL {
		return errors.New("refresh TTL must exceed access TTL")
	}
	if cfg.Token.Issuer == "" || cfg.Token.Audience == "" {
		return errors.New("token issuer and audience are required")
	}
	if cfg.Session.RedisPrefix == "" {
		return errors.New("session redis prefix is required")
	}
	if cfg.Password.Cost < 12 {
		return errors.New("password cost factor must be at least 12")
	}
	if cfg.Password.MinLength < 8 {
		return errors.New("password min length must be at least 8")
	}
	if cfg.TwoFactor.Enabled {
		if cfg.TwoFactor.Digits < 6 || cfg.TwoFactor.Digits > 8 {
			return errors.New("totp digits must be between 6 and 8")
		}
		if cfg.TwoFactor.Period <= 0 {
			return errors.New("totp period must be positive")
		}
		if cfg.TwoFactor.Skew < 0 || cfg.TwoFactor.Skew > 4 {
			return errors.New("totp skew must be between 0 and 4 steps")
		}
		if cfg.TwoFactor.SetupTTL <= 0 || cfg.TwoFactor.RecordTTL <= 0 {
			return errors.New("two-factor TTLs must be positive")
		}
		if cfg.TwoFactor.BackupCodeCount <= 0 || cfg.TwoFactor.BackupCodeLength != 8 {
			return errors.New("backup codes must be 8 hex characters")
		}
	}
	if cfg.PasswordReset.Enabled && cfg.PasswordReset.ResetTTL <= 0 {
		return errors.New("password reset TTL must be positive")
	}
	if cfg.Janitor.Enabled && cfg.Janitor.Interval < time.Minute {
		return errors.New("janitor interval must be at least one minute")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.AccessSecret = append([]byte(nil), cfg.Token.AccessSecret...)
	out.Token.RefreshSecret = append([]byte(nil), cfg.Token.RefreshSecret...)
	return out
}
