package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/invozo/authcore/internal/stores"
	"github.com/invozo/authcore/jwt"
	"github.com/invozo/authcore/password"
	"github.com/invozo/authcore/session"
	"github.com/invozo/authcore/twofactor"
)

// Builder assembles a [Service]. The Redis client and the credential
// store are injected: their lifecycle (connect/close) belongs to the
// process entry point, never to this package.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	creds     CredentialStore
	auditSink AuditSink
	built     bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis injects the session-store client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore injects the user database adapter.
func (b *Builder) WithCredentialStore(creds CredentialStore) *Builder {
	b.creds = creds
	return b
}

// WithAuditSink injects the audit event consumer.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the Service.
func (b *Builder) Build() (*Service, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.creds == nil {
		return nil, errors.New("credential store is required")
	}
	if err := validateConfig(b.config); err != nil {
		return nil, err
	}

	codec, err := jwt.NewManager(jwt.Config{
		AccessSecret:  b.config.Token.AccessSecret,
		RefreshSecret: b.config.Token.RefreshSecret,
		AccessTTL:     b.config.Token.AccessTTL,
		RefreshTTL:    b.config.Token.RefreshTTL,
		Issuer:        b.config.Token.Issuer,
		Audience:      b.config.Token.Audience,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(password.Config{Cost: b.config.Password.Cost})
	if err != nil {
		return nil, err
	}

	svc := &Service{
		config:    b.config,
		creds:     b.creds,
		codec:     codec,
		hasher:    hasher,
		sessions:  session.NewStore(b.redis, b.config.Session.RedisPrefix+":s"),
		twoFactor: twofactor.NewStore(b.redis, b.config.Session.RedisPrefix+":2fa"),
		resets:    stores.NewResetStore(b.redis, b.config.Session.RedisPrefix+":pr"),
		totp:      newTOTPManager(b.config.TwoFactor),
		metrics:   NewMetrics(b.config.Metrics),
	}

	if b.config.Audit.Enabled {
		sink := b.auditSink
		if sink == nil {
			sink = NoOpSink{}
		}
		svc.audit = newAuditDispatcher(sink, b.config.Audit.BufferSize, b.config.Audit.DropIfFull)
	}

	b.built = true
	return svc, nil
}
