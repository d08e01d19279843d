package authcore

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/probelight/authcore/credential"
	internalaudit "github.com/probelight/authcore/internal/audit"
	"github.com/probelight/authcore/lockout"
	"github.com/probelight/authcore/password"
	"github.com/probelight/authcore/token"
)

// Builder assembles an [Engine]. Construction is allocation-only; no I/O
// happens until the engine's methods are called. A Builder is single-use.
type Builder struct {
	config Config

	redis redis.UniversalClient
	store credential.Store

	gate      IdentityGate
	auditSink AuditSink
	clock     func() time.Time

	built bool
}

// New returns a Builder seeded with the documented default configuration.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithSecrets sets the two token signing secrets, keeping the rest of the
// configuration untouched.
func (b *Builder) WithSecrets(accessSecret, refreshSecret []byte) *Builder {
	b.config.Token.AccessSecret = append([]byte(nil), accessSecret...)
	b.config.Token.RefreshSecret = append([]byte(nil), refreshSecret...)
	return b
}

// WithRedis supplies the Redis client backing the credential record store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore supplies a custom credential store, overriding Redis wiring.
func (b *Builder) WithStore(store credential.Store) *Builder {
	b.store = store
	return b
}

// WithIdentityGate supplies the user-management predicate consulted at login.
func (b *Builder) WithIdentityGate(gate IdentityGate) *Builder {
	b.gate = gate
	return b
}

// WithAuditSink supplies the sink receiving the engine's audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the engine's time source. Tests use this to step
// through lockout windows deterministically.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build validates the configuration and assembles the Engine. A missing
// token secret is a build error, never a runtime fallback.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("a redis client or credential store is required")
		}
		store = credential.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
	}

	hasher, err := password.NewHasher(password.Params{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	issuer, err := token.NewIssuer(token.Config{
		AccessSecret:  cfg.Token.AccessSecret,
		AccessExpiry:  cfg.Token.AccessExpiry,
		RefreshSecret: cfg.Token.RefreshSecret,
		RefreshExpiry: cfg.Token.RefreshExpiry,
		Issuer:        cfg.Token.Issuer,
	})
	if err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	dispatcher := internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true

	return &Engine{
		config: cfg,
		store:  store,
		hasher: hasher,
		issuer: issuer,
		gate:   b.gate,
		audit:  dispatcher,
		caps: credential.Caps{
			MaxHistoryPerDevice: cfg.Session.MaxHistoryPerDevice,
			MaxRefreshTokens:    cfg.Session.MaxRefreshTokens,
		},
		lockPolicy: lockout.Config{
			Threshold: cfg.Lockout.FailureThreshold,
			Duration:  cfg.Lockout.LockDuration,
		},
		now: clock,
	}, nil
}
