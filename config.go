package authcore

import (
	"errors"
	"time"
)

// Config defines the engine's process-wide configuration. Instances are
// configured before [Builder.Build] and treated as immutable afterwards.
type Config struct {
	Token    TokenConfig
	Password PasswordConfig
	Lockout  LockoutConfig
	Session  SessionConfig
	Audit    AuditConfig
}

// TokenConfig carries the two signing secrets and expiries. Access and
// refresh tokens use distinct secrets so one class can never verify as the
// other. Secrets have no defaults; a missing secret fails Build.
type TokenConfig struct {
	AccessSecret  []byte
	AccessExpiry  time.Duration
	RefreshSecret []byte
	RefreshExpiry time.Duration
	Issuer        string
}

// PasswordConfig carries Argon2id cost parameters and the minimum accepted
// password length.
type PasswordConfig struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

// LockoutConfig carries the brute-force escalation policy. These are
// configuration constants, not hardcoded business law.
type LockoutConfig struct {
	FailureThreshold int
	LockDuration     time.Duration
}

// SessionConfig bounds the per-record session collections and names the
// Redis key namespace.
type SessionConfig struct {
	RedisPrefix string
	// MaxHistoryPerDevice caps each device's login history; oldest entries
	// are pruned first. Zero means unbounded.
	MaxHistoryPerDevice int
	// MaxRefreshTokens caps the record's audit-level token list. Zero means
	// unbounded.
	MaxRefreshTokens int
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 7 * 24 * time.Hour,
			Issuer:        "authcore",
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        2,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
		},
		Lockout: LockoutConfig{
			FailureThreshold: 5,
			LockDuration:     15 * time.Minute,
		},
		Session: SessionConfig{
			RedisPrefix:         "ac",
			MaxHistoryPerDevice: 50,
			MaxRefreshTokens:    100,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

func validateConfig(cfg Config) error {
	if len(cfg.Token.AccessSecret) == 0 {
		return errors.New("access token secret is required")
	}
	if len(cfg.Token.RefreshSecret) == 0 {
		return errors.New("refresh token secret is required")
	}
	if string(cfg.Token.AccessSecret) == string(cfg.Token.RefreshSecret) {
		return errors.New("access and refresh token secrets must differ")
	}
	if cfg.Token.AccessExpiry <= 0 || cfg.Token.RefreshExpiry <= 0 {
		return errors.New("token expiries must be positive")
	}
	if cfg.Lockout.FailureThreshold < 1 {
		return errors.New("lockout failure threshold must be >= 1")
	}
	if cfg.Lockout.LockDuration <= 0 {
		return errors.New("lockout duration must be positive")
	}
	if cfg.Password.MinLength < 1 {
		return errors.New("minimum password length must be >= 1")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.AccessSecret = append([]byte(nil), cfg.Token.AccessSecret...)
	out.Token.RefreshSecret = append([]byte(nil), cfg.Token.RefreshSecret...)
	return out
}
