// Package lockout implements the brute-force lockout state machine as pure
// decision logic over a credential record's failure counters. It performs no
// I/O; callers apply its transitions inside the store's atomic update.
package lockout

import (
	"time"

	"github.com/probelight/authcore/credential"
)

// Config holds the lockout escalation policy.
type Config struct {
	// Threshold is the consecutive-failure count that triggers a temporary
	// lock. Default 5.
	Threshold int
	// Duration is how long a temporary lock holds. Default 15 minutes.
	Duration time.Duration
}

// DefaultConfig returns the documented default policy.
func DefaultConfig() Config {
	return Config{Threshold: 5, Duration: 15 * time.Minute}
}

// Outcome classifies a lock evaluation.
type Outcome uint8

const (
	// Allow means the record is not locked; authentication may proceed.
	Allow Outcome = iota
	// DenyTemporary means a failure-escalation lock is still in force.
	DenyTemporary
	// DenyPermanent means an administrative lock is in force.
	DenyPermanent
)

// Decision is the result of evaluating a record's lock state.
type Decision struct {
	Outcome Outcome
	// Remaining is the time left on a temporary lock; zero otherwise.
	Remaining time.Duration
}

// Evaluate inspects the record's lock state at the given instant. A permanent
// lock wins over everything. A temporary lock whose deadline has passed
// evaluates as Allow even though LockLevel/LockedUntil are still set; those
// fields are cleared lazily by the next ApplySuccess.
func Evaluate(rec *credential.Record, now time.Time) Decision {
	if rec.PermanentlyLocked {
		return Decision{Outcome: DenyPermanent}
	}
	if rec.LockedUntil != nil && now.Before(*rec.LockedUntil) {
		return Decision{Outcome: DenyTemporary, Remaining: rec.LockedUntil.Sub(now)}
	}
	return Decision{Outcome: Allow}
}

// ApplyFailure records one failed authentication attempt, escalating to a
// temporary lock when the threshold is reached. Returns true when this
// failure triggered the lock.
func (c Config) ApplyFailure(rec *credential.Record, now time.Time) bool {
	rec.FailedAttempts++
	if rec.FailedAttempts >= c.Threshold {
		rec.LockLevel = 1
		until := now.Add(c.Duration)
		rec.LockedUntil = &until
		return true
	}
	return false
}

// ApplySuccess resets all failure-escalation state after a successful
// authentication. Administrative locks are untouched.
func ApplySuccess(rec *credential.Record) {
	rec.FailedAttempts = 0
	rec.LockLevel = 0
	rec.LockedUntil = nil
}

// ApplyAdminLock sets the administrative lock. Idempotent.
func ApplyAdminLock(rec *credential.Record) {
	rec.PermanentlyLocked = true
}

// ApplyAdminUnlock clears the administrative lock and all escalation state.
// Idempotent; device sessions are not restored.
func ApplyAdminUnlock(rec *credential.Record) {
	rec.PermanentlyLocked = false
	rec.FailedAttempts = 0
	rec.LockLevel = 0
	rec.LockedUntil = nil
}
