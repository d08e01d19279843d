package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials covers both an unknown login handle and a wrong
	// password; the two are deliberately indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLockedPermanent is returned while an administrative lock is in
	// force. Only UnlockAccount clears it.
	ErrAccountLockedPermanent = errors.New("account permanently locked")
	// ErrAccountLockedTemporary is returned while a failure-escalation lock is
	// in force. Login wraps it in a [TemporaryLockError] carrying the
	// remaining lock time.
	ErrAccountLockedTemporary = errors.New("account temporarily locked")
	// ErrLoginDisabled means the identity exists and the password verified,
	// but user management does not permit it to authenticate.
	ErrLoginDisabled = errors.New("login disabled for this account")
	// ErrDeviceTokenMismatch means the presented refresh token is not the
	// device's current token. It never counts as a failed login attempt.
	ErrDeviceTokenMismatch = errors.New("refresh token does not match device session")
	// ErrTokenExpired is returned for a well-formed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for a malformed or tampered token.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrRecordNotFound is returned by administrative operations addressing an
	// identity with no credential record.
	ErrRecordNotFound = errors.New("credential record not found")
	// ErrDuplicateHandle is returned when a caller-supplied login handle
	// collides with an existing record. Auto-derived handles never surface it.
	ErrDuplicateHandle = errors.New("login handle already in use")
	// ErrPasswordPolicy is returned when a new password fails the configured
	// minimum length.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrStoreConflict is returned when an atomic record update could not be
	// committed after bounded retries.
	ErrStoreConflict = errors.New("credential record update conflict")
	// ErrEngineNotReady is returned by Engine methods before Build completed.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// TemporaryLockError carries the remaining lock time of a temporary lockout.
// It matches ErrAccountLockedTemporary under errors.Is.
type TemporaryLockError struct {
	Remaining time.Duration
}

func (e *TemporaryLockError) Error() string {
	return fmt.Sprintf("account temporarily locked, retry in %s", e.Remaining.Round(time.Second))
}

func (e *TemporaryLockError) Unwrap() error {
	return ErrAccountLockedTemporary
}
