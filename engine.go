package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/probelight/authcore/credential"
	internalaudit "github.com/probelight/authcore/internal/audit"
	"github.com/probelight/authcore/lockout"
	"github.com/probelight/authcore/token"
)

// Engine is the login/session orchestrator. All methods are safe for
// concurrent use; every record mutation goes through the store's atomic
// read-modify-write, and password hashing / token signing happen before the
// mutation so the record is never held across CPU-bound work.
type Engine struct {
	config Config
	store  credential.Store
	hasher passwordHasher
	issuer *token.Issuer
	gate   IdentityGate
	audit  *internalaudit.Dispatcher

	caps       credential.Caps
	lockPolicy lockout.Config
	now        func() time.Time
}

type passwordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// Close drains and stops the audit dispatcher.
func (e *Engine) Close() {
	e.audit.Close()
}

// Login authenticates a handle/password pair and binds the issued refresh
// token to the given device. deviceID may be empty; it is normalized to the
// "unknown" sentinel. The error taxonomy deliberately collapses unknown
// handle and wrong password into ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, loginID, pwd, deviceID, ip, userAgent string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	now := e.now()
	deviceID = credential.NormalizeDeviceID(deviceID)

	rec, err := e.resolveRecord(ctx, loginID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			e.emit(ctx, internalaudit.EventLoginFailure, "", loginID, deviceID, ip, false, ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	switch decision := lockout.Evaluate(rec, now); decision.Outcome {
	case lockout.DenyPermanent:
		e.emit(ctx, internalaudit.EventLoginLocked, rec.IdentityRef, rec.Handle, deviceID, ip, false, ErrAccountLockedPermanent, nil)
		return nil, ErrAccountLockedPermanent
	case lockout.DenyTemporary:
		lockErr := &TemporaryLockError{Remaining: decision.Remaining}
		e.emit(ctx, internalaudit.EventLoginLocked, rec.IdentityRef, rec.Handle, deviceID, ip, false, lockErr, nil)
		return nil, lockErr
	}

	// CPU-bound verification runs against the fetched copy; failure counting
	// is applied afterwards inside the atomic update so concurrent failures
	// never under-count.
	ok, err := e.hasher.Verify(pwd, rec.SecretHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		locked := false
		if _, uerr := e.store.AtomicUpdate(ctx, rec.IdentityRef, func(r *credential.Record) error {
			locked = e.lockPolicy.ApplyFailure(r, now)
			return nil
		}); uerr != nil && !errors.Is(uerr, credential.ErrNotFound) {
			return nil, mapStoreErr(uerr)
		}
		meta := map[string]string{}
		if locked {
			meta["lock_triggered"] = "1"
		}
		e.emit(ctx, internalaudit.EventLoginFailure, rec.IdentityRef, rec.Handle, deviceID, ip, false, ErrInvalidCredentials, meta)
		return nil, ErrInvalidCredentials
	}

	// Enablement is checked only after the password verified, so probing with
	// a wrong password cannot reveal it. A denial is not a failed attempt.
	if e.gate != nil {
		allowed, gerr := e.gate.Allowed(ctx, rec.IdentityRef)
		if gerr != nil {
			return nil, gerr
		}
		if !allowed {
			e.emit(ctx, internalaudit.EventLoginFailure, rec.IdentityRef, rec.Handle, deviceID, ip, false, ErrLoginDisabled, nil)
			return nil, ErrLoginDisabled
		}
	}

	accessToken, err := e.issuer.MintAccess(rec.IdentityRef, rec.Handle, now)
	if err != nil {
		return nil, err
	}
	refreshToken, err := e.issuer.MintRefresh(rec.IdentityRef, now)
	if err != nil {
		return nil, err
	}

	updated, err := e.store.AtomicUpdate(ctx, rec.IdentityRef, func(r *credential.Record) error {
		// A concurrent administrative lock wins over an in-flight login.
		if r.PermanentlyLocked {
			return ErrAccountLockedPermanent
		}
		lockout.ApplySuccess(r)
		r.LoggedIn = true
		t := now
		r.LastLoginAt = &t
		r.BindDevice(deviceID, refreshToken, ip, userAgent, now, e.caps)
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	e.emit(ctx, internalaudit.EventLoginSuccess, updated.IdentityRef, updated.Handle, deviceID, ip, true, nil, nil)

	return &LoginResult{
		Identity:            summarize(updated),
		AccessToken:         accessToken,
		RefreshToken:        refreshToken,
		DeviceID:            deviceID,
		ForcePasswordChange: updated.ForcePasswordChange,
	}, nil
}

// Refresh rotates a device's refresh token and mints a new access token. The
// presented token must be the device's current token; anything else fails
// with ErrDeviceTokenMismatch and never touches lockout counters.
func (e *Engine) Refresh(ctx context.Context, refreshToken, deviceID string) (*RefreshResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	now := e.now()
	deviceID = credential.NormalizeDeviceID(deviceID)

	claims, err := e.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, mapTokenErr(err)
	}

	rec, err := e.store.FindByIdentity(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, mapStoreErr(err)
	}

	// Sign the replacement pair before entering the atomic update; the
	// rotation check repeats inside it against the latest record state.
	accessToken, err := e.issuer.MintAccess(rec.IdentityRef, rec.Handle, now)
	if err != nil {
		return nil, err
	}
	nextRefresh, err := e.issuer.MintRefresh(rec.IdentityRef, now)
	if err != nil {
		return nil, err
	}

	_, err = e.store.AtomicUpdate(ctx, rec.IdentityRef, func(r *credential.Record) error {
		if r.PermanentlyLocked {
			return ErrAccountLockedPermanent
		}
		if !r.RotateToken(deviceID, refreshToken, nextRefresh, now, e.caps) {
			return ErrDeviceTokenMismatch
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDeviceTokenMismatch) {
			e.emit(ctx, internalaudit.EventRefreshMismatch, rec.IdentityRef, rec.Handle, deviceID, "", false, err, nil)
		}
		return nil, mapStoreErr(err)
	}

	e.emit(ctx, internalaudit.EventRefreshSuccess, rec.IdentityRef, rec.Handle, deviceID, "", true, nil, nil)

	return &RefreshResult{
		AccessToken:  accessToken,
		RefreshToken: nextRefresh,
		DeviceID:     deviceID,
	}, nil
}

// Logout closes the device's session and clears its refresh token. Returns
// false when the device id is unknown to the record.
func (e *Engine) Logout(ctx context.Context, identityRef, deviceID string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	now := e.now()
	deviceID = credential.NormalizeDeviceID(deviceID)

	known := false
	_, err := e.store.AtomicUpdate(ctx, identityRef, func(r *credential.Record) error {
		known = r.LogoutDevice(deviceID, now)
		r.LoggedIn = r.HasLiveSession()
		return nil
	})
	if err != nil {
		return false, mapStoreErr(err)
	}

	e.emit(ctx, internalaudit.EventLogout, identityRef, "", deviceID, "", known, nil, nil)
	return known, nil
}

// LogoutAll closes every device session and clears the audit-level refresh
// token list.
func (e *Engine) LogoutAll(ctx context.Context, identityRef string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	now := e.now()

	_, err := e.store.AtomicUpdate(ctx, identityRef, func(r *credential.Record) error {
		r.LogoutAll(now)
		return nil
	})
	if err != nil {
		return mapStoreErr(err)
	}

	e.emit(ctx, internalaudit.EventLogoutAll, identityRef, "", "", "", true, nil, nil)
	return nil
}

// RevokeToken removes one entry from the record's audit-level refresh token
// list. Device bindings are untouched; a device whose current token is
// revoked here simply fails its next refresh. Returns false when no entry
// matched.
func (e *Engine) RevokeToken(ctx context.Context, identityRef, tokenStr string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}

	revoked := false
	_, err := e.store.AtomicUpdate(ctx, identityRef, func(r *credential.Record) error {
		revoked = r.Revoke(tokenStr)
		return nil
	})
	if err != nil {
		return false, mapStoreErr(err)
	}

	e.emit(ctx, internalaudit.EventTokenRevoked, identityRef, "", "", "", revoked, nil, nil)
	return revoked, nil
}

// ChangePassword verifies the old password, installs the new hash, and
// unconditionally invalidates every device session — including the calling
// device. Re-authentication everywhere is the point.
func (e *Engine) ChangePassword(ctx context.Context, identityRef, oldPwd, newPwd string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if len(newPwd) < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}
	now := e.now()

	rec, err := e.store.FindByIdentity(ctx, identityRef)
	if err != nil {
		return mapStoreErr(err)
	}

	ok, err := e.hasher.Verify(oldPwd, rec.SecretHash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}

	newHash, err := e.hasher.Hash(newPwd)
	if err != nil {
		return err
	}

	_, err = e.store.AtomicUpdate(ctx, identityRef, func(r *credential.Record) error {
		r.SecretHash = newHash
		r.ForcePasswordChange = false
		r.LogoutAll(now)
		return nil
	})
	if err != nil {
		return mapStoreErr(err)
	}

	e.emit(ctx, internalaudit.EventPasswordChanged, identityRef, rec.Handle, "", "", true, nil, nil)
	return nil
}

// ActiveDevices lists the identity's device sessions, most recent login
// first.
func (e *Engine) ActiveDevices(ctx context.Context, identityRef string) ([]DeviceSummary, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	rec, err := e.store.FindByIdentity(ctx, identityRef)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return rec.ActiveDevices(), nil
}

// ValidateAccess verifies an access token's signature and expiry and returns
// its subject. Stateless: no store round-trip.
func (e *Engine) ValidateAccess(tokenStr string) (*AccessIdentity, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.issuer.VerifyAccess(tokenStr)
	if err != nil {
		return nil, mapTokenErr(err)
	}
	return &AccessIdentity{IdentityRef: claims.Subject, Handle: claims.Handle}, nil
}

// resolveRecord implements the login fallback chain: handle lookup first,
// then secondary-identifier resolution through the identity gate, then
// identity lookup. Every miss collapses to credential.ErrNotFound so callers
// cannot enumerate handles.
func (e *Engine) resolveRecord(ctx context.Context, loginID string) (*credential.Record, error) {
	rec, err := e.store.FindByHandle(ctx, loginID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, credential.ErrNotFound) {
		return nil, mapStoreErr(err)
	}

	if e.gate == nil {
		return nil, credential.ErrNotFound
	}
	identityRef, ok, err := e.gate.Resolve(ctx, loginID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, credential.ErrNotFound
	}
	return e.store.FindByIdentity(ctx, identityRef)
}

func (e *Engine) emit(ctx context.Context, eventType, identityRef, handle, deviceID, ip string, success bool, cause error, meta map[string]string) {
	if e.audit == nil {
		return
	}
	event := internalaudit.Event{
		Timestamp:   e.now().UTC(),
		EventType:   eventType,
		IdentityRef: identityRef,
		Handle:      handle,
		DeviceID:    deviceID,
		IP:          ip,
		Success:     success,
		Metadata:    meta,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	e.audit.Emit(ctx, event)
}

func summarize(rec *credential.Record) IdentitySummary {
	return IdentitySummary{
		IdentityRef: rec.IdentityRef,
		Handle:      rec.Handle,
		LastLoginAt: rec.LastLoginAt,
	}
}

func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, credential.ErrNotFound):
		return ErrRecordNotFound
	case errors.Is(err, credential.ErrConflict):
		return ErrStoreConflict
	default:
		return err
	}
}

func mapTokenErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, token.ErrExpired):
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}
}
