package authcore

import (
	"context"

	"github.com/probelight/authcore/credential"
	internalaudit "github.com/probelight/authcore/internal/audit"
	"github.com/probelight/authcore/lockout"
)

// LockAccount applies the administrative lock and force-logs-out every
// device. It is idempotent and wins over any time-based lock state. A
// missing record fails closed with ErrRecordNotFound.
func (e *Engine) LockAccount(ctx context.Context, identityRef, reason string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	now := e.now()

	_, err := e.store.AtomicUpdate(ctx, identityRef, func(r *credential.Record) error {
		lockout.ApplyAdminLock(r)
		r.LogoutAll(now)
		return nil
	})
	if err != nil {
		return mapStoreErr(err)
	}

	var meta map[string]string
	if reason != "" {
		meta = map[string]string{"reason": reason}
	}
	e.emit(ctx, internalaudit.EventAccountLocked, identityRef, "", "", "", true, nil, meta)
	return nil
}

// UnlockAccount clears the administrative lock and all failure-escalation
// state. Idempotent; device sessions are not restored — users log in again.
func (e *Engine) UnlockAccount(ctx context.Context, identityRef string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	_, err := e.store.AtomicUpdate(ctx, identityRef, func(r *credential.Record) error {
		lockout.ApplyAdminUnlock(r)
		return nil
	})
	if err != nil {
		return mapStoreErr(err)
	}

	e.emit(ctx, internalaudit.EventAccountUnlocked, identityRef, "", "", "", true, nil, nil)
	return nil
}
