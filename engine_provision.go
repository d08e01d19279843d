package authcore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/probelight/authcore/credential"
	internalaudit "github.com/probelight/authcore/internal/audit"
)

// maxHandleProbes bounds numeric-suffix disambiguation before falling back to
// a random suffix.
const maxHandleProbes = 100

// GrantLogin provisions a credential record for an identity that is being
// granted login capability. When no handle is supplied, one is derived from
// the display name with numeric-suffix disambiguation on collision; a
// caller-supplied handle that collides surfaces ErrDuplicateHandle instead.
// The record starts with a system-issued temporary password and the
// force-password-change flag set.
func (e *Engine) GrantLogin(ctx context.Context, input GrantLoginInput) (*GrantLoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if input.IdentityRef == "" {
		return nil, errors.New("identity reference is required")
	}

	tempPassword, err := generateTempPassword()
	if err != nil {
		return nil, err
	}
	hash, err := e.hasher.Hash(tempPassword)
	if err != nil {
		return nil, err
	}

	now := e.now()
	rec := &credential.Record{
		IdentityRef:         input.IdentityRef,
		SecretHash:          hash,
		ForcePasswordChange: true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if supplied := credential.NormalizeHandle(input.Handle); supplied != "" {
		rec.Handle = supplied
		if err := e.store.Create(ctx, rec); err != nil {
			if errors.Is(err, credential.ErrDuplicate) {
				return nil, ErrDuplicateHandle
			}
			return nil, mapStoreErr(err)
		}
	} else {
		handle, err := e.createWithDerivedHandle(ctx, rec, input.DisplayName)
		if err != nil {
			return nil, err
		}
		rec.Handle = handle
	}

	e.emit(ctx, internalaudit.EventLoginGranted, rec.IdentityRef, rec.Handle, "", "", true, nil, nil)
	return &GrantLoginResult{Handle: rec.Handle, TempPassword: tempPassword}, nil
}

// RevokeLogin deletes the credential record, removing login capability. All
// issued refresh tokens die with the record; access tokens expire on their
// own short TTL.
func (e *Engine) RevokeLogin(ctx context.Context, identityRef string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.store.Delete(ctx, identityRef); err != nil {
		return mapStoreErr(err)
	}

	e.emit(ctx, internalaudit.EventLoginRevoked, identityRef, "", "", "", true, nil, nil)
	return nil
}

// createWithDerivedHandle tries base, base1, base2, ... until Create stops
// colliding. Identity collisions (not handle collisions) abort immediately:
// exactly one record may exist per identity.
func (e *Engine) createWithDerivedHandle(ctx context.Context, rec *credential.Record, displayName string) (string, error) {
	base := deriveHandleBase(displayName)

	for i := 0; i <= maxHandleProbes; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s%d", base, i)
		}
		rec.Handle = candidate

		err := e.store.Create(ctx, rec)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, credential.ErrDuplicate) {
			return "", mapStoreErr(err)
		}
		if _, ferr := e.store.FindByIdentity(ctx, rec.IdentityRef); ferr == nil {
			return "", ErrDuplicateHandle
		}
	}

	// Pathological collision density: salt with a short random suffix.
	rec.Handle = base + "-" + uuid.NewString()[:8]
	if err := e.store.Create(ctx, rec); err != nil {
		return "", mapStoreErr(err)
	}
	return rec.Handle, nil
}

func deriveHandleBase(displayName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(displayName)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}

func generateTempPassword() (string, error) {
	raw := make([]byte, 18)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
