package credential

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates no record exists for the given handle or identity.
	ErrNotFound = errors.New("credential record not found")
	// ErrDuplicate indicates Create collided on the handle or identity key.
	ErrDuplicate = errors.New("credential record already exists")
	// ErrConflict indicates an atomic update lost its optimistic race and
	// exhausted its retries.
	ErrConflict = errors.New("credential record update conflict")
	// ErrStoreUnavailable indicates the backing store is unreachable.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// Mutator is applied to the latest version of a record inside AtomicUpdate.
// Returning an error aborts the update with no write; the error is passed
// through to the caller unchanged.
type Mutator func(*Record) error

// Store is the durable keyed store for credential records. Implementations
// must guarantee that AtomicUpdate reads the latest version of the record and
// writes the mutated result back as a single indivisible operation, so that
// two concurrent failed-login counters never under-count and a refresh racing
// a logout cannot resurrect a cleared token. Operations on different
// identities are fully independent.
type Store interface {
	// FindByHandle resolves a record by its case-insensitive login handle.
	FindByHandle(ctx context.Context, handle string) (*Record, error)
	// FindByIdentity resolves a record by its owning identity reference.
	FindByIdentity(ctx context.Context, identityRef string) (*Record, error)
	// Create persists a new record, failing with ErrDuplicate when the handle
	// or identity is already taken.
	Create(ctx context.Context, rec *Record) error
	// AtomicUpdate applies fn to the latest record state and persists the
	// result atomically, returning the updated record.
	AtomicUpdate(ctx context.Context, identityRef string, fn Mutator) (*Record, error)
	// Delete removes the record and its handle index entry.
	Delete(ctx context.Context, identityRef string) error
}
