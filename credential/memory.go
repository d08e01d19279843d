package credential

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and embedded deployments.
// A single mutex serializes writes; AtomicUpdate therefore trivially
// satisfies the read-latest-write-back contract. Reads and writes always
// clone, so callers never alias live store state.
type MemoryStore struct {
	mu       sync.Mutex
	byID     map[string]*Record
	byHandle map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]*Record),
		byHandle: make(map[string]string),
	}
}

// FindByHandle resolves a record by its case-insensitive handle.
func (s *MemoryStore) FindByHandle(ctx context.Context, handle string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHandle[NormalizeHandle(handle)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

// FindByIdentity resolves a record by its owning identity reference.
func (s *MemoryStore) FindByIdentity(ctx context.Context, identityRef string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[identityRef]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Create persists a new record, failing with ErrDuplicate on a handle or
// identity collision.
func (s *MemoryStore) Create(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle := NormalizeHandle(rec.Handle)
	if _, ok := s.byID[rec.IdentityRef]; ok {
		return ErrDuplicate
	}
	if _, ok := s.byHandle[handle]; ok {
		return ErrDuplicate
	}

	cp := rec.Clone()
	cp.Handle = handle
	s.byID[cp.IdentityRef] = cp
	s.byHandle[handle] = cp.IdentityRef
	return nil
}

// AtomicUpdate applies fn to the latest record state under the store lock.
func (s *MemoryStore) AtomicUpdate(ctx context.Context, identityRef string, fn Mutator) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[identityRef]
	if !ok {
		return nil, ErrNotFound
	}

	work := rec.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	work.UpdatedAt = time.Now().UTC()
	s.byID[identityRef] = work
	return work.Clone(), nil
}

// Delete removes the record and its handle index entry.
func (s *MemoryStore) Delete(ctx context.Context, identityRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[identityRef]
	if !ok {
		return ErrNotFound
	}
	delete(s.byHandle, NormalizeHandle(rec.Handle))
	delete(s.byID, identityRef)
	return nil
}
