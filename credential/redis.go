package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxTxRetries bounds the optimistic WATCH/MULTI loop. Contention on a single
// identity is rare and short-lived; exhausting this means something is
// hammering one record and the caller gets ErrConflict.
const maxTxRetries = 16

// ErrRecordCorrupt indicates a stored record blob failed to decode.
var ErrRecordCorrupt = errors.New("credential record corrupt")

// RedisStore is a Redis-backed Store. Records are stored as JSON blobs keyed
// by identity, with a separate handle index key per record. AtomicUpdate uses
// an optimistic WATCH transaction: the mutation closure runs host-side
// against the latest decoded record, and the write commits only if no
// concurrent writer touched the key.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a RedisStore with the given key namespace prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ac"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) recordKey(identityRef string) string {
	return s.prefix + ":rec:" + identityRef
}

func (s *RedisStore) handleKey(handle string) string {
	return s.prefix + ":handle:" + NormalizeHandle(handle)
}

// FindByHandle resolves the handle index, then loads the record.
func (s *RedisStore) FindByHandle(ctx context.Context, handle string) (*Record, error) {
	identityRef, err := s.redis.Get(ctx, s.handleKey(handle)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return s.FindByIdentity(ctx, identityRef)
}

// FindByIdentity loads and decodes the record blob for an identity.
func (s *RedisStore) FindByIdentity(ctx context.Context, identityRef string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.recordKey(identityRef)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return decodeRecord(data)
}

// Create persists a new record and its handle index entry in one transaction.
// Both keys are watched so a concurrent Create against either the identity or
// the handle collides cleanly with ErrDuplicate.
func (s *RedisStore) Create(ctx context.Context, rec *Record) error {
	rec.Handle = NormalizeHandle(rec.Handle)
	recKey := s.recordKey(rec.IdentityRef)
	hKey := s.handleKey(rec.Handle)

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			exists, err := tx.Exists(ctx, recKey, hKey).Result()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			if exists > 0 {
				return ErrDuplicate
			}
			blob, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, recKey, blob, 0)
				pipe.Set(ctx, hKey, rec.IdentityRef, 0)
				return nil
			})
			return err
		}, recKey, hKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

// AtomicUpdate reads the latest record, applies fn, and writes the result
// back, retrying the optimistic transaction when a concurrent writer commits
// first. A mutator error aborts with no write and is returned unchanged.
func (s *RedisStore) AtomicUpdate(ctx context.Context, identityRef string, fn Mutator) (*Record, error) {
	key := s.recordKey(identityRef)
	var updated *Record

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			rec, err := decodeRecord(data)
			if err != nil {
				return err
			}
			if err := fn(rec); err != nil {
				return err
			}
			rec.UpdatedAt = time.Now().UTC()
			blob, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, blob, 0)
				return nil
			})
			if err != nil {
				return err
			}
			updated = rec
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, ErrConflict
}

// Delete removes the record and its handle index entry.
func (s *RedisStore) Delete(ctx context.Context, identityRef string) error {
	key := s.recordKey(identityRef)

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			rec, err := decodeRecord(data)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.Del(ctx, s.handleKey(rec.Handle))
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

func decodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecordCorrupt, err)
	}
	return &rec, nil
}
