package credential

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisStore(rdb, "actest")
}

func seedRecord(t *testing.T, store *RedisStore, identityRef, handle string) {
	t.Helper()
	err := store.Create(context.Background(), &Record{
		IdentityRef: identityRef,
		Handle:      handle,
		SecretHash:  "$argon2id$...",
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed create failed: %v", err)
	}
}

func TestRedisStore_CreateAndFind(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()
	seedRecord(t, store, "u1", "Alice")

	// Handle lookups are case-insensitive.
	rec, err := store.FindByHandle(ctx, "ALICE")
	if err != nil {
		t.Fatalf("FindByHandle failed: %v", err)
	}
	if rec.IdentityRef != "u1" || rec.Handle != "alice" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	rec, err = store.FindByIdentity(ctx, "u1")
	if err != nil || rec.Handle != "alice" {
		t.Fatalf("FindByIdentity failed: %v %+v", err, rec)
	}

	if _, err := store.FindByHandle(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStore_CreateDuplicate(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()
	seedRecord(t, store, "u1", "alice")

	err := store.Create(ctx, &Record{IdentityRef: "u2", Handle: "ALICE"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on handle collision, got %v", err)
	}
	err = store.Create(ctx, &Record{IdentityRef: "u1", Handle: "other"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on identity collision, got %v", err)
	}
}

func TestRedisStore_AtomicUpdateMutatorErrorAborts(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()
	seedRecord(t, store, "u1", "alice")

	boom := errors.New("boom")
	_, err := store.AtomicUpdate(ctx, "u1", func(r *Record) error {
		r.FailedAttempts = 99
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("mutator error not passed through: %v", err)
	}

	rec, _ := store.FindByIdentity(ctx, "u1")
	if rec.FailedAttempts != 0 {
		t.Fatal("aborted mutation was persisted")
	}
}

func TestRedisStore_AtomicUpdateUnknownIdentity(t *testing.T) {
	store := newRedisStore(t)
	_, err := store.AtomicUpdate(context.Background(), "ghost", func(r *Record) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStore_ConcurrentFailureCountsNeverUnderCount(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()
	seedRecord(t, store, "u1", "alice")

	const writers = 20
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := store.AtomicUpdate(ctx, "u1", func(r *Record) error {
				r.FailedAttempts++
				return nil
			})
			if err != nil {
				t.Errorf("concurrent update failed: %v", err)
			}
		}()
	}
	wg.Wait()

	rec, _ := store.FindByIdentity(ctx, "u1")
	if rec.FailedAttempts != writers {
		t.Fatalf("expected %d failures recorded, got %d", writers, rec.FailedAttempts)
	}
}

func TestRedisStore_DeleteRemovesHandleIndex(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()
	seedRecord(t, store, "u1", "alice")

	if err := store.Delete(ctx, "u1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.FindByHandle(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatal("handle index entry survived delete")
	}
	if err := store.Delete(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	// The handle is reusable after deletion.
	seedRecord(t, store, "u2", "alice")
}
