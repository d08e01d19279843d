package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestLockAccount_ForcesLogoutEverywhere(t *testing.T) {
	engine, store, _ := newTestEngine(t, testConfig(), nil)
	seedUser(t, engine, store, "u1", "alice", "p@ss1")
	ctx := context.Background()

	loginA, _ := engine.Login(ctx, "alice", "p@ss1", "dev-A", "", "")
	loginB, _ := engine.Login(ctx, "alice", "p@ss1", "dev-B", "", "")

	if err := engine.LockAccount(ctx, "u1", "compromised"); err != nil {
		t.Fatalf("LockAccount failed: %v", err)
	}

	rec, _ := store.FindByIdentity(ctx, "u1")
	if !rec.PermanentlyLocked || rec.LoggedIn {
		t.Fatalf("lock state wrong: %+v", rec)
	}
	for id, dev := range rec.Devices {
		if dev.CurrentRefreshToken != "" {
			t.Fatalf("device %s kept its token through the lock", id)
		}
	}

	// Correct password is now refused with the permanent-lock error.
	if _, err := engine.Login(ctx, "alice", "p@ss1", "dev-A", "", ""); !errors.Is(err, ErrAccountLockedPermanent) {
		t.Fatalf("expected ErrAccountLockedPermanent, got %v", err)
	}
	// Outstanding refresh tokens are dead too.
	for _, tok := range []string{loginA.RefreshToken, loginB.RefreshToken} {
		if _, err := engine.Refresh(ctx, tok, "dev-A"); err == nil {
			t.Fatal("refresh succeeded on a locked account")
		}
	}
}

func TestLockAccount_Idempotent(t *testing.T) {
	engine, store, _ := newTestEngine(t, testConfig(), nil)
	seedUser(t, engine, store, "u1", "alice", "p@ss1")
	ctx := context.Background()

	if err := engine.LockAccount(ctx, "u1", ""); err != nil {
		t.Fatalf("first lock failed: %v", err)
	}
	if err := engine.LockAccount(ctx, "u1", ""); err != nil {
		t.Fatalf("second lock failed: %v", err)
	}
}

func TestUnlockAccount_RestoresAccess(t *testing.T) {
	engine, store, _ := newTestEngine(t, testConfig(), nil)
	seedUser(t, engine, store, "u1", "alice", "p@ss1")
	ctx := context.Background()

	engine.LockAccount(ctx, "u1", "")
	if err := engine.UnlockAccount(ctx, "u1"); err != nil {
		t.Fatalf("UnlockAccount failed: %v", err)
	}

	rec, _ := store.FindByIdentity(ctx, "u1")
	if rec.PermanentlyLocked || rec.FailedAttempts != 0 || rec.LockLevel != 0 || rec.LockedUntil != nil {
		t.Fatalf("lock state not fully cleared: %+v", rec)
	}

	// Sessions are not restored; a fresh login is required and works.
	if _, err := engine.Login(ctx, "alice", "p@ss1", "dev-A", "", ""); err != nil {
		t.Fatalf("login after unlock failed: %v", err)
	}
}

func TestUnlockAccount_ClearsTemporaryLockToo(t *testing.T) {
	cfg := testConfig()
	cfg.Lockout.FailureThreshold = 2

	engine, store, _ := newTestEngine(t, cfg, nil)
	seedUser(t, engine, store, "u1", "alice", "p@ss1")
	ctx := context.Background()

	engine.Login(ctx, "alice", "wrong", "dev-A", "", "")
	engine.Login(ctx, "alice", "wrong", "dev-A", "", "")

	if err := engine.UnlockAccount(ctx, "u1"); err != nil {
		t.Fatalf("UnlockAccount failed: %v", err)
	}
	if _, err := engine.Login(ctx, "alice", "p@ss1", "dev-A", "", ""); err != nil {
		t.Fatalf("login after admin unlock failed: %v", err)
	}
}

func TestAdminOps_UnknownIdentity(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	if err := engine.LockAccount(ctx, "ghost", ""); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound from lock, got %v", err)
	}
	if err := engine.UnlockAccount(ctx, "ghost"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound from unlock, got %v", err)
	}
}
