package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLogout_SingleDevice(t *testing.T) {
	engine, store, _ := newTestEngine(t, testConfig(), nil)
	seedUser(t, engine, store, "u1", "alice", "p@ss1")
	ctx := context.Background()

	loginA, _ := engine.Login(ctx, "alice", "p@ss1", "dev-A", "", "")
	loginB, _ := engine.Login(ctx, "alice", "p@ss1", "dev-B", "", "")

	known, err := engine.Logout(ctx, "u1", "dev-A")
	if err != nil || !known {
		t.Fatalf("logout failed: known=%v err=%v", known, err)
	}

	// dev-A's token is dead, dev-B's survives.
	if _, err := engine.Refresh(ctx, loginA.RefreshToken, "dev-A"); !errors.Is(err, ErrDeviceTokenMismatch) {
		t.Fatalf("expected mismatch after logout, got %v", err)
	}
	if _, err := engine.Refresh(ctx, loginB.RefreshToken, "dev-B"); err != nil {
		t.Fatalf("dev-B refresh failed after dev-A logout: %v", err)
	}

	rec, _ := store.FindByIdentity(ctx, "u1")
	if !rec.LoggedIn {
		t.Fatal("LoggedIn must stay true while dev-B holds a session")
	}
}

func TestLogout_LastDeviceClearsLoggedIn(t *testing.T) {
	engine, store, _ := newTestEngine(t, testConfig(), nil)
	seedUser(t, engine, store, "u1", "alice", "p@ss1")
	ctx := context.Background()

	engine.Login(ctx, "alice", "p@ss1", "dev-A", "", "")
	engine.Logout(ctx, "u1", "dev-A")

	rec, _ := store.FindByIdentity(ctx, "u1")
	if rec.LoggedIn {
		t.Fatal("LoggedIn must clear when the last session closes")
	}
}

func TestLogout_UnknownDevice(t *testing.T) {
	engine, store, _ := newTestEngine(t, testConfig(), nil)
	seedUser(t, engine, store, "u1", "alice", "p@ss1")
	ctx := context.Background()

	known, err := engine.Logout(ctx, "u1", "dev-X")
	if err != nil {
		t.Fatalf("logout errored: %v", err)
	}
	if known {
		t.Fatal("unknown device must report false")
	}

	if _, err := engine.Logout(ctx, "ghost", "dev-A"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestLogoutAll_KillsEveryDevice(t *testing.T) {
	engine, store, _ := newTestEngine(t, testConfig(), nil)
	seedUser(t, engine, store, "u1", "alice", "p@ss1")
	ctx := context.Background()

	loginA, _ := engine.Login(ctx, "alice", "p@ss1", "dev-A", "", "")
	loginB, _ := engine.Login(ctx, "alice", "p@ss1", "dev-B", "", "")

	if err := engine.LogoutAll(ctx, "u1"); err != nil {
		t.Fatalf("LogoutAll failed: %v", err)
	}

	for _, tok := range []string{loginA.RefreshToken, loginB.RefreshToken} {
		if _, err := engine.Refresh(ctx, tok, "dev-A"); err == nil {
			t.Fatal("refresh succeeded after LogoutAll")
		}
	}

	rec, _ := store.FindByIdentity(ctx, "u1")
	if rec.LoggedIn || rec.RefreshTokens != nil {
		t.Fatalf("session state not cleared: %+v", rec)
	}
}

func TestRevokeToken_NextRefreshStillRotates(t *testing.T) {
	// Revocation trims the audit list only. The device binding is what gates
	// refresh, so a revoked-but-still-current token keeps working until
	// logout.
	engine, store, _ := newTestEngine(t, testConfig(), nil)
	seedUser(t, engine, store, "u1", "alice", "p@ss1")
	ctx := context.Background()

	login, _ := engine.Login(ctx, "alice", "p@ss1", "dev-A", "", "")

	revoked, err := engine.RevokeToken(ctx, "u1", login.RefreshToken)
	if err != nil || !revoked {
		t.Fatalf("revoke failed: revoked=%v err=%v", revoked, err)
	}

	revoked, err = engine.RevokeToken(ctx, "u1", login.RefreshToken)
	if err != nil {
		t.Fatalf("second revoke errored: %v", err)
	}
	if revoked {
		t.Fatal("second revoke of the same token must report false")
	}

	rec, _ := store.FindByIdentity(ctx, "u1")
	if len(rec.RefreshTokens) != 0 {
		t.Fatalf("audit list not trimmed: %+v", rec.RefreshTokens)
	}
	if rec.Devices["dev-A"].CurrentRefreshToken != login.RefreshToken {
		t.Fatal("revoke must not touch the device binding")
	}
}

func TestActiveDevices_Listing(t *testing.T) {
	engine, store, clock := newTestEngine(t, testConfig(), nil)
	seedUser(t, engine, store, "u1", "alice", "p@ss1")
	ctx := context.Background()

	engine.Login(ctx, "alice", "p@ss1", "dev-A", "10.0.0.1", "cli")
	clock.Advance(time.Second)
	engine.Login(ctx, "alice", "p@ss1", "dev-B", "10.0.0.2", "web")

	devices, err := engine.ActiveDevices(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveDevices failed: %v", err)
	}
	if len(devices) != 2 || devices[0].DeviceID != "dev-B" {
		t.Fatalf("unexpected listing: %+v", devices)
	}

	if _, err := engine.ActiveDevices(ctx, "ghost"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}
