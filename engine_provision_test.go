package authcore

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestGrantLogin_DerivesHandleFromDisplayName(t *testing.T) {
	engine, store, _ := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	grant, err := engine.GrantLogin(ctx, GrantLoginInput{IdentityRef: "u1", DisplayName: "Jane Doe"})
	if err != nil {
		t.Fatalf("GrantLogin failed: %v", err)
	}
	if grant.Handle != "janedoe" {
		t.Fatalf("expected derived handle janedoe, got %q", grant.Handle)
	}
	if grant.TempPassword == "" {
		t.Fatal("expected a temporary password")
	}

	rec, _ := store.FindByIdentity(ctx, "u1")
	if !rec.ForcePasswordChange {
		t.Fatal("fresh grant must require a password change")
	}
}

func TestGrantLogin_NumericSuffixOnCollision(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	handles := make([]string, 0, 3)
	for i, id := range []string{"u1", "u2", "u3"} {
		grant, err := engine.GrantLogin(ctx, GrantLoginInput{IdentityRef: id, DisplayName: "Jane Doe"})
		if err != nil {
			t.Fatalf("grant %d failed: %v", i, err)
		}
		handles = append(handles, grant.Handle)
	}

	if handles[0] != "janedoe" || handles[1] != "janedoe1" || handles[2] != "janedoe2" {
		t.Fatalf("unexpected disambiguation sequence: %v", handles)
	}
}

func TestGrantLogin_ExplicitHandleCollision(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	if _, err := engine.GrantLogin(ctx, GrantLoginInput{IdentityRef: "u1", Handle: "jane"}); err != nil {
		t.Fatalf("first grant failed: %v", err)
	}

	// A caller-supplied handle gets no automatic disambiguation.
	_, err := engine.GrantLogin(ctx, GrantLoginInput{IdentityRef: "u2", Handle: "JANE"})
	if !errors.Is(err, ErrDuplicateHandle) {
		t.Fatalf("expected ErrDuplicateHandle, got %v", err)
	}
}

func TestGrantLogin_OneRecordPerIdentity(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	if _, err := engine.GrantLogin(ctx, GrantLoginInput{IdentityRef: "u1", DisplayName: "Jane"}); err != nil {
		t.Fatalf("first grant failed: %v", err)
	}
	if _, err := engine.GrantLogin(ctx, GrantLoginInput{IdentityRef: "u1", DisplayName: "Jane"}); err == nil {
		t.Fatal("second grant for the same identity must fail")
	}
}

func TestGrantLogin_UnusableDisplayName(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig(), nil)

	grant, err := engine.GrantLogin(context.Background(), GrantLoginInput{IdentityRef: "u1", DisplayName: "!!! ***"})
	if err != nil {
		t.Fatalf("GrantLogin failed: %v", err)
	}
	if !strings.HasPrefix(grant.Handle, "user") {
		t.Fatalf("expected fallback handle base, got %q", grant.Handle)
	}
}

func TestGrantLogin_TempPasswordLogsIn(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	grant, err := engine.GrantLogin(ctx, GrantLoginInput{IdentityRef: "u1", DisplayName: "Jane"})
	if err != nil {
		t.Fatalf("GrantLogin failed: %v", err)
	}

	res, err := engine.Login(ctx, grant.Handle, grant.TempPassword, "dev-A", "", "")
	if err != nil {
		t.Fatalf("temp-password login failed: %v", err)
	}
	if !res.ForcePasswordChange {
		t.Fatal("login result must surface the forced change")
	}
}

func TestRevokeLogin_DeletesRecord(t *testing.T) {
	engine, store, _ := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	grant, _ := engine.GrantLogin(ctx, GrantLoginInput{IdentityRef: "u1", DisplayName: "Jane"})
	login, err := engine.Login(ctx, grant.Handle, grant.TempPassword, "dev-A", "", "")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := engine.RevokeLogin(ctx, "u1"); err != nil {
		t.Fatalf("RevokeLogin failed: %v", err)
	}

	if _, err := store.FindByIdentity(ctx, "u1"); err == nil {
		t.Fatal("record survived revocation")
	}
	// Outstanding refresh tokens die with the record.
	if _, err := engine.Refresh(ctx, login.RefreshToken, "dev-A"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid after revocation, got %v", err)
	}
	// The handle is free for a future grant.
	if _, err := engine.GrantLogin(ctx, GrantLoginInput{IdentityRef: "u2", Handle: grant.Handle}); err != nil {
		t.Fatalf("handle not reusable after revocation: %v", err)
	}

	if err := engine.RevokeLogin(ctx, "ghost"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}
