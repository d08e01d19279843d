package authcore

import (
	"testing"

	"github.com/probelight/authcore/credential"
)

func TestBuild_RequiresSecrets(t *testing.T) {
	_, err := New().WithStore(credential.NewMemoryStore()).Build()
	if err == nil {
		t.Fatal("expected build failure without secrets")
	}

	_, err = New().
		WithStore(credential.NewMemoryStore()).
		WithSecrets([]byte("same"), []byte("same")).
		Build()
	if err == nil {
		t.Fatal("expected build failure with identical secrets")
	}
}

func TestBuild_RequiresBackend(t *testing.T) {
	_, err := New().WithSecrets([]byte("a-secret"), []byte("r-secret")).Build()
	if err == nil {
		t.Fatal("expected build failure without redis or store")
	}
}

func TestBuild_SingleUse(t *testing.T) {
	b := New().WithConfig(testConfig()).WithStore(credential.NewMemoryStore())

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second build to fail")
	}
}

func TestBuild_RejectsInvalidPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.Lockout.FailureThreshold = 0
	if _, err := New().WithConfig(cfg).WithStore(credential.NewMemoryStore()).Build(); err == nil {
		t.Fatal("expected rejection of zero failure threshold")
	}

	cfg = testConfig()
	cfg.Token.AccessExpiry = 0
	if _, err := New().WithConfig(cfg).WithStore(credential.NewMemoryStore()).Build(); err == nil {
		t.Fatal("expected rejection of zero access expiry")
	}
}
