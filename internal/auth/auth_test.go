package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Atropina/Falai-Arizona/internal/bus"
	"github.com/Atropina/Falai-Arizona/internal/store"
)

func testProvider(t *testing.T) (*Provider, *store.DB) {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "test.db"), bus.New(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewProvider(db, nil, filepath.Join(dir, "identity")), db
}

func TestSignUpAndSignIn(t *testing.T) {
	p, _ := testProvider(t)

	u, err := p.SignUp("Alice", "Alice@Example.com ", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if u.ID == "" || u.Email != "alice@example.com" {
		t.Errorf("user = %+v, want generated id and normalized email", u)
	}
	if u.PasswordHash == "s3cret" || u.PasswordHash == "" {
		t.Error("password stored without hashing")
	}

	got, err := p.SignIn("alice@example.com", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != u.ID {
		t.Errorf("SignIn returned %s, want %s", got.ID, u.ID)
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	p, _ := testProvider(t)
	if _, err := p.SignUp("Alice", "alice@example.com", "s3cret"); err != nil {
		t.Fatal(err)
	}

	// Unknown email and wrong password fail with the same error.
	if _, err := p.SignIn("nobody@example.com", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: err = %v", err)
	}
	if _, err := p.SignIn("alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: err = %v", err)
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	p, _ := testProvider(t)
	if _, err := p.SignUp("Alice", "alice@example.com", "s3cret"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.SignUp("Impostor", "ALICE@example.com", "other"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate email: err = %v", err)
	}
}

func TestIdentityPersistsAcrossProviders(t *testing.T) {
	p, db := testProvider(t)
	u, err := p.SignUp("Alice", "alice@example.com", "s3cret")
	if err != nil {
		t.Fatal(err)
	}

	// A fresh provider over the same session resumes the identity.
	p2 := NewProvider(db, nil, p.identityPath)
	got, err := p2.Current()
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != u.ID {
		t.Errorf("Current = %v, want %s", got, u.ID)
	}
}

func TestSignOutClearsIdentity(t *testing.T) {
	p, _ := testProvider(t)
	if _, err := p.SignUp("Alice", "alice@example.com", "s3cret"); err != nil {
		t.Fatal(err)
	}
	if err := p.SignOut(); err != nil {
		t.Fatal(err)
	}
	got, err := p.Current()
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("Current after SignOut = %v, want nil", got)
	}
	// Idempotent.
	if err := p.SignOut(); err != nil {
		t.Fatal(err)
	}
}

func TestStaleIdentityReadsSignedOut(t *testing.T) {
	p, _ := testProvider(t)
	if err := os.WriteFile(p.identityPath, []byte("u-deleted\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := p.Current()
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("Current with stale identity = %v, want nil", got)
	}
	if _, err := os.Stat(p.identityPath); !os.IsNotExist(err) {
		t.Error("stale identity file not cleaned up")
	}
}
