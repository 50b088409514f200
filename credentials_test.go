package triauth_test

import (
	"errors"
	"testing"

	"github.com/triauth/triauth"
	"github.com/triauth/triauth/stores"
)

func newTestDirectory(t *testing.T) *stores.FSDirectory {
	t.Helper()
	return stores.NewFSDirectory(t.TempDir())
}

func registerTestUser(t *testing.T, directory triauth.Directory, username, email, password string) *triauth.Identity {
	t.Helper()
	policy := &triauth.RegistrationPolicy{Directory: directory, Hasher: &triauth.BcryptHasher{}}
	identity, err := policy.Register(username, email, password, nil)
	if err != nil {
		t.Fatalf("Failed to register test user: %v", err)
	}
	return identity
}

func TestCredentialVerify(t *testing.T) {
	directory := newTestDirectory(t)
	registerTestUser(t, directory, "alice", "alice@example.com", "password123")

	verifier := &triauth.CredentialVerifier{Directory: directory, Hasher: &triauth.BcryptHasher{}}

	t.Run("valid credentials", func(t *testing.T) {
		identity, err := verifier.Verify("alice", "password123")
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if identity.Username != "alice" {
			t.Errorf("Expected alice, got %s", identity.Username)
		}
	})

	// Unknown user, wrong password and a password-less account must all
	// fail identically so responses never reveal which part was wrong.
	tests := []struct {
		name     string
		username string
		password string
	}{
		{"unknown username", "nobody", "password123"},
		{"wrong password", "alice", "wrong-password"},
		{"empty password", "alice", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.username, tt.password)
			if !errors.Is(err, triauth.ErrInvalidCredentials) {
				t.Errorf("Expected ErrInvalidCredentials, got %v", err)
			}
		})
	}

	t.Run("oauth-only account has no local login", func(t *testing.T) {
		resolver := &triauth.IdentityResolver{Directory: directory}
		identity, err := resolver.Resolve(&triauth.Assertion{
			Provider:    "google",
			ExternalID:  "g-123",
			Email:       "bob@example.com",
			DisplayName: "Bob Builder",
		})
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}

		_, err = verifier.Verify(identity.Username, "anything")
		if !errors.Is(err, triauth.ErrInvalidCredentials) {
			t.Errorf("Expected ErrInvalidCredentials, got %v", err)
		}
	})
}
