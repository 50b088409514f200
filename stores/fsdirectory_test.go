package stores_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/triauth/triauth"
	"github.com/triauth/triauth/stores"
)

func newIdentity(id, username, email string) *triauth.Identity {
	now := time.Now()
	return &triauth.Identity{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: "hash",
		Roles:        []string{triauth.RoleUser},
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}
}

func TestFSDirectoryCreateAndFind(t *testing.T) {
	dir := stores.NewFSDirectory(t.TempDir())

	identity := newIdentity("id-1", "alice", "alice@example.com")
	identity.Provider = "google"
	identity.ExternalID = "g-1"
	if err := dir.Create(identity); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	tests := []struct {
		name string
		find func() (*triauth.Identity, error)
	}{
		{"by id", func() (*triauth.Identity, error) { return dir.FindByID("id-1") }},
		{"by username", func() (*triauth.Identity, error) { return dir.FindByUsername("alice") }},
		{"by email", func() (*triauth.Identity, error) { return dir.FindByEmail("alice@example.com") }},
		{"by provider id", func() (*triauth.Identity, error) { return dir.FindByProviderID("google", "g-1") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := tt.find()
			if err != nil {
				t.Fatalf("Lookup failed: %v", err)
			}
			if found == nil || found.ID != "id-1" {
				t.Errorf("Expected id-1, got %+v", found)
			}
			if len(found.Roles) != 1 || found.Roles[0] != triauth.RoleUser {
				t.Errorf("Roles not preserved: %v", found.Roles)
			}
		})
	}

	t.Run("missing records return nil without error", func(t *testing.T) {
		for name, find := range map[string]func() (*triauth.Identity, error){
			"id":       func() (*triauth.Identity, error) { return dir.FindByID("ghost") },
			"username": func() (*triauth.Identity, error) { return dir.FindByUsername("ghost") },
			"email":    func() (*triauth.Identity, error) { return dir.FindByEmail("ghost@example.com") },
			"provider": func() (*triauth.Identity, error) { return dir.FindByProviderID("google", "ghost") },
		} {
			found, err := find()
			if err != nil {
				t.Errorf("Lookup by %s errored: %v", name, err)
			}
			if found != nil {
				t.Errorf("Lookup by %s returned %+v, want nil", name, found)
			}
		}
	})

	t.Run("username lookup is case-insensitive", func(t *testing.T) {
		found, err := dir.FindByUsername("ALICE")
		if err != nil || found == nil {
			t.Errorf("Expected case-insensitive match, got %+v, %v", found, err)
		}
	})
}

func TestFSDirectoryUniqueness(t *testing.T) {
	dir := stores.NewFSDirectory(t.TempDir())

	first := newIdentity("id-1", "alice", "alice@example.com")
	first.Provider = "google"
	first.ExternalID = "g-1"
	if err := dir.Create(first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	tests := []struct {
		name    string
		ident   *triauth.Identity
		wantErr error
	}{
		{"duplicate username", newIdentity("id-2", "alice", "other@example.com"), triauth.ErrUsernameTaken},
		{"duplicate email", newIdentity("id-2", "bob", "alice@example.com"), triauth.ErrEmailTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := dir.Create(tt.ident); !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	t.Run("duplicate provider binding", func(t *testing.T) {
		dup := newIdentity("id-2", "bob", "bob@example.com")
		dup.Provider = "google"
		dup.ExternalID = "g-1"
		if err := dir.Create(dup); !errors.Is(err, triauth.ErrAlreadyLinked) {
			t.Errorf("Expected ErrAlreadyLinked, got %v", err)
		}
	})
}

func TestFSDirectoryConcurrentCreate(t *testing.T) {
	dir := stores.NewFSDirectory(t.TempDir())

	const racers = 16
	var wg sync.WaitGroup
	errs := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ident := newIdentity(fmt.Sprintf("id-%d", i), "alice", fmt.Sprintf("a%d@example.com", i))
			errs[i] = dir.Create(ident)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else if !errors.Is(err, triauth.ErrUsernameTaken) {
			t.Errorf("Loser saw unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("Expected exactly one winner, got %d", winners)
	}
}

func TestFSDirectoryUpdateVersionGuard(t *testing.T) {
	dir := stores.NewFSDirectory(t.TempDir())

	if err := dir.Create(newIdentity("id-1", "alice", "alice@example.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Two readers grab the same version
	a, _ := dir.FindByID("id-1")
	b, _ := dir.FindByID("id-1")

	a.Provider = "google"
	a.ExternalID = "g-1"
	if err := dir.Update(a); err != nil {
		t.Fatalf("First update failed: %v", err)
	}
	if a.Version != 2 {
		t.Errorf("Expected version bump to 2, got %d", a.Version)
	}

	b.Provider = "github"
	b.ExternalID = "gh-1"
	if err := dir.Update(b); !errors.Is(err, triauth.ErrVersionConflict) {
		t.Errorf("Expected ErrVersionConflict for stale writer, got %v", err)
	}

	// Winner's binding survives
	stored, _ := dir.FindByID("id-1")
	if stored.Provider != "google" {
		t.Errorf("Expected google binding, got %s", stored.Provider)
	}

	t.Run("updating a missing identity", func(t *testing.T) {
		ghost := newIdentity("ghost", "ghost", "ghost@example.com")
		if err := dir.Update(ghost); !errors.Is(err, triauth.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestFSDirectoryUnlinkClearsIndex(t *testing.T) {
	dir := stores.NewFSDirectory(t.TempDir())

	ident := newIdentity("id-1", "alice", "alice@example.com")
	ident.Provider = "google"
	ident.ExternalID = "g-1"
	if err := dir.Create(ident); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	stored, _ := dir.FindByID("id-1")
	stored.Provider = ""
	stored.ExternalID = ""
	if err := dir.Update(stored); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	found, err := dir.FindByProviderID("google", "g-1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if found != nil {
		t.Errorf("Stale provider index entry survived unlink: %+v", found)
	}

	// The binding is free for someone else now
	other := newIdentity("id-2", "bob", "bob@example.com")
	other.Provider = "google"
	other.ExternalID = "g-1"
	if err := dir.Create(other); err != nil {
		t.Errorf("Binding should be reusable after unlink: %v", err)
	}
}
