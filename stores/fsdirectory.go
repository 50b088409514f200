// Package stores provides filesystem-backed implementations of the
// Directory and TemplateStore interfaces, storing records as JSON files.
// Suited to development and small single-process deployments; the gorm
// subpackage backs the same interfaces with a relational database.
package stores

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/triauth/triauth"
)

// FSDirectory stores identities as JSON files under StoragePath.
//
// Layout:
//
//	identities/<id>.json          the identity record
//	index/username/<key>.json     username -> id
//	index/email/<key>.json        email -> id
//	index/provider/<key>.json     (provider, external id) -> id
//
// All mutations hold a process-wide mutex, which is what makes Create's
// uniqueness check and Update's version guard atomic. The index files are
// derived data; the identity record is the source of truth.
type FSDirectory struct {
	StoragePath string

	mu sync.Mutex
}

func NewFSDirectory(storagePath string) *FSDirectory {
	return &FSDirectory{StoragePath: storagePath}
}

type indexEntry struct {
	ID string `json:"id"`
}

func (s *FSDirectory) identityPath(id string) string {
	return filepath.Join(s.StoragePath, "identities", filepath.Base(id)+".json")
}

func (s *FSDirectory) usernameIndexPath(username string) string {
	return filepath.Join(s.StoragePath, "index", "username", filepath.Base(strings.ToLower(username))+".json")
}

func (s *FSDirectory) emailIndexPath(email string) string {
	return filepath.Join(s.StoragePath, "index", "email", filepath.Base(strings.ToLower(email))+".json")
}

func (s *FSDirectory) providerIndexPath(provider, externalID string) string {
	key := filepath.Base(provider + "-" + externalID)
	return filepath.Join(s.StoragePath, "index", "provider", key+".json")
}

func (s *FSDirectory) FindByID(id string) (*triauth.Identity, error) {
	var identity triauth.Identity
	found, err := readJSONFile(s.identityPath(id), &identity)
	if err != nil || !found {
		return nil, err
	}
	return &identity, nil
}

func (s *FSDirectory) FindByUsername(username string) (*triauth.Identity, error) {
	return s.findViaIndex(s.usernameIndexPath(username))
}

func (s *FSDirectory) FindByEmail(email string) (*triauth.Identity, error) {
	return s.findViaIndex(s.emailIndexPath(email))
}

func (s *FSDirectory) FindByProviderID(provider, externalID string) (*triauth.Identity, error) {
	if provider == "" || externalID == "" {
		return nil, nil
	}
	return s.findViaIndex(s.providerIndexPath(provider, externalID))
}

func (s *FSDirectory) findViaIndex(indexPath string) (*triauth.Identity, error) {
	var entry indexEntry
	found, err := readJSONFile(indexPath, &entry)
	if err != nil || !found {
		return nil, err
	}
	return s.FindByID(entry.ID)
}

func (s *FSDirectory) ExistsByUsername(username string) (bool, error) {
	return fileExists(s.usernameIndexPath(username))
}

func (s *FSDirectory) ExistsByEmail(email string) (bool, error) {
	return fileExists(s.emailIndexPath(email))
}

// Create persists a new identity. Uniqueness of username, email and the
// provider binding is checked and committed under the store mutex, so of
// two concurrent creates with the same username exactly one succeeds.
func (s *FSDirectory) Create(identity *triauth.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if taken, err := fileExists(s.usernameIndexPath(identity.Username)); err != nil {
		return err
	} else if taken {
		return triauth.ErrUsernameTaken
	}
	if taken, err := fileExists(s.emailIndexPath(identity.Email)); err != nil {
		return err
	} else if taken {
		return triauth.ErrEmailTaken
	}
	if identity.Linked() {
		if taken, err := fileExists(s.providerIndexPath(identity.Provider, identity.ExternalID)); err != nil {
			return err
		} else if taken {
			return triauth.ErrAlreadyLinked
		}
	}

	return s.persist(identity, nil)
}

// Update applies a read-modify-write guarded by Identity.Version: the
// caller's copy must carry the version it read, and the winning writer
// bumps it. A stale writer gets ErrVersionConflict.
func (s *FSDirectory) Update(identity *triauth.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored triauth.Identity
	found, err := readJSONFile(s.identityPath(identity.ID), &stored)
	if err != nil {
		return err
	}
	if !found {
		return triauth.ErrNotFound
	}
	if stored.Version != identity.Version {
		return triauth.ErrVersionConflict
	}

	if identity.Linked() && (stored.Provider != identity.Provider || stored.ExternalID != identity.ExternalID) {
		if taken, err := fileExists(s.providerIndexPath(identity.Provider, identity.ExternalID)); err != nil {
			return err
		} else if taken {
			return triauth.ErrAlreadyLinked
		}
	}

	identity.Version++
	identity.UpdatedAt = time.Now()
	return s.persist(identity, &stored)
}

// persist writes the record then reconciles the index files. prev is the
// previously stored copy, nil on create.
func (s *FSDirectory) persist(identity *triauth.Identity, prev *triauth.Identity) error {
	if err := writeJSONFile(s.identityPath(identity.ID), identity); err != nil {
		return err
	}

	entry := &indexEntry{ID: identity.ID}
	if err := writeJSONFile(s.usernameIndexPath(identity.Username), entry); err != nil {
		return err
	}
	if err := writeJSONFile(s.emailIndexPath(identity.Email), entry); err != nil {
		return err
	}
	if identity.Linked() {
		if err := writeJSONFile(s.providerIndexPath(identity.Provider, identity.ExternalID), entry); err != nil {
			return err
		}
	}

	if prev != nil {
		if !strings.EqualFold(prev.Username, identity.Username) {
			os.Remove(s.usernameIndexPath(prev.Username))
		}
		if !strings.EqualFold(prev.Email, identity.Email) {
			os.Remove(s.emailIndexPath(prev.Email))
		}
		if prev.Linked() && (prev.Provider != identity.Provider || prev.ExternalID != identity.ExternalID) {
			os.Remove(s.providerIndexPath(prev.Provider, prev.ExternalID))
		}
	}
	return nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
