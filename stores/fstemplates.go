package stores

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/triauth/triauth"
)

// FSTemplateStore stores encrypted biometric templates as JSON files,
// one per template under templates/<modality>/<hash>.json. The content
// hash is the file name, so FindTemplateByHash is a single read.
type FSTemplateStore struct {
	StoragePath string

	mu sync.Mutex
}

func NewFSTemplateStore(storagePath string) *FSTemplateStore {
	return &FSTemplateStore{StoragePath: storagePath}
}

func (s *FSTemplateStore) templatePath(modality triauth.Modality, hash string) string {
	return filepath.Join(s.modalityDir(modality), filepath.Base(hash)+".json")
}

func (s *FSTemplateStore) modalityDir(modality triauth.Modality) string {
	return filepath.Join(s.StoragePath, "templates", filepath.Base(string(modality)))
}

func (s *FSTemplateStore) SaveTemplate(t *triauth.BiometricTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONFile(s.templatePath(t.Modality, t.Hash), t)
}

func (s *FSTemplateStore) FindTemplateByHash(modality triauth.Modality, hash string) (*triauth.BiometricTemplate, error) {
	var template triauth.BiometricTemplate
	found, err := readJSONFile(s.templatePath(modality, hash), &template)
	if err != nil || !found {
		return nil, err
	}
	return &template, nil
}

// DeleteTemplates removes every template of the modality enrolled for the
// identity and reports how many were deleted.
func (s *FSTemplateStore) DeleteTemplates(identityID string, modality triauth.Modality) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.modalityDir(modality)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var template triauth.BiometricTemplate
		if err := json.Unmarshal(data, &template); err != nil {
			continue
		}
		if template.IdentityID != identityID {
			continue
		}
		if err := os.Remove(path); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
