// Package gorm backs the Directory and TemplateStore interfaces with a
// relational database through GORM. Uniqueness lives in database
// constraints, so concurrent duplicate creates resolve to exactly one
// winner regardless of how many processes share the database.
//
// Conflict detection relies on GORM translating driver duplicate-key
// errors into gorm.ErrDuplicatedKey; NewDirectory enables the
// TranslateError option on the handle it is given.
package gorm

import (
	"errors"

	"gorm.io/gorm"

	"github.com/triauth/triauth"
)

// AutoMigrate runs database migrations for all triauth tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&IdentityModel{},
		&TemplateModel{},
	)
}

// Directory implements triauth.Directory using GORM
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	// Without error translation a duplicate create surfaces as a raw
	// driver error and the domain conflict errors are never produced.
	db.Config.TranslateError = true
	return &Directory{db: db}
}

func (s *Directory) FindByID(id string) (*triauth.Identity, error) {
	return s.findOne("id = ?", id)
}

func (s *Directory) FindByUsername(username string) (*triauth.Identity, error) {
	return s.findOne("username = ?", username)
}

func (s *Directory) FindByEmail(email string) (*triauth.Identity, error) {
	return s.findOne("email = ?", email)
}

func (s *Directory) FindByProviderID(provider, externalID string) (*triauth.Identity, error) {
	if provider == "" || externalID == "" {
		return nil, nil
	}
	return s.findOne("provider = ? AND external_id = ?", provider, externalID)
}

func (s *Directory) findOne(query string, args ...any) (*triauth.Identity, error) {
	var model IdentityModel
	err := s.db.First(&model, append([]any{query}, args...)...).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.ToIdentity(), nil
}

func (s *Directory) ExistsByUsername(username string) (bool, error) {
	return s.exists("username = ?", username)
}

func (s *Directory) ExistsByEmail(email string) (bool, error) {
	return s.exists("email = ?", email)
}

func (s *Directory) exists(query string, args ...any) (bool, error) {
	var count int64
	err := s.db.Model(&IdentityModel{}).Where(query, args...).Count(&count).Error
	return count > 0, err
}

// Create inserts the identity, relying on the unique indexes to arbitrate
// concurrent duplicates. A constraint violation is translated back into
// the matching domain error by probing which value is taken.
func (s *Directory) Create(identity *triauth.Identity) error {
	model := IdentityToModel(identity)
	err := s.db.Create(model).Error
	if err == nil {
		return nil
	}
	return s.translateConflict(err, identity)
}

// Update applies a version-guarded write: the row is only touched when it
// still carries the version the caller read. Zero rows affected means a
// concurrent writer won (or the row is gone).
func (s *Directory) Update(identity *triauth.Identity) error {
	model := IdentityToModel(identity)
	result := s.db.Model(&IdentityModel{}).
		Where("id = ? AND version = ?", identity.ID, identity.Version).
		Updates(map[string]any{
			"username":      model.Username,
			"email":         model.Email,
			"password_hash": model.PasswordHash,
			"provider":      model.Provider,
			"external_id":   model.ExternalID,
			"roles":         model.Roles,
			"updated_at":    model.UpdatedAt,
			"version":       identity.Version + 1,
		})
	if result.Error != nil {
		return s.translateConflict(result.Error, identity)
	}
	if result.RowsAffected == 0 {
		exists, err := s.exists("id = ?", identity.ID)
		if err != nil {
			return err
		}
		if !exists {
			return triauth.ErrNotFound
		}
		return triauth.ErrVersionConflict
	}
	identity.Version++
	return nil
}

// translateConflict maps a unique-constraint violation onto the domain
// error for whichever value is actually taken. Probing the table avoids
// parsing driver-specific constraint names.
func (s *Directory) translateConflict(err error, identity *triauth.Identity) error {
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}

	if other, ferr := s.FindByUsername(identity.Username); ferr == nil && other != nil && other.ID != identity.ID {
		return triauth.ErrUsernameTaken
	}
	if other, ferr := s.FindByEmail(identity.Email); ferr == nil && other != nil && other.ID != identity.ID {
		return triauth.ErrEmailTaken
	}
	if identity.Linked() {
		if other, ferr := s.FindByProviderID(identity.Provider, identity.ExternalID); ferr == nil && other != nil && other.ID != identity.ID {
			return triauth.ErrAlreadyLinked
		}
	}
	return err
}

// TemplateStore implements triauth.TemplateStore using GORM
type TemplateStore struct {
	db *gorm.DB
}

func NewTemplateStore(db *gorm.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

func (s *TemplateStore) SaveTemplate(t *triauth.BiometricTemplate) error {
	return s.db.Save(TemplateToModel(t)).Error
}

func (s *TemplateStore) FindTemplateByHash(modality triauth.Modality, hash string) (*triauth.BiometricTemplate, error) {
	var model TemplateModel
	err := s.db.First(&model, "modality = ? AND hash = ?", string(modality), hash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.ToTemplate(), nil
}

func (s *TemplateStore) DeleteTemplates(identityID string, modality triauth.Modality) (int, error) {
	result := s.db.Where("identity_id = ? AND modality = ?", identityID, string(modality)).
		Delete(&TemplateModel{})
	return int(result.RowsAffected), result.Error
}
