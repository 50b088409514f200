package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/triauth/triauth"
)

// StringSlice is a helper type for storing string slices in GORM
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// IdentityModel is the GORM model for identities. Provider and ExternalID
// are nullable so that unlinked rows do not collide on the composite
// unique index.
type IdentityModel struct {
	ID           string      `gorm:"primaryKey;size:64"`
	Username     string      `gorm:"size:64;uniqueIndex"`
	Email        string      `gorm:"size:255;uniqueIndex"`
	PasswordHash string      `gorm:"size:128"`
	Provider     *string     `gorm:"size:32;uniqueIndex:idx_provider_binding"`
	ExternalID   *string     `gorm:"size:255;uniqueIndex:idx_provider_binding"`
	Roles        StringSlice `gorm:"type:jsonb"`
	CreatedAt    time.Time   `gorm:"autoCreateTime"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime"`
	Version      int         `gorm:"default:1"`
}

func (IdentityModel) TableName() string {
	return "identities"
}

func (m *IdentityModel) ToIdentity() *triauth.Identity {
	return &triauth.Identity{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Provider:     derefString(m.Provider),
		ExternalID:   derefString(m.ExternalID),
		Roles:        m.Roles,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		Version:      m.Version,
	}
}

func IdentityToModel(i *triauth.Identity) *IdentityModel {
	return &IdentityModel{
		ID:           i.ID,
		Username:     i.Username,
		Email:        i.Email,
		PasswordHash: i.PasswordHash,
		Provider:     nullableString(i.Provider),
		ExternalID:   nullableString(i.ExternalID),
		Roles:        StringSlice(i.Roles),
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
		Version:      i.Version,
	}
}

// TemplateModel is the GORM model for encrypted biometric templates
type TemplateModel struct {
	Modality   string    `gorm:"primaryKey;size:32"`
	Hash       string    `gorm:"primaryKey;size:64"`
	IdentityID string    `gorm:"size:64;index"`
	Encrypted  []byte    `gorm:"type:bytea"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (TemplateModel) TableName() string {
	return "biometric_templates"
}

func (m *TemplateModel) ToTemplate() *triauth.BiometricTemplate {
	return &triauth.BiometricTemplate{
		Hash:       m.Hash,
		Modality:   triauth.Modality(m.Modality),
		IdentityID: m.IdentityID,
		Encrypted:  m.Encrypted,
		CreatedAt:  m.CreatedAt,
	}
}

func TemplateToModel(t *triauth.BiometricTemplate) *TemplateModel {
	return &TemplateModel{
		Modality:   string(t.Modality),
		Hash:       t.Hash,
		IdentityID: t.IdentityID,
		Encrypted:  t.Encrypted,
		CreatedAt:  t.CreatedAt,
	}
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
