package triauth

import "time"

// Role names form a closed vocabulary fixed at deploy time. Roles are
// reference data; they are never created through the API.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// DefaultRoles is the vocabulary used when none is configured.
var DefaultRoles = []string{RoleUser, RoleAdmin}

// Identity represents one authenticable principal.
//
// PasswordHash is empty for identities created purely through an external
// channel. Provider and ExternalID are set together or not at all. An
// identity with neither a password hash nor a provider binding is inert:
// it exists but cannot authenticate.
type Identity struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash,omitempty"`
	Provider     string    `json:"provider,omitempty"`    // "google", "github", ...
	ExternalID   string    `json:"external_id,omitempty"` // provider-scoped id
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Version      int       `json:"version"` // optimistic locking version
}

// Linked reports whether the identity has an external provider binding
func (id *Identity) Linked() bool {
	return id.Provider != "" && id.ExternalID != ""
}

// Authenticable reports whether at least one login method remains
func (id *Identity) Authenticable() bool {
	return id.PasswordHash != "" || id.Linked()
}

// HasRole reports whether the identity carries the named role
func (id *Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Directory is the identity store consumed by the core.
//
// Lookups return (nil, nil) when no identity matches; a non-nil error
// always means the store itself failed. Create must enforce username,
// email and (provider, external id) uniqueness atomically - two
// concurrent creates with the same username must not both succeed, and
// the loser must observe ErrUsernameTaken (or ErrEmailTaken). Update must
// apply as a single read-modify-write guarded by Identity.Version so two
// concurrent link attempts cannot both see "unlinked" and proceed.
type Directory interface {
	FindByID(id string) (*Identity, error)
	FindByUsername(username string) (*Identity, error)
	FindByEmail(email string) (*Identity, error)
	FindByProviderID(provider, externalID string) (*Identity, error)

	ExistsByUsername(username string) (bool, error)
	ExistsByEmail(email string) (bool, error)

	// Create persists a new identity and its role set all-or-nothing.
	Create(identity *Identity) error

	// Update saves changes to an existing identity, bumping Version.
	Update(identity *Identity) error
}

// Assertion is a verified claim of identity from an external provider,
// produced by the OAuth2 callback flow after the provider confirmed the
// principal. The core never talks to the provider itself.
type Assertion struct {
	Provider    string `json:"provider"`
	ExternalID  string `json:"external_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}
