package triauth

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,32}$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// RegistrationPolicy enforces uniqueness, input validation and role
// assignment when creating a local identity.
type RegistrationPolicy struct {
	Directory Directory
	Hasher    PasswordHasher

	// Roles is the closed role vocabulary. Defaults to DefaultRoles.
	Roles []string

	// DefaultRole is assigned when a registration requests none.
	// Defaults to RoleUser.
	DefaultRole string

	// MinPasswordLength defaults to 8
	MinPasswordLength int
}

func (p *RegistrationPolicy) vocabulary() []string {
	if len(p.Roles) > 0 {
		return p.Roles
	}
	return DefaultRoles
}

func (p *RegistrationPolicy) defaultRole() string {
	if p.DefaultRole != "" {
		return p.DefaultRole
	}
	return RoleUser
}

func (p *RegistrationPolicy) minPasswordLength() int {
	if p.MinPasswordLength > 0 {
		return p.MinPasswordLength
	}
	return 8
}

// Register validates and persists a new local identity. Username and
// email uniqueness are checked fail-fast and reported distinctly; the
// directory's unique constraints still back the check, so a concurrent
// duplicate that slips past loses on Create. Role names are resolved
// against the closed vocabulary; one unknown name fails the whole
// registration with no partial role assignment. The identity row and its
// roles persist all-or-nothing via Directory.Create.
func (p *RegistrationPolicy) Register(username, email, password string, requestedRoles []string) (*Identity, error) {
	if err := p.validate(username, email, password); err != nil {
		return nil, err
	}

	taken, err := p.Directory.ExistsByUsername(username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrUsernameTaken
	}

	taken, err = p.Directory.ExistsByEmail(email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}

	roles, err := p.ResolveRoles(requestedRoles)
	if err != nil {
		return nil, err
	}

	hash, err := p.Hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	identity := &Identity{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Roles:        roles,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}
	if err := p.Directory.Create(identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// ResolveRoles maps requested role names onto the vocabulary. An empty
// request yields exactly the default role. Any unknown name fails the
// whole resolution with ErrUnknownRole.
func (p *RegistrationPolicy) ResolveRoles(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return []string{p.defaultRole()}, nil
	}

	vocab := p.vocabulary()
	seen := map[string]bool{}
	var roles []string
	for _, name := range requested {
		found := false
		for _, known := range vocab {
			if name == known {
				found = true
				break
			}
		}
		if !found {
			return nil, NewAuthError(ErrCodeUnknownRole, "Role is not found: "+name, "roles")
		}
		if !seen[name] {
			seen[name] = true
			roles = append(roles, name)
		}
	}
	return roles, nil
}

func (p *RegistrationPolicy) validate(username, email, password string) error {
	if username == "" {
		return NewAuthError(ErrCodeMissingField, "Username is required", "username")
	}
	if email == "" {
		return NewAuthError(ErrCodeMissingField, "Email is required", "email")
	}
	if password == "" {
		return NewAuthError(ErrCodeMissingField, "Password is required", "password")
	}
	if !usernamePattern.MatchString(username) {
		return NewAuthError(ErrCodeInvalidUsername, "Username must be 3-32 characters and contain only letters, numbers, underscores, and hyphens", "username")
	}
	if !emailPattern.MatchString(email) {
		return NewAuthError(ErrCodeInvalidEmail, "Invalid email format", "email")
	}
	if len(password) < p.minPasswordLength() {
		return NewAuthError(ErrCodeWeakPassword, "Password is too short", "password")
	}
	return nil
}
