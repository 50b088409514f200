package triauth

import "golang.org/x/crypto/bcrypt"

// PasswordHasher abstracts the adaptive one-way hash shared by
// registration and credential verification.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)

	// Compare returns nil when plaintext matches the stored hash. The
	// comparison must be the library's constant-time verify; hashes are
	// never reconstructed and string-compared.
	Compare(hash, plaintext string) error
}

// BcryptHasher implements PasswordHasher with bcrypt
type BcryptHasher struct {
	// Cost defaults to bcrypt.DefaultCost when zero
	Cost int
}

func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (h *BcryptHasher) Compare(hash, plaintext string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
}

// CredentialVerifier checks a username/password pair against the
// directory. It is read-only and does not mint tokens.
type CredentialVerifier struct {
	Directory Directory
	Hasher    PasswordHasher
}

// Verify returns the identity when the password matches its stored hash.
// Unknown usernames, identities without a password hash, and wrong
// passwords all fail with the same ErrInvalidCredentials so the result
// never reveals whether the username exists.
func (v *CredentialVerifier) Verify(username, password string) (*Identity, error) {
	identity, err := v.Directory.FindByUsername(username)
	if err != nil {
		return nil, err
	}
	if identity == nil || identity.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := v.Hasher.Compare(identity.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return identity, nil
}
