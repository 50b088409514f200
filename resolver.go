package triauth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMatchThreshold is the minimum confidence score a biometric match
// must reach before it is trusted.
const DefaultMatchThreshold = 0.8

// MatchOracle scores a biometric sample against enrolled templates and
// returns the candidate identity id. Implementations must be
// deterministic given the same stored template and input. A miss is
// reported as ErrNoMatch.
type MatchOracle interface {
	Match(sample *Sample) (identityID string, score float64, err error)
}

// LivenessOracle checks that a sample came from a live, present subject.
// A failed check is reported as ErrLivenessFailed.
type LivenessOracle interface {
	Check(sample *Sample) error
}

// LivenessFunc adapts a function to the LivenessOracle interface
type LivenessFunc func(sample *Sample) error

func (f LivenessFunc) Check(sample *Sample) error { return f(sample) }

// IdentityResolver maps external assertions (OAuth2 principals, biometric
// matches) onto local identities, creating or linking them as needed.
type IdentityResolver struct {
	Directory Directory

	// Matcher and Liveness back ResolveByBiometricMatch. Both must pass
	// before a match is trusted.
	Matcher  MatchOracle
	Liveness LivenessOracle

	// MatchThreshold defaults to DefaultMatchThreshold when zero
	MatchThreshold float64
}

// Resolve finds or creates the local identity for an OAuth2 assertion.
// Resolution short-circuits in order: exact (provider, external id)
// match; email match, onto which the provider binding is recorded (the
// account becomes hybrid); otherwise a fresh identity with the default
// role and no password hash.
func (r *IdentityResolver) Resolve(assertion *Assertion) (*Identity, error) {
	if assertion.Provider == "" || assertion.ExternalID == "" {
		return nil, fmt.Errorf("assertion missing provider or external id")
	}

	identity, err := r.Directory.FindByProviderID(assertion.Provider, assertion.ExternalID)
	if err != nil {
		return nil, err
	}
	if identity != nil {
		return identity, nil
	}

	if assertion.Email != "" {
		identity, err = r.Directory.FindByEmail(assertion.Email)
		if err != nil {
			return nil, err
		}
		if identity != nil {
			identity.Provider = assertion.Provider
			identity.ExternalID = assertion.ExternalID
			identity.UpdatedAt = time.Now()
			if err := r.Directory.Update(identity); err != nil {
				return nil, err
			}
			slog.Info("linked provider to existing account", "provider", assertion.Provider, "username", identity.Username)
			return identity, nil
		}
	}

	return r.createFromAssertion(assertion)
}

func (r *IdentityResolver) createFromAssertion(assertion *Assertion) (*Identity, error) {
	now := time.Now()
	identity := &Identity{
		ID:         uuid.NewString(),
		Username:   DeriveUsername(assertion.DisplayName),
		Email:      assertion.Email,
		Provider:   assertion.Provider,
		ExternalID: assertion.ExternalID,
		Roles:      []string{RoleUser},
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}

	err := r.Directory.Create(identity)
	if err == nil {
		slog.Info("created account from assertion", "provider", assertion.Provider, "username", identity.Username)
		return identity, nil
	}

	// Derived username collided with an unrelated account: retry once
	// with a generated suffix before giving up.
	if IsCode(err, ErrCodeUsernameTaken) {
		identity.Username = identity.Username + "_" + uuid.NewString()[:8]
		if err = r.Directory.Create(identity); err == nil {
			return identity, nil
		}
	}

	// A concurrent resolve of the same assertion may have won the race;
	// return its identity instead of surfacing the conflict.
	if IsCode(err, ErrCodeEmailTaken) || IsCode(err, ErrCodeAlreadyLinked) {
		existing, findErr := r.Directory.FindByProviderID(assertion.Provider, assertion.ExternalID)
		if findErr == nil && existing != nil {
			return existing, nil
		}
	}
	return nil, err
}

// Link binds a provider principal onto an existing local account. A local
// identity may hold at most one provider binding at a time.
func (r *IdentityResolver) Link(username, provider, externalID string) error {
	identity, err := r.Directory.FindByUsername(username)
	if err != nil {
		return err
	}
	if identity == nil {
		return ErrNotFound
	}
	if identity.Linked() {
		return ErrAlreadyLinked
	}

	identity.Provider = provider
	identity.ExternalID = externalID
	identity.UpdatedAt = time.Now()
	return r.Directory.Update(identity)
}

// Unlink clears the provider binding from the identity holding it. The
// unlink is refused with ErrLastAuthMethod when the identity has no
// password hash, since nothing could ever authenticate it again.
func (r *IdentityResolver) Unlink(provider, externalID string) error {
	identity, err := r.Directory.FindByProviderID(provider, externalID)
	if err != nil {
		return err
	}
	if identity == nil {
		return ErrNotFound
	}
	if identity.PasswordHash == "" {
		return ErrLastAuthMethod
	}

	identity.Provider = ""
	identity.ExternalID = ""
	identity.UpdatedAt = time.Now()
	return r.Directory.Update(identity)
}

// ResolveByBiometricMatch resolves a sample to an identity. The liveness
// oracle must pass before the match is trusted, and the match score must
// reach the configured threshold. A failed match never falls back to
// another channel.
func (r *IdentityResolver) ResolveByBiometricMatch(sample *Sample) (*Identity, error) {
	if r.Matcher == nil || r.Liveness == nil {
		return nil, fmt.Errorf("biometric oracles not configured")
	}

	if err := r.Liveness.Check(sample); err != nil {
		return nil, err
	}

	identityID, score, err := r.Matcher.Match(sample)
	if err != nil {
		return nil, err
	}
	threshold := r.MatchThreshold
	if threshold == 0 {
		threshold = DefaultMatchThreshold
	}
	if score < threshold {
		return nil, ErrNoMatch
	}

	identity, err := r.Directory.FindByID(identityID)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, ErrNoMatch
	}
	return identity, nil
}

// DeriveUsername turns a provider display name into a usable username,
// falling back to a generated placeholder when the name is absent or
// yields nothing usable.
func DeriveUsername(displayName string) string {
	var b strings.Builder
	for _, c := range strings.TrimSpace(displayName) {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
			b.WriteRune(c)
		case c == ' ', c == '.':
			b.WriteRune('_')
		}
	}
	name := b.String()
	if len(name) < 3 {
		return "user_" + uuid.NewString()[:12]
	}
	if len(name) > 32 {
		name = name[:32]
	}
	return name
}

// IsCode reports whether err is (or wraps) an AuthError with the given code
func IsCode(err error, code string) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Code == code
}
