package triauth

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSigningKeyBytes is the minimum signing key length for HS512. A key
// shorter than the 512-bit HMAC block is rejected at startup, not at
// issuance.
const MinSigningKeyBytes = 64

// errUnsupportedAlg is returned from the parse keyfunc so it can be
// detected through the library's error wrapping.
var errUnsupportedAlg = errors.New("unsupported signing algorithm")

// TokenConfig carries the signing material and lifetime for TokenCodec.
// It is passed explicitly into NewTokenCodec rather than read from
// ambient state, so tests can inject per-case keys and clocks.
type TokenConfig struct {
	// SecretKey signs and verifies tokens. Must be at least
	// MinSigningKeyBytes long.
	SecretKey []byte

	// Lifetime is how long an issued token stays valid. Must be positive.
	Lifetime time.Duration

	// Issuer is an optional "iss" claim stamped on issued tokens.
	Issuer string

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// TokenClaims is the signed payload of an issued token.
type TokenClaims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec mints and verifies HS512-signed bearer tokens. Issue and
// Verify are pure given (input, key, clock) and safe for concurrent use.
//
// Swapping to an asymmetric scheme changes only the key material handling
// here; the Verify contract and error taxonomy stay the same.
type TokenCodec struct {
	cfg TokenConfig
	now func() time.Time
}

// NewTokenCodec validates the configuration and returns a codec. It fails
// with *ConfigurationError if the key is absent or below the minimum
// strength for HS512, or if the lifetime is not positive.
func NewTokenCodec(cfg TokenConfig) (*TokenCodec, error) {
	if len(cfg.SecretKey) == 0 {
		return nil, &ConfigurationError{Reason: "signing key is not set"}
	}
	if len(cfg.SecretKey) < MinSigningKeyBytes {
		return nil, &ConfigurationError{Reason: "signing key is too short for HS512 (need at least 64 bytes)"}
	}
	if cfg.Lifetime <= 0 {
		return nil, &ConfigurationError{Reason: "token lifetime must be positive"}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenCodec{cfg: cfg, now: now}, nil
}

// Lifetime returns the configured token lifetime
func (c *TokenCodec) Lifetime() time.Duration { return c.cfg.Lifetime }

// Issue mints a signed token for the subject with the given role set.
// issued-at is now and expiry is now plus the configured lifetime.
func (c *TokenCodec) Issue(subject string, roles []string) (string, error) {
	now := c.now()
	claims := &TokenClaims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.Lifetime)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(c.cfg.SecretKey)
}

// Verify checks the token's signature and expiry and returns its claims.
// Failures are reported as *TokenError with kind EXPIRED, MALFORMED,
// BAD_SIGNATURE or UNSUPPORTED_ALGORITHM. The subject is never read from
// an unverified payload.
func (c *TokenCodec) Verify(tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS512 {
			return nil, errUnsupportedAlg
		}
		return c.cfg.SecretKey, nil
	}, jwt.WithTimeFunc(c.now))

	if err != nil {
		switch {
		case errors.Is(err, errUnsupportedAlg):
			return nil, &TokenError{Kind: TokenUnsupportedAlgorithm, cause: err}
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, &TokenError{Kind: TokenBadSignature, cause: err}
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, &TokenError{Kind: TokenExpired, cause: err}
		default:
			// The parser JSON-decodes the claims before it checks the
			// signature, so a payload tamper that corrupts the JSON
			// surfaces as a parse failure. The signature verdict must not
			// depend on the payload decoding, so establish it directly.
			if c.signatureMismatch(tokenString) {
				return nil, &TokenError{Kind: TokenBadSignature, cause: err}
			}
			return nil, &TokenError{Kind: TokenMalformed, cause: err}
		}
	}

	if !token.Valid || claims.Subject == "" {
		return nil, &TokenError{Kind: TokenMalformed}
	}
	return claims, nil
}

// signatureMismatch reports whether the token carries three decodable
// segments whose HS512 MAC does not verify over header.payload. Only a
// positive mismatch is reported; tokens too mangled to even check stay
// classified by the parser.
func (c *TokenCodec) signatureMismatch(tokenString string) bool {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return false
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return false
	}
	return jwt.SigningMethodHS512.Verify(parts[0]+"."+parts[1], sig, c.cfg.SecretKey) != nil
}
