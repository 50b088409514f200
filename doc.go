// Package triauth issues and validates signed bearer tokens for stateless
// authentication and resolves identities across three channels: local
// username/password, OAuth2 identity providers, and biometric matching.
//
// # Architecture
//
// Identity: a single authenticable principal with a unique username and
// email, an optional password hash, an optional external-provider binding,
// and a non-empty role set. An identity reachable through more than one
// channel (password plus a provider binding) is a hybrid account.
//
// Directory: the keyed store of identities. Implementations must enforce
// username, email, and (provider, external id) uniqueness atomically; the
// stores and stores/gorm packages provide file-backed and GORM-backed
// directories.
//
// TokenCodec: mints and verifies HMAC-SHA-512 signed JWTs. Verification is
// a pure function of the token, the signing key, and the clock; no token
// state is kept server side.
//
// # Basic Usage
//
// Wire the components against a directory:
//
//	import (
//	    "github.com/triauth/triauth"
//	    "github.com/triauth/triauth/stores"
//	)
//
//	dir := stores.NewFSDirectory("/var/data/myapp")
//	codec, err := triauth.NewTokenCodec(triauth.TokenConfig{
//	    SecretKey: secret, // at least 64 bytes for HS512
//	    Lifetime:  30 * time.Minute,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	hasher := &triauth.BcryptHasher{}
//	auth := &triauth.Authenticator{
//	    Codec:       codec,
//	    Credentials: &triauth.CredentialVerifier{Directory: dir, Hasher: hasher},
//	    Resolver:    &triauth.IdentityResolver{Directory: dir},
//	}
//
// Each login channel produces the same Session envelope:
//
//	session, err := auth.LoginLocal("alice", "s3cretpass")
//	// session.Token, session.Username, session.Email, session.Roles
//
// # HTTP surface
//
// AuthMux exposes the register/login/link/biometric endpoints over
// gorilla/mux, and the oauth2 subpackage handles the provider redirect and
// callback flow. Middleware validates Bearer tokens on protected routes.
//
// # Security
//
// Passwords are hashed with bcrypt. Tokens are signed with HS512 and a key
// of at least 512 bits, enforced at startup. Credential failures are
// reported uniformly so usernames cannot be enumerated. Biometric
// templates are stored AES-GCM encrypted and matched only through an
// opaque oracle after a liveness check passes.
package triauth
