// Command authserver runs the authentication service over the
// filesystem-backed stores. Configuration comes from the environment.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/caarlos0/env/v11"

	"github.com/triauth/triauth"
	"github.com/triauth/triauth/oauth2"
	"github.com/triauth/triauth/stores"
)

type Config struct {
	Addr string `env:"TRIAUTH_ADDR" envDefault:":8080"`

	// SigningKey must be at least 64 bytes of entropy
	SigningKey    string        `env:"TRIAUTH_SIGNING_KEY,required"`
	TokenLifetime time.Duration `env:"TRIAUTH_TOKEN_LIFETIME" envDefault:"1h"`
	Issuer        string        `env:"TRIAUTH_ISSUER" envDefault:"triauth"`

	StoragePath string `env:"TRIAUTH_STORAGE_PATH" envDefault:"./data"`

	// BiometricKey is a hex-encoded 32-byte AES key. When unset a random
	// key is generated; enrolled templates still match across restarts
	// because matching goes through the content hash, not decryption.
	BiometricKey string `env:"TRIAUTH_BIOMETRIC_KEY"`

	GoogleClientID     string `env:"OAUTH2_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"OAUTH2_GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `env:"OAUTH2_GOOGLE_CALLBACK_URL"`

	GithubClientID     string `env:"OAUTH2_GITHUB_CLIENT_ID"`
	GithubClientSecret string `env:"OAUTH2_GITHUB_CLIENT_SECRET"`
	GithubCallbackURL  string `env:"OAUTH2_GITHUB_CALLBACK_URL"`
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	codec, err := triauth.NewTokenCodec(triauth.TokenConfig{
		SecretKey: []byte(cfg.SigningKey),
		Lifetime:  cfg.TokenLifetime,
		Issuer:    cfg.Issuer,
	})
	if err != nil {
		slog.Error("failed to build token codec", "err", err)
		os.Exit(1)
	}

	directory := stores.NewFSDirectory(cfg.StoragePath)
	templates := stores.NewFSTemplateStore(cfg.StoragePath)

	vault, err := triauth.NewBiometricVault(templates, biometricKey(cfg.BiometricKey))
	if err != nil {
		slog.Error("failed to build biometric vault", "err", err)
		os.Exit(1)
	}

	hasher := &triauth.BcryptHasher{}
	resolver := &triauth.IdentityResolver{
		Directory: directory,
		Matcher:   vault,
		Liveness:  &triauth.ThresholdLiveness{},
	}
	auth := &triauth.Authenticator{
		Codec:       codec,
		Credentials: &triauth.CredentialVerifier{Directory: directory, Hasher: hasher},
		Resolver:    resolver,
	}

	sessionManager := scs.New()
	sessionManager.Lifetime = 24 * time.Hour

	authMux := &triauth.AuthMux{
		Auth: auth,
		Registration: &triauth.RegistrationPolicy{
			Directory: directory,
			Hasher:    hasher,
		},
		Vault:      vault,
		Directory:  directory,
		Middleware: &triauth.Middleware{Codec: codec},
		Session:    sessionManager,
	}

	if cfg.GoogleClientID != "" {
		authMux.AddProvider("google", oauth2.NewGoogleProvider(
			cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL,
			authMux.HandleAssertion))
	}
	if cfg.GithubClientID != "" {
		authMux.AddProvider("github", oauth2.NewGithubProvider(
			cfg.GithubClientID, cfg.GithubClientSecret, cfg.GithubCallbackURL,
			authMux.HandleAssertion))
	}

	handler := sessionManager.LoadAndSave(authMux.Handler())

	slog.Info("starting auth server", "addr", cfg.Addr, "storage", cfg.StoragePath)
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func biometricKey(hexKey string) []byte {
	if hexKey != "" {
		key, err := hex.DecodeString(hexKey)
		if err != nil || len(key) != 32 {
			slog.Error("TRIAUTH_BIOMETRIC_KEY must be 64 hex characters")
			os.Exit(1)
		}
		return key
	}
	slog.Warn("no biometric key configured, generating an ephemeral one")
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		slog.Error("failed to generate biometric key", "err", err)
		os.Exit(1)
	}
	return key
}
