package triauth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"
)

// Modality names the kind of biometric sample
type Modality string

const (
	ModalityFingerprint Modality = "fingerprint"
	ModalityFace        Modality = "face"
	ModalityVoice       Modality = "voice"
	ModalityIris        Modality = "iris"
)

// ParseModality validates a modality name
func ParseModality(s string) (Modality, error) {
	switch Modality(s) {
	case ModalityFingerprint, ModalityFace, ModalityVoice, ModalityIris:
		return Modality(s), nil
	}
	return "", NewAuthError(ErrCodeInvalidModality, "Unknown biometric modality: "+s, "modality")
}

// Sample is a captured biometric sample as delivered by the capture
// client. LivenessScore is the sensor's independent liveness signal,
// evaluated by the liveness oracle before any matching happens.
type Sample struct {
	Modality      Modality `json:"modality"`
	Data          []byte   `json:"data"`
	LivenessScore float64  `json:"liveness_score"`
}

// MinSampleBytes is the quality floor for enrollment and matching
const MinSampleBytes = 100

// BiometricTemplate is the stored, encrypted representation of an
// enrolled sample. The template bytes are opaque to everything but the
// vault that wrote them; lookups go through the content hash only.
type BiometricTemplate struct {
	Hash       string    `json:"hash"` // content hash, the lookup key
	Modality   Modality  `json:"modality"`
	IdentityID string    `json:"identity_id"`
	Encrypted  []byte    `json:"encrypted"`
	CreatedAt  time.Time `json:"created_at"`
}

// TemplateStore persists biometric templates.
//
// FindTemplateByHash returns (nil, nil) when nothing is enrolled under
// the hash. DeleteTemplates reports how many templates were removed.
type TemplateStore interface {
	SaveTemplate(t *BiometricTemplate) error
	FindTemplateByHash(modality Modality, hash string) (*BiometricTemplate, error)
	DeleteTemplates(identityID string, modality Modality) (int, error)
}

// BiometricVault enrolls, removes and matches biometric templates. It
// implements MatchOracle with a deterministic exact content-hash lookup:
// a sample matches iff the identical sample was enrolled, with score 1.0.
// Real scoring algorithms replace the oracle, not the vault contract.
type BiometricVault struct {
	store TemplateStore
	aead  cipher.AEAD
}

// NewBiometricVault builds a vault encrypting templates with AES-256-GCM
// under the given 32-byte key.
func NewBiometricVault(store TemplateStore, key []byte) (*BiometricVault, error) {
	if len(key) != 32 {
		return nil, &ConfigurationError{Reason: "biometric encryption key must be exactly 32 bytes"}
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &ConfigurationError{Reason: "invalid biometric encryption key: " + err.Error()}
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &ConfigurationError{Reason: "failed to build AEAD: " + err.Error()}
	}
	return &BiometricVault{store: store, aead: aead}, nil
}

// Enroll encrypts and stores a template for the identity. The sample must
// meet the quality floor; the vault never stores plaintext sample bytes.
func (v *BiometricVault) Enroll(identityID string, sample *Sample) error {
	if err := checkSampleQuality(sample); err != nil {
		return err
	}

	encrypted, err := v.seal(sample.Data)
	if err != nil {
		return fmt.Errorf("failed to encrypt template: %w", err)
	}

	template := &BiometricTemplate{
		Hash:       SampleHash(sample),
		Modality:   sample.Modality,
		IdentityID: identityID,
		Encrypted:  encrypted,
		CreatedAt:  time.Now(),
	}
	if err := v.store.SaveTemplate(template); err != nil {
		return err
	}
	slog.Info("enrolled biometric template", "modality", sample.Modality, "identity", identityID)
	return nil
}

// Remove deletes all templates of the given modality for the identity,
// failing with ErrNotFound when none were enrolled.
func (v *BiometricVault) Remove(identityID string, modality Modality) error {
	n, err := v.store.DeleteTemplates(identityID, modality)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	slog.Info("removed biometric templates", "modality", modality, "identity", identityID, "count", n)
	return nil
}

// Match implements MatchOracle via exact content-hash lookup
func (v *BiometricVault) Match(sample *Sample) (string, float64, error) {
	if err := checkSampleQuality(sample); err != nil {
		return "", 0, err
	}

	template, err := v.store.FindTemplateByHash(sample.Modality, SampleHash(sample))
	if err != nil {
		return "", 0, err
	}
	if template == nil {
		return "", 0, ErrNoMatch
	}
	return template.IdentityID, 1.0, nil
}

func (v *BiometricVault) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return v.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func checkSampleQuality(sample *Sample) error {
	if sample == nil || len(sample.Data) == 0 {
		return NewAuthError(ErrCodeLowQuality, "Biometric sample is empty", "data")
	}
	if len(sample.Data) < MinSampleBytes {
		return NewAuthError(ErrCodeLowQuality, "Biometric sample quality is insufficient", "data")
	}
	if _, err := ParseModality(string(sample.Modality)); err != nil {
		return err
	}
	return nil
}

// SampleHash computes the content hash used as the template lookup key
func SampleHash(sample *Sample) string {
	h := sha256.New()
	h.Write([]byte(sample.Modality))
	h.Write([]byte{0})
	h.Write(sample.Data)
	return hex.EncodeToString(h.Sum(nil))
}

// ThresholdLiveness is a LivenessOracle trusting the capture client's
// sensor-reported liveness score. It is deterministic for a given sample
// and independent of matching, which is the contract a real liveness
// detector must also satisfy.
type ThresholdLiveness struct {
	// MinScore defaults to 0.5 when zero
	MinScore float64
}

func (l *ThresholdLiveness) Check(sample *Sample) error {
	min := l.MinScore
	if min == 0 {
		min = 0.5
	}
	if sample == nil || sample.LivenessScore < min {
		return ErrLivenessFailed
	}
	return nil
}
