package triauth

import "fmt"

// Error codes for authentication and registration failures
const (
	ErrCodeUsernameTaken  = "username_taken"
	ErrCodeEmailTaken     = "email_taken"
	ErrCodeUnknownRole    = "unknown_role"
	ErrCodeInvalidCreds   = "invalid_credentials"
	ErrCodeAlreadyLinked  = "already_linked"
	ErrCodeNotFound       = "not_found"
	ErrCodeNoMatch         = "no_match"
	ErrCodeLivenessFailed  = "liveness_failed"
	ErrCodeLastAuthMethod  = "last_auth_method"
	ErrCodeVersionConflict = "version_conflict"
	ErrCodeLinkNotVerified = "link_not_verified"

	ErrCodeMissingField    = "missing_field"
	ErrCodeInvalidUsername = "invalid_username"
	ErrCodeInvalidEmail    = "invalid_email"
	ErrCodeWeakPassword    = "weak_password"
	ErrCodeInvalidModality = "invalid_modality"
	ErrCodeLowQuality      = "low_quality_sample"
)

// AuthError is a typed domain failure. Callers match on Code via
// errors.Is against the sentinel values below; Field names the offending
// input for validation failures.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`
}

func (e *AuthError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any AuthError carrying the same code, so
// errors.Is(err, ErrUsernameTaken) works regardless of message or field.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Code == e.Code
}

// NewAuthError creates an AuthError with the given code, message and field
func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

// Sentinel failures for the core operations. These carry the canonical
// message; use NewAuthError to attach a more specific one.
var (
	ErrUsernameTaken      = NewAuthError(ErrCodeUsernameTaken, "Username is already taken", "username")
	ErrEmailTaken         = NewAuthError(ErrCodeEmailTaken, "Email is already in use", "email")
	ErrUnknownRole        = NewAuthError(ErrCodeUnknownRole, "Role is not found", "roles")
	ErrInvalidCredentials = NewAuthError(ErrCodeInvalidCreds, "Invalid credentials", "")
	ErrAlreadyLinked      = NewAuthError(ErrCodeAlreadyLinked, "Account is already linked to a provider", "")
	ErrNotFound           = NewAuthError(ErrCodeNotFound, "Account not found", "")
	ErrNoMatch            = NewAuthError(ErrCodeNoMatch, "No biometric match found", "")
	ErrLivenessFailed     = NewAuthError(ErrCodeLivenessFailed, "Liveness check failed", "")
	ErrLastAuthMethod     = NewAuthError(ErrCodeLastAuthMethod, "Unlinking would leave the account with no way to authenticate", "")
	ErrVersionConflict    = NewAuthError(ErrCodeVersionConflict, "Account was modified concurrently, retry the operation", "")
	ErrLinkNotVerified    = NewAuthError(ErrCodeLinkNotVerified, "No provider sign-in is pending for this session; complete the provider flow first", "")
)

// TokenErrorKind classifies token verification failures
type TokenErrorKind string

const (
	TokenExpired              TokenErrorKind = "EXPIRED"
	TokenMalformed            TokenErrorKind = "MALFORMED"
	TokenBadSignature         TokenErrorKind = "BAD_SIGNATURE"
	TokenUnsupportedAlgorithm TokenErrorKind = "UNSUPPORTED_ALGORITHM"
)

// TokenError reports why a token failed verification. The wrapped cause is
// kept for logging; callers should branch on Kind only.
type TokenError struct {
	Kind  TokenErrorKind
	cause error
}

func (e *TokenError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("token %s: %v", e.Kind, e.cause)
	}
	return fmt.Sprintf("token %s", e.Kind)
}

func (e *TokenError) Unwrap() error { return e.cause }

func (e *TokenError) Is(target error) bool {
	t, ok := target.(*TokenError)
	return ok && t.Kind == e.Kind
}

// ConfigurationError reports invalid startup configuration, such as a
// signing key below the minimum strength for the chosen algorithm.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}
