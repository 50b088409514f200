package triauth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
)

// HandleAssertionFunc receives the verified assertion from an OAuth2
// callback handler.
type HandleAssertionFunc func(assertion *Assertion, w http.ResponseWriter, r *http.Request)

// LinkIntentCookie marks an OAuth2 dance started to link a provider onto
// an existing account rather than to log in. The redirector sets it when
// the dance begins; the callback consumes it.
const LinkIntentCookie = "oauthlink"

// AuthMux is the HTTP surface over the authentication core. It exposes
// registration, the three login channels, biometric enrollment and
// account linking; the OAuth2 redirect dance itself lives in the oauth2
// subpackage and is mounted via AddProvider.
type AuthMux struct {
	Auth         *Authenticator
	Registration *RegistrationPolicy
	Vault        *BiometricVault
	Directory    Directory
	Middleware   *Middleware

	// Session, when set, records the logged-in username on web (OAuth2)
	// flows so browser navigation stays authenticated between requests.
	Session *scs.SessionManager

	// SessionUserKey defaults to "loggedInUser"
	SessionUserKey string

	// SessionPendingLinkKey defaults to "pendingLinkAssertion"
	SessionPendingLinkKey string

	router *mux.Router
}

// Handler builds and returns the route tree
func (a *AuthMux) Handler() http.Handler {
	if a.router != nil {
		return a.router
	}

	r := mux.NewRouter()
	r.HandleFunc("/auth/register", a.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", a.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/biometric/login", a.handleBiometricLogin).Methods(http.MethodPost)

	protected := r.NewRoute().Subrouter()
	protected.Use(a.Middleware.RequireAuth)
	protected.HandleFunc("/auth/biometric/register", a.handleBiometricRegister).Methods(http.MethodPost)
	protected.HandleFunc("/auth/biometric/{modality}", a.handleBiometricRemove).Methods(http.MethodDelete)
	protected.HandleFunc("/auth/link", a.handleLink).Methods(http.MethodPost)
	protected.HandleFunc("/auth/unlink", a.handleUnlink).Methods(http.MethodDelete)

	a.router = r
	return r
}

// AddProvider mounts an OAuth2 provider handler under /auth/{name}. The
// provider calls HandleAssertion (below) on a successful callback.
func (a *AuthMux) AddProvider(name string, handler http.Handler) {
	a.Handler()
	prefix := "/auth/" + strings.Trim(name, "/")
	// The bare prefix redirects to prefix+"/" so the stripped path seen by
	// the provider's mux is always rooted.
	a.router.Path(prefix).Handler(http.RedirectHandler(prefix+"/", http.StatusMovedPermanently))
	a.router.PathPrefix(prefix + "/").Handler(http.StripPrefix(prefix, handler))
}

// HandleAssertion completes an OAuth2 callback. A dance started with link
// intent parks the verified assertion in the web session for a follow-up
// POST /auth/link; otherwise the assertion is resolved into a login and
// the envelope is returned.
func (a *AuthMux) HandleAssertion(assertion *Assertion, w http.ResponseWriter, r *http.Request) {
	if cookie, _ := r.Cookie(LinkIntentCookie); cookie != nil {
		a.handlePendingLink(assertion, w, r)
		return
	}

	session, err := a.Auth.LoginOAuth2(assertion)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if a.Session != nil {
		a.Session.Put(r.Context(), a.sessionUserKey(), session.Username)
	}
	writeJSON(w, http.StatusOK, session)
}

// handlePendingLink records the provider-verified assertion so the owner
// of the browser session can confirm the link. No identity is created or
// logged in here.
func (a *AuthMux) handlePendingLink(assertion *Assertion, w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: LinkIntentCookie, Path: "/", MaxAge: -1})

	if a.Session == nil {
		a.writeError(w, errors.New("session manager not configured for link flow"))
		return
	}
	data, err := json.Marshal(assertion)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.Session.Put(r.Context(), a.pendingLinkKey(), string(data))
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Provider verified, confirm with POST /auth/link",
	})
}

func (a *AuthMux) sessionUserKey() string {
	if a.SessionUserKey != "" {
		return a.SessionUserKey
	}
	return "loggedInUser"
}

func (a *AuthMux) pendingLinkKey() string {
	if a.SessionPendingLinkKey != "" {
		return a.SessionPendingLinkKey
	}
	return "pendingLinkAssertion"
}

func (a *AuthMux) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string   `json:"username"`
		Email    string   `json:"email"`
		Password string   `json:"password"`
		Roles    []string `json:"roles,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := a.Registration.Register(req.Username, req.Email, req.Password, req.Roles); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "User registered successfully"})
}

func (a *AuthMux) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		a.writeError(w, NewAuthError(ErrCodeMissingField, "Username and password are required", ""))
		return
	}

	session, err := a.Auth.LoginLocal(req.Username, req.Password)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *AuthMux) handleBiometricLogin(w http.ResponseWriter, r *http.Request) {
	var sample Sample
	if !decodeJSON(w, r, &sample) {
		return
	}

	session, err := a.Auth.LoginBiometric(&sample)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *AuthMux) handleBiometricRegister(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.loggedInIdentity(w, r)
	if !ok {
		return
	}

	var sample Sample
	if !decodeJSON(w, r, &sample) {
		return
	}

	if err := a.Vault.Enroll(identity.ID, &sample); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Biometric data registered successfully"})
}

func (a *AuthMux) handleBiometricRemove(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.loggedInIdentity(w, r)
	if !ok {
		return
	}

	modality, err := ParseModality(mux.Vars(r)["modality"])
	if err != nil {
		a.writeError(w, err)
		return
	}

	if err := a.Vault.Remove(identity.ID, modality); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Biometric data removed successfully"})
}

// handleLink binds a provider principal onto the caller's account. The
// binding is never taken from the request body: it comes from the
// assertion the provider callback verified and parked in the web session,
// so a caller can only link an external id they just authenticated as.
func (a *AuthMux) handleLink(w http.ResponseWriter, r *http.Request) {
	username := SubjectFromContext(r.Context())

	if a.Session == nil {
		a.writeError(w, errors.New("session manager not configured for link flow"))
		return
	}
	raw := a.Session.GetString(r.Context(), a.pendingLinkKey())
	if raw == "" {
		a.writeError(w, ErrLinkNotVerified)
		return
	}
	var assertion Assertion
	if err := json.Unmarshal([]byte(raw), &assertion); err != nil {
		a.writeError(w, ErrLinkNotVerified)
		return
	}

	if err := a.Auth.Resolver.Link(username, assertion.Provider, assertion.ExternalID); err != nil {
		a.writeError(w, err)
		return
	}
	a.Session.Remove(r.Context(), a.pendingLinkKey())
	writeJSON(w, http.StatusOK, map[string]string{"message": "Account linked successfully"})
}

// handleUnlink clears the caller's own provider binding. The binding to
// remove is read from the caller's identity, never from the request, so
// nobody can unlink someone else's account.
func (a *AuthMux) handleUnlink(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.loggedInIdentity(w, r)
	if !ok {
		return
	}
	if !identity.Linked() {
		a.writeError(w, ErrNotFound)
		return
	}

	if err := a.Auth.Resolver.Unlink(identity.Provider, identity.ExternalID); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Account unlinked successfully"})
}

func (a *AuthMux) loggedInIdentity(w http.ResponseWriter, r *http.Request) (*Identity, bool) {
	username := SubjectFromContext(r.Context())
	identity, err := a.Directory.FindByUsername(username)
	if err != nil {
		a.writeError(w, err)
		return nil, false
	}
	if identity == nil {
		a.writeError(w, ErrNotFound)
		return nil, false
	}
	return identity, true
}

// writeError maps domain failures onto HTTP statuses. Unexpected errors
// surface as a generic 500 without leaking internals.
func (a *AuthMux) writeError(w http.ResponseWriter, err error) {
	var ae *AuthError
	if errors.As(err, &ae) {
		writeJSON(w, statusForCode(ae.Code), ae)
		return
	}

	var te *TokenError
	if errors.As(err, &te) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	slog.Error("internal error serving auth request", "err", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func statusForCode(code string) int {
	switch code {
	case ErrCodeInvalidCreds, ErrCodeNoMatch, ErrCodeLivenessFailed:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeAlreadyLinked, ErrCodeLastAuthMethod, ErrCodeVersionConflict:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
