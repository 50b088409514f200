package oauth2

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/triauth/triauth"
)

const stateCookieName = "oauthstate"

func generateStateOauthCookie(w http.ResponseWriter) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		slog.Error("failed to generate oauth state", "err", err)
	}
	state := base64.URLEncoding.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(time.Hour),
		HttpOnly: true,
	})
	return state
}

func clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Path:   "/",
		MaxAge: -1,
	})
}

// Redirector sends the browser to the provider's consent page, setting
// the state cookie the callback will check. A callbackURL query param is
// remembered in a short-lived cookie so the app can send the user back
// where they started after login; a link query param marks the dance as
// an account-link attempt rather than a login.
func Redirector(oauthConfig *oauth2.Config) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("link") != "" {
			http.SetCookie(w, &http.Cookie{
				Name:     triauth.LinkIntentCookie,
				Value:    "1",
				Path:     "/",
				MaxAge:   300, // keep this short
				HttpOnly: true,
			})
		}
		if callbackURL := r.URL.Query().Get("callbackURL"); callbackURL != "" {
			http.SetCookie(w, &http.Cookie{
				Name:    "oauthCallbackURL",
				Value:   callbackURL,
				Path:    "/",
				Expires: time.Now().Add(24 * time.Hour),
				MaxAge:  120, // keep this short
			})
		}
		state := generateStateOauthCookie(w)
		http.Redirect(w, r, oauthConfig.AuthCodeURL(state), http.StatusFound)
	}
}
