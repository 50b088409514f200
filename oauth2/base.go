// Package oauth2 implements the browser-facing OAuth2 redirect dance for
// the supported providers. Each provider is an http.Handler meant to be
// mounted under /auth/{provider}; it redirects to the provider's consent
// page, validates the state cookie on callback, exchanges the code,
// fetches the user's profile and hands a verified Assertion to the
// configured callback.
package oauth2

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/triauth/triauth"
)

// userInfoFetcher fetches and parses the provider's profile endpoint
type userInfoFetcher func(ctx context.Context, token *oauth2.Token) (map[string]any, error)

// assertionMapper converts a raw profile document into an Assertion
type assertionMapper func(userInfo map[string]any) (*triauth.Assertion, error)

// BaseProvider carries the pieces shared by every provider: the oauth2
// config, the state-cookie redirector and the callback plumbing.
type BaseProvider struct {
	Name string

	// HandleAssertion receives the verified assertion after a successful
	// callback. Typically AuthMux.HandleAssertion.
	HandleAssertion triauth.HandleAssertionFunc

	// AuthFailureURL is where a failed callback redirects the browser.
	// Defaults to "/auth/{name}/fail/".
	AuthFailureURL string

	// HTTPClient overrides the client used for code exchange and profile
	// fetches. Nil means http.DefaultClient.
	HTTPClient *http.Client

	oauthConfig oauth2.Config
	fetch       userInfoFetcher
	mapToAssert assertionMapper
	mux         *http.ServeMux
}

func newBaseProvider(name string, cfg oauth2.Config, fetch userInfoFetcher, mapToAssert assertionMapper, handle triauth.HandleAssertionFunc) *BaseProvider {
	b := &BaseProvider{
		Name:            name,
		HandleAssertion: handle,
		oauthConfig:     cfg,
		fetch:           fetch,
		mapToAssert:     mapToAssert,
		mux:             http.NewServeMux(),
	}
	b.mux.HandleFunc("/", Redirector(&b.oauthConfig))
	b.mux.HandleFunc("/callback/", b.handleCallback)
	return b
}

func (b *BaseProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

// SetEndpoint overrides the provider's auth and token URLs so tests can
// point the flow at a local server.
func (b *BaseProvider) SetEndpoint(authURL, tokenURL string) {
	b.oauthConfig.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
}

func (b *BaseProvider) failureURL() string {
	if b.AuthFailureURL != "" {
		return b.AuthFailureURL
	}
	return "/auth/" + b.Name + "/fail/"
}

// exchangeContext injects the provider's HTTP client into the oauth2
// library's exchange call so tests can point it at a fake server.
func (b *BaseProvider) exchangeContext() context.Context {
	ctx := context.Background()
	if b.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, b.HTTPClient)
	}
	return ctx
}

func (b *BaseProvider) httpClient() *http.Client {
	if b.HTTPClient != nil {
		return b.HTTPClient
	}
	return http.DefaultClient
}

func (b *BaseProvider) handleCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, _ := r.Cookie(stateCookieName)
	if stateCookie == nil {
		http.Error(w, "missing oauth state cookie", http.StatusBadRequest)
		return
	}
	if r.FormValue("state") != stateCookie.Value {
		clearStateCookie(w)
		http.Error(w, "invalid oauth state", http.StatusBadRequest)
		return
	}
	clearStateCookie(w)

	ctx := b.exchangeContext()
	token, err := b.oauthConfig.Exchange(ctx, r.FormValue("code"))
	if err != nil {
		slog.Info("oauth2 code exchange failed", "provider", b.Name, "err", err)
		http.Redirect(w, r, b.failureURL(), http.StatusTemporaryRedirect)
		return
	}

	userInfo, err := b.fetch(ctx, token)
	if err != nil {
		slog.Info("oauth2 profile fetch failed", "provider", b.Name, "err", err)
		http.Redirect(w, r, b.failureURL(), http.StatusTemporaryRedirect)
		return
	}

	assertion, err := b.mapToAssert(userInfo)
	if err != nil {
		slog.Info("oauth2 profile missing required fields", "provider", b.Name, "err", err)
		http.Redirect(w, r, b.failureURL(), http.StatusTemporaryRedirect)
		return
	}

	b.HandleAssertion(assertion, w, r)
}
