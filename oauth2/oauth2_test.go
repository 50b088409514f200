package oauth2_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/triauth/triauth"
	"github.com/triauth/triauth/oauth2"
)

// mockProviderServer fakes the provider's token and userinfo endpoints
type mockProviderServer struct {
	server   *httptest.Server
	userInfo map[string]any
}

func newMockProviderServer() *mockProviderServer {
	mock := &mockProviderServer{
		userInfo: map[string]any{
			"id":    float64(12345),
			"email": "testuser@example.com",
			"name":  "Test User",
			"login": "testuser",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "mock_access_token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer mock_access_token" {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mock.userInfo)
	})

	mock.server = httptest.NewServer(mux)
	return mock
}

func (m *mockProviderServer) Close() { m.server.Close() }

func newTestGithubProvider(mock *mockProviderServer, handle triauth.HandleAssertionFunc) *oauth2.GithubProvider {
	provider := oauth2.NewGithubProvider("client-id", "client-secret", "http://localhost/auth/github/callback/", handle)
	provider.SetEndpoint(mock.server.URL+"/auth", mock.server.URL+"/token")
	provider.UserInfoURL = mock.server.URL + "/userinfo"
	return provider
}

func TestRedirectorSetsStateAndRedirects(t *testing.T) {
	mock := newMockProviderServer()
	defer mock.Close()

	provider := newTestGithubProvider(mock, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	provider.ServeHTTP(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("Expected 302, got %d", rr.Code)
	}

	location := rr.Header().Get("Location")
	parsed, err := url.Parse(location)
	if err != nil {
		t.Fatalf("Failed to parse redirect URL: %v", err)
	}
	if parsed.Query().Get("client_id") != "client-id" {
		t.Errorf("Expected client_id in redirect, got %s", location)
	}
	state := parsed.Query().Get("state")
	if state == "" {
		t.Fatal("Expected a state parameter")
	}

	var stateCookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == "oauthstate" {
			stateCookie = c
		}
	}
	if stateCookie == nil {
		t.Fatal("Expected oauthstate cookie")
	}
	if stateCookie.Value != state {
		t.Errorf("Cookie state %s does not match URL state %s", stateCookie.Value, state)
	}

	t.Run("link intent sets the marker cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?link=1", nil)
		rr := httptest.NewRecorder()
		provider.ServeHTTP(rr, req)

		found := false
		for _, c := range rr.Result().Cookies() {
			if c.Name == triauth.LinkIntentCookie && c.Value != "" {
				found = true
			}
		}
		if !found {
			t.Error("Expected link intent cookie on ?link=1")
		}
	})

	t.Run("plain login sets no link intent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		provider.ServeHTTP(rr, req)

		for _, c := range rr.Result().Cookies() {
			if c.Name == triauth.LinkIntentCookie {
				t.Error("Link intent cookie must not be set on a plain login")
			}
		}
	})
}

func TestGithubCallbackDeliversAssertion(t *testing.T) {
	mock := newMockProviderServer()
	defer mock.Close()

	var got *triauth.Assertion
	provider := newTestGithubProvider(mock, func(assertion *triauth.Assertion, w http.ResponseWriter, r *http.Request) {
		got = assertion
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/callback/?state=test-state&code=test-code", nil)
	req.AddCookie(&http.Cookie{Name: "oauthstate", Value: "test-state"})
	rr := httptest.NewRecorder()
	provider.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Callback returned %d: %s", rr.Code, rr.Body.String())
	}
	if got == nil {
		t.Fatal("Assertion was not delivered")
	}
	if got.Provider != "github" {
		t.Errorf("Expected provider github, got %s", got.Provider)
	}
	if got.ExternalID != "12345" {
		t.Errorf("Expected external id 12345, got %s", got.ExternalID)
	}
	if got.Email != "testuser@example.com" {
		t.Errorf("Expected email testuser@example.com, got %s", got.Email)
	}
	if got.DisplayName != "Test User" {
		t.Errorf("Expected display name Test User, got %s", got.DisplayName)
	}
}

func TestGithubCallbackFallsBackToLogin(t *testing.T) {
	mock := newMockProviderServer()
	defer mock.Close()
	delete(mock.userInfo, "name")

	var got *triauth.Assertion
	provider := newTestGithubProvider(mock, func(assertion *triauth.Assertion, w http.ResponseWriter, r *http.Request) {
		got = assertion
	})

	req := httptest.NewRequest(http.MethodGet, "/callback/?state=s&code=c", nil)
	req.AddCookie(&http.Cookie{Name: "oauthstate", Value: "s"})
	provider.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil {
		t.Fatal("Assertion was not delivered")
	}
	if got.DisplayName != "testuser" {
		t.Errorf("Expected fallback to login, got %s", got.DisplayName)
	}
}

func TestCallbackStateValidation(t *testing.T) {
	mock := newMockProviderServer()
	defer mock.Close()

	called := false
	provider := newTestGithubProvider(mock, func(assertion *triauth.Assertion, w http.ResponseWriter, r *http.Request) {
		called = true
	})

	t.Run("missing state cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/callback/?state=s&code=c", nil)
		rr := httptest.NewRecorder()
		provider.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rr.Code)
		}
	})

	t.Run("state mismatch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/callback/?state=forged&code=c", nil)
		req.AddCookie(&http.Cookie{Name: "oauthstate", Value: "real"})
		rr := httptest.NewRecorder()
		provider.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rr.Code)
		}
	})

	if called {
		t.Error("Handler must not run on state validation failure")
	}
}

func TestGoogleProviderMapsProfile(t *testing.T) {
	mock := newMockProviderServer()
	defer mock.Close()
	mock.userInfo = map[string]any{
		"id":    "google-id-1",
		"email": "guser@example.com",
		"name":  "G User",
	}

	var got *triauth.Assertion
	provider := oauth2.NewGoogleProvider("client-id", "client-secret", "http://localhost/auth/google/callback/",
		func(assertion *triauth.Assertion, w http.ResponseWriter, r *http.Request) {
			got = assertion
		})
	provider.SetEndpoint(mock.server.URL+"/auth", mock.server.URL+"/token")
	provider.UserInfoURL = mock.server.URL + "/userinfo"

	req := httptest.NewRequest(http.MethodGet, "/callback/?state=s&code=c", nil)
	req.AddCookie(&http.Cookie{Name: "oauthstate", Value: "s"})
	provider.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil {
		t.Fatal("Assertion was not delivered")
	}
	if got.Provider != "google" || got.ExternalID != "google-id-1" {
		t.Errorf("Unexpected assertion: %+v", got)
	}
	if !strings.Contains(got.Email, "@") {
		t.Errorf("Unexpected email: %s", got.Email)
	}
}
