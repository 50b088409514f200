package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/triauth/triauth"
)

// GithubProvider drives the GitHub OAuth2 flow
type GithubProvider struct {
	*BaseProvider

	// UserInfoURL can be overridden for testing
	UserInfoURL string
}

func NewGithubProvider(clientID, clientSecret, callbackURL string, handle triauth.HandleAssertionFunc) *GithubProvider {
	if clientID == "" {
		clientID = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CLIENT_SECRET"))
	}
	if callbackURL == "" {
		callbackURL = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CALLBACK_URL"))
	}

	out := &GithubProvider{
		UserInfoURL: "https://api.github.com/user",
	}
	out.BaseProvider = newBaseProvider("github", oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  callbackURL,
		Scopes:       []string{"read:user", "user:email"},
		Endpoint:     github.Endpoint,
	}, out.fetchUserInfo, githubAssertion, handle)
	return out
}

func (g *GithubProvider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	response, err := g.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed getting user info from github: %w", err)
	}
	defer response.Body.Close()

	contents, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed read response: %w", err)
	}

	var userInfo map[string]any
	if err := json.Unmarshal(contents, &userInfo); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	return userInfo, nil
}

func githubAssertion(userInfo map[string]any) (*triauth.Assertion, error) {
	externalID := stringField(userInfo, "id")
	if externalID == "" {
		return nil, errors.New("github profile has no id")
	}
	email := stringField(userInfo, "email")
	if email == "" {
		return nil, errors.New("github profile has no public email")
	}
	displayName := stringField(userInfo, "name")
	if displayName == "" {
		displayName = stringField(userInfo, "login")
	}
	return &triauth.Assertion{
		Provider:    "github",
		ExternalID:  externalID,
		Email:       email,
		DisplayName: displayName,
	}, nil
}
