package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/triauth/triauth"
)

// GoogleProvider drives the Google OAuth2 flow
type GoogleProvider struct {
	*BaseProvider

	// UserInfoURL can be overridden for testing
	UserInfoURL string
}

func NewGoogleProvider(clientID, clientSecret, callbackURL string, handle triauth.HandleAssertionFunc) *GoogleProvider {
	if clientID == "" {
		clientID = os.Getenv("OAUTH2_GOOGLE_CLIENT_ID")
	}
	if clientSecret == "" {
		clientSecret = os.Getenv("OAUTH2_GOOGLE_CLIENT_SECRET")
	}
	if callbackURL == "" {
		callbackURL = os.Getenv("OAUTH2_GOOGLE_CALLBACK_URL")
	}

	out := &GoogleProvider{
		UserInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
	}
	out.BaseProvider = newBaseProvider("google", oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  callbackURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}, out.fetchUserInfo, googleAssertion, handle)
	return out
}

func (g *GoogleProvider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	response, err := g.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed getting user info from google: %w", err)
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

func googleAssertion(userInfo map[string]any) (*triauth.Assertion, error) {
	externalID := stringField(userInfo, "id")
	if externalID == "" {
		externalID = stringField(userInfo, "sub")
	}
	if externalID == "" {
		return nil, errors.New("google profile has no id")
	}
	email := stringField(userInfo, "email")
	if email == "" {
		return nil, errors.New("google profile has no email")
	}
	return &triauth.Assertion{
		Provider:    "google",
		ExternalID:  externalID,
		Email:       email,
		DisplayName: stringField(userInfo, "name"),
	}, nil
}

func stringField(userInfo map[string]any, key string) string {
	switch v := userInfo[key].(type) {
	case string:
		return v
	case float64:
		// json numbers decode as float64; provider ids are integral
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}
