package triauth

// Session is the uniform response envelope produced by every login
// channel.
type Session struct {
	Token     string   `json:"token"`
	TokenType string   `json:"type"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
}

// Authenticator composes the verification components into the three login
// flows. Each flow delegates verification or resolution, mints a token
// over the resolved identity's current role set, and assembles the
// Session. It adds no validation of its own; component errors pass
// through unchanged, and a failure on one channel never falls back to
// another.
type Authenticator struct {
	Codec       *TokenCodec
	Credentials *CredentialVerifier
	Resolver    *IdentityResolver
}

// LoginLocal authenticates a username/password pair
func (a *Authenticator) LoginLocal(username, password string) (*Session, error) {
	identity, err := a.Credentials.Verify(username, password)
	if err != nil {
		return nil, err
	}
	return a.issueFor(identity)
}

// LoginOAuth2 authenticates a verified provider assertion
func (a *Authenticator) LoginOAuth2(assertion *Assertion) (*Session, error) {
	identity, err := a.Resolver.Resolve(assertion)
	if err != nil {
		return nil, err
	}
	return a.issueFor(identity)
}

// LoginBiometric authenticates a biometric sample
func (a *Authenticator) LoginBiometric(sample *Sample) (*Session, error) {
	identity, err := a.Resolver.ResolveByBiometricMatch(sample)
	if err != nil {
		return nil, err
	}
	return a.issueFor(identity)
}

func (a *Authenticator) issueFor(identity *Identity) (*Session, error) {
	token, err := a.Codec.Issue(identity.Username, identity.Roles)
	if err != nil {
		return nil, err
	}
	return &Session{
		Token:     token,
		TokenType: "Bearer",
		Username:  identity.Username,
		Email:     identity.Email,
		Roles:     identity.Roles,
	}, nil
}
