package triauth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const (
	contextKeySubject contextKey = "authSubject"
	contextKeyClaims  contextKey = "authClaims"
)

// SubjectFromContext returns the verified token subject, or "" when the
// request carried no valid token.
func SubjectFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeySubject).(string); ok {
		return v
	}
	return ""
}

// ClaimsFromContext returns the verified token claims, if any
func ClaimsFromContext(ctx context.Context) *TokenClaims {
	if v, ok := ctx.Value(contextKeyClaims).(*TokenClaims); ok {
		return v
	}
	return nil
}

// Middleware validates Bearer tokens on protected routes and exposes the
// verified subject to downstream handlers via the request context.
type Middleware struct {
	Codec *TokenCodec

	// AuthHeader defaults to "Authorization"
	AuthHeader string

	// OnAuthError overrides the default 401 JSON response
	OnAuthError func(w http.ResponseWriter, r *http.Request, err error)
}

// RequireAuth rejects requests without a valid Bearer token
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.verifyRequest(r)
		if err != nil {
			m.handleAuthError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

// Optional lets unauthenticated requests through but still populates the
// context when a valid token is present.
func (m *Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, err := m.verifyRequest(r); err == nil {
			r = r.WithContext(withClaims(r.Context(), claims))
		}
		next.ServeHTTP(w, r)
	})
}

func withClaims(ctx context.Context, claims *TokenClaims) context.Context {
	ctx = context.WithValue(ctx, contextKeySubject, claims.Subject)
	return context.WithValue(ctx, contextKeyClaims, claims)
}

func (m *Middleware) verifyRequest(r *http.Request) (*TokenClaims, error) {
	header := m.AuthHeader
	if header == "" {
		header = "Authorization"
	}

	authHeader := r.Header.Get(header)
	if authHeader == "" {
		return nil, &TokenError{Kind: TokenMalformed}
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, &TokenError{Kind: TokenMalformed}
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return nil, &TokenError{Kind: TokenMalformed}
	}

	return m.Codec.Verify(token)
}

func (m *Middleware) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	if m.OnAuthError != nil {
		m.OnAuthError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="auth"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error": "unauthorized",
	})
}
