package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/platter/internal/domain/auth"
)

// SecurityHandler authenticates requests carrying an HS256 bearer token.
type SecurityHandler struct {
	tokens *auth.Tokens
}

// NewSecurityHandler creates a SecurityHandler verifying with tokens.
func NewSecurityHandler(tokens *auth.Tokens) *SecurityHandler {
	return &SecurityHandler{tokens: tokens}
}

// Authenticate rejects requests without a valid token with 401 and stores
// the caller's auth.Principal in the context otherwise.
func (s *SecurityHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="platter"`)
			writeError(w, r, auth.ErrUnauthorized)
			return
		}

		p, err := s.tokens.Verify(token)
		if err != nil {
			zctx.From(r.Context()).Debug("Token rejected", zap.Error(err))
			w.Header().Set("WWW-Authenticate", `Bearer realm="platter", error="invalid_token"`)
			writeError(w, r, auth.ErrUnauthorized)
			return
		}

		ctx := auth.WithPrincipal(r.Context(), p)
		ctx = zctx.With(ctx, zap.String("user_id", p.UserID), zap.String("role", string(p.Role)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

// principal returns the authenticated caller. Routes are mounted behind
// Authenticate, so a missing principal is reported as unauthorized.
func principal(r *http.Request) (auth.Principal, error) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		return auth.Principal{}, auth.ErrUnauthorized
	}
	return p, nil
}
