package jwt

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"roomchat/internal/app/user"
	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/resp"
)

// Define Context Key for storing the identity, preventing key collisions with other packages.
type contextKey string

const (
	// ContextIdentityKey is the key used to store the verified *user.Identity in the request Context.
	ContextIdentityKey contextKey = "auth_identity"
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header,
// falling back to the token query parameter used by browser WebSocket clients.
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}

	return r.URL.Query().Get("token")
}

// RequireIdentity verifies the bearer token and injects the identity into the
// request context. Missing, invalid or expired tokens get 401.
func RequireIdentity(verifier IdentityVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}

			identity, err := verifier.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, ErrInactiveUser) {
					logx.Warn("Token of inactive user rejected", "error", err.Error())
				}
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}

			ctx := WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *user.Identity) context.Context {
	return context.WithValue(ctx, ContextIdentityKey, identity)
}

// IdentityFromContext safely extracts the verified identity from the request Context.
// A nil return means the route is not behind RequireIdentity.
func IdentityFromContext(r *http.Request) *user.Identity {
	identity, ok := r.Context().Value(ContextIdentityKey).(*user.Identity)

	if !ok {
		return nil
	}

	return identity
}
