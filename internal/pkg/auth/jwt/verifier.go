package jwt

import (
	"context"
	"errors"
	"fmt"

	"roomchat/internal/app/store"
	"roomchat/internal/app/user"
)

// ErrInactiveUser is returned for a valid token whose account is gone or deactivated.
var ErrInactiveUser = errors.New("user not found or inactive")

// IdentityVerifier turns a bearer credential into the identity it was issued to.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*user.Identity, error)
}

// Verifier checks the token signature and loads the current identity from the user store.
type Verifier struct {
	secretKey string
	users     store.UserStore
}

var _ IdentityVerifier = (*Verifier)(nil)

// NewVerifier creates a Verifier for tokens signed with secretKey.
func NewVerifier(secretKey string, users store.UserStore) *Verifier {
	return &Verifier{secretKey: secretKey, users: users}
}

// Verify implements IdentityVerifier.
func (v *Verifier) Verify(ctx context.Context, token string) (*user.Identity, error) {
	payload, err := ParseToken(token, v.secretKey)
	if err != nil {
		return nil, err
	}

	identity, err := v.users.FindUserByID(ctx, payload.UserID())
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInactiveUser
	}
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	if !identity.IsActive {
		return nil, ErrInactiveUser
	}

	return identity, nil
}
