package jwt

import (
	"time"

	"github.com/golang-jwt/jwt"

	"roomchat/internal/app/user"
)

// Payload is the claim set of an access token. The user id travels in the
// standard "sub" claim.
type Payload struct {
	jwt.StandardClaims

	// Name and Role are informational; handlers reload the identity from the store.
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

func newPayload(identity *user.Identity, issuedAt time.Time, ttl time.Duration) *Payload {
	return &Payload{
		StandardClaims: jwt.StandardClaims{
			Subject:   identity.ID,
			Issuer:    TokenIssuer,
			IssuedAt:  issuedAt.Unix(),
			ExpiresAt: issuedAt.Add(ttl).Unix(),
		},
		Name: identity.Name,
		Role: string(identity.Role),
	}
}

// UserID returns the id of the identity the token was issued to.
func (p *Payload) UserID() string {
	return p.Subject
}

// Expiry returns the expiration time of the token.
func (p *Payload) Expiry() time.Time {
	return time.Unix(p.ExpiresAt, 0)
}
