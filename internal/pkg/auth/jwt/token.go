package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"

	"roomchat/internal/app/user"
)

const (
	// AccessTokenExpiration is the lifetime of an access token.
	AccessTokenExpiration = 7 * 24 * time.Hour

	TokenIssuer = "roomchat"
)

var (
	ErrUnexpectedSigningMethod = errors.New("unexpected signing method")
	ErrTokenInvalid            = errors.New("invalid or expired token")
	ErrMissingSubject          = errors.New("token carries no user id")
)

// IssueToken signs an HS256 access token for identity that expires ttl from now.
func IssueToken(identity *user.Identity, secretKey string, ttl time.Duration) (string, time.Time, error) {
	payload := newPayload(identity, time.Now(), ttl)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString([]byte(secretKey))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, payload.Expiry(), nil
}

// ParseToken checks the signature and the standard claims of tokenString.
func ParseToken(tokenString string, secretKey string) (*Payload, error) {
	payload := &Payload{}

	token, err := jwt.ParseWithClaims(tokenString, payload, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnexpectedSigningMethod
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	if payload.UserID() == "" {
		return nil, ErrMissingSubject
	}
	return payload, nil
}
