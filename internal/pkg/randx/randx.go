/*
Package randx provides functions for generating cryptographically secure random strings and unique identifiers.

It is primarily used to generate UUID ids for rooms, messages and stored objects, and Base62 connection ids.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// ConnectionIDPrefix is the prefix of every connection id.
	ConnectionIDPrefix = "conn_"

	// ConnectionIDRawLength is the fixed length of the Base62 part of a connection id.
	ConnectionIDRawLength = 16
)

// ID generates a standard UUID v4 string for rooms, messages and objects.
func ID() string {
	return uuid.New().String()
}

// IsValidID reports whether id is a UUID in its canonical textual form.
func IsValidID(id string) bool {
	parsed, err := uuid.Parse(id)
	return err == nil && parsed.String() == strings.ToLower(id)
}

// ConnectionID generates a connection id using a cryptographically secure random number generator (crypto/rand).
func ConnectionID() (string, error) {
	raw, err := base62(ConnectionIDRawLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate connection id: %w", err)
	}
	return ConnectionIDPrefix + raw, nil
}

// IsValidConnectionID checks the prefix, length and character set of id.
func IsValidConnectionID(id string) bool {
	if !strings.HasPrefix(id, ConnectionIDPrefix) {
		return false
	}

	rawID := id[len(ConnectionIDPrefix):]

	if len(rawID) != ConnectionIDRawLength {
		return false
	}

	for _, char := range rawID {
		if !strings.ContainsRune(Base62Chars, char) {
			return false
		}
	}

	return true
}

func base62(length int) (string, error) {
	result := make([]byte, length)

	for i := range length {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}

		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}
