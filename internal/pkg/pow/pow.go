/*
Package pow implements the Proof-of-Work (PoW) gate placed in front of account
registration.

A client fetches a nonce, searches for a counter whose SHA-256 over
nonce+counter starts with the configured number of hex zeros, and trades the
proof for a short-lived, single-use Proof Token.
*/
package pow

import (
	"context"
	"crypto/sha256"
	"errors"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// TokenHeaderKey is the HTTP header key used by the client to send the Proof Token.
	TokenHeaderKey = "X-PoW-Token"

	// ProofTokenDuration is the validity period for the Proof Token issued after successful PoW validation.
	ProofTokenDuration = 30 * time.Second

	// NonceExpiryDuration is the validity period for the challenge Nonce.
	NonceExpiryDuration = 5 * time.Minute
)

var (
	// ErrNonceInvalid is returned for an unknown, expired or already consumed nonce.
	ErrNonceInvalid = errors.New("nonce expired or invalid")

	// ErrProofInsufficient is returned when the hash misses the difficulty prefix.
	ErrProofInsufficient = errors.New("proof does not meet difficulty requirement")
)

// PoWManager is responsible for managing the lifecycle of PoW challenges and Proof Tokens.
// It is concurrent-safe, using internal maps to store active nonces and tokens.
type PoWManager struct {
	// difficulty is the required number of leading zeros for the PoW challenge hash.
	difficulty int

	// nonceStore stores active nonces and their expiration times.
	nonceStore map[string]time.Time

	// tokenStore stores issued Proof Tokens and their expiration times.
	tokenStore map[string]time.Time

	// mu protects concurrent access to nonceStore and tokenStore.
	mu sync.RWMutex

	now func() time.Time
}

// NewPoWManager creates and initializes a new PoWManager instance.
// Call Run to start the expiry sweep.
func NewPoWManager(difficulty int) *PoWManager {
	return &PoWManager{
		difficulty: difficulty,
		nonceStore: make(map[string]time.Time),
		tokenStore: make(map[string]time.Time),
		now:        time.Now,
	}
}

// WithClock replaces the time source.
func (m *PoWManager) WithClock(now func() time.Time) *PoWManager {
	m.now = now
	return m
}

// Difficulty returns the number of leading hex zeros a proof must have.
func (m *PoWManager) Difficulty() int {
	return m.difficulty
}

// GenerateNonce generates a unique Nonce string for the PoW challenge and stores it for validation.
// Returns the newly generated Nonce.
func (m *PoWManager) GenerateNonce() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	nonce := uuid.New().String()
	m.nonceStore[nonce] = m.now().Add(NonceExpiryDuration)
	return nonce
}

// ValidateProof validates the PoW proof provided by the client.
// It checks if the Nonce is valid and unexpired, and verifies if the SHA256 hash of the
// Nonce + Counter combination meets the difficulty requirement (number of leading zeros).
// If validation succeeds, it issues and returns a temporary Proof Token.
func (m *PoWManager) ValidateProof(nonce, counter string) (string, error) {
	m.mu.RLock()
	expiryTime, ok := m.nonceStore[nonce]
	m.mu.RUnlock()

	if !ok || m.now().After(expiryTime) {
		return "", ErrNonceInvalid
	}

	if !MeetsDifficulty(nonce, counter, m.difficulty) {
		return "", ErrProofInsufficient
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, stillExists := m.nonceStore[nonce]; !stillExists {
		return "", ErrNonceInvalid
	}

	delete(m.nonceStore, nonce)

	token := uuid.New().String()
	m.tokenStore[token] = m.now().Add(ProofTokenDuration)
	return token, nil
}

// MeetsDifficulty reports whether sha256(nonce+counter) in hex starts with difficulty zeros.
func MeetsDifficulty(nonce, counter string, difficulty int) bool {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s%s", nonce, counter)))
	return strings.HasPrefix(hex.EncodeToString(hash[:]), strings.Repeat("0", difficulty))
}

// ConsumeProofToken checks if the request carries a valid Proof Token and spends it.
// The Proof Token can be located in the HTTP header (X-PoW-Token) or the URL query parameter (pow_token).
func (m *PoWManager) ConsumeProofToken(r *http.Request) bool {
	token := r.Header.Get(TokenHeaderKey)
	if token == "" {
		token = r.URL.Query().Get("pow_token")
	}

	if token == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiryTime, ok := m.tokenStore[token]
	delete(m.tokenStore, token)

	return ok && !m.now().After(expiryTime)
}

// Run periodically cleans up expired entries in both nonceStore and tokenStore until ctx is done.
func (m *PoWManager) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *PoWManager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for nonce, expiry := range m.nonceStore {
		if now.After(expiry) {
			delete(m.nonceStore, nonce)
		}
	}

	for token, expiry := range m.tokenStore {
		if now.After(expiry) {
			delete(m.tokenStore, token)
		}
	}
}
