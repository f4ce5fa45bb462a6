// Package auth verifies the shared API key presented by clients.
//
// The key may be configured in plain text or as a bcrypt hash. Hashed keys
// cost a bcrypt comparison on first use; later requests with the same key
// hit an in-memory digest cache.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt cost used by HashKey.
const DefaultCost = bcrypt.DefaultCost

// ErrNoKey is returned by NewVerifier when neither form is configured.
var ErrNoKey = errors.New("no API key configured")

// Verifier checks a presented key.
type Verifier interface {
	Verify(presented string) bool
}

// NewVerifier builds a verifier from a plain key or a bcrypt hash. When
// both are set the hash wins.
func NewVerifier(plain, hash string) (Verifier, error) {
	switch {
	case hash != "":
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("invalid api key hash: %w", err)
		}
		return &hashedKey{hash: []byte(hash)}, nil
	case plain != "":
		return plainKey([]byte(plain)), nil
	default:
		return nil, ErrNoKey
	}
}

// HashKey returns the bcrypt hash of key for use as api_key_hash.
func HashKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrNoKey
	}
	h, err := bcrypt.GenerateFromPassword([]byte(key), DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash api key: %w", err)
	}
	return string(h), nil
}

type plainKey []byte

func (k plainKey) Verify(presented string) bool {
	return presented != "" && subtle.ConstantTimeCompare([]byte(presented), k) == 1
}

type hashedKey struct {
	hash []byte

	mu       sync.RWMutex
	verified [sha256.Size]byte
	ok       bool
}

func (k *hashedKey) Verify(presented string) bool {
	if presented == "" {
		return false
	}
	digest := sha256.Sum256([]byte(presented))

	k.mu.RLock()
	cached := k.ok && subtle.ConstantTimeCompare(digest[:], k.verified[:]) == 1
	k.mu.RUnlock()
	if cached {
		return true
	}

	if bcrypt.CompareHashAndPassword(k.hash, []byte(presented)) != nil {
		return false
	}
	k.mu.Lock()
	k.verified, k.ok = digest, true
	k.mu.Unlock()
	return true
}
