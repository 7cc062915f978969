package auth

import (
	"errors"
	"log/slog"
)

// Sentinel errors for authentication failures.
var (
	ErrEmptyKey   = errors.New("no API key supplied")
	ErrInvalidKey = errors.New("invalid API key")
)

// minKeyLength is the cheapest possible reject: configured keys are
// required to be at least this long, so shorter candidates can never match.
const minKeyLength = 10

// KeyStore answers authentication queries against a static key map.
// The index is built once at startup and never mutated, so concurrent
// reads need no locking.
type KeyStore struct {
	byKey map[string]string // key -> username
}

// NewKeyStore builds the inverse index from a username -> key map.
func NewKeyStore(keys map[string]string) *KeyStore {
	byKey := make(map[string]string, len(keys))
	for user, key := range keys {
		byKey[key] = user
	}
	return &KeyStore{byKey: byKey}
}

// Authenticate resolves a candidate key to its username.
// Returns ErrEmptyKey for an absent key and ErrInvalidKey for an
// unknown one. Only a key prefix ever reaches the logs.
func (s *KeyStore) Authenticate(candidate string) (string, error) {
	if candidate == "" {
		return "", ErrEmptyKey
	}
	if len(candidate) < minKeyLength {
		slog.Warn("authentication rejected, key too short", "key_prefix", keyPrefix(candidate))
		return "", ErrInvalidKey
	}
	user, ok := s.byKey[candidate]
	if !ok {
		slog.Warn("authentication failed, unknown key", "key_prefix", keyPrefix(candidate))
		return "", ErrInvalidKey
	}
	slog.Info("authenticated", "user", user, "key_prefix", keyPrefix(candidate))
	return user, nil
}

func keyPrefix(key string) string {
	if len(key) <= 3 {
		return key
	}
	return key[:3]
}
