package storage

import (
	"encoding/json"
	"fmt"

	"github.com/atinyakov/consultdesk/internal/models"
)

// TokenKey is the storage key holding the JSON-encoded token pair.
const TokenKey = "auth-tokens"

// TokenStore persists the member's token pair under TokenKey.
type TokenStore struct {
	s Storage
}

// NewTokenStore wraps s.
func NewTokenStore(s Storage) *TokenStore {
	return &TokenStore{s: s}
}

// Load returns the stored pair. Absent or malformed values load as the zero
// pair.
func (t *TokenStore) Load() models.TokenPair {
	raw, ok := t.s.Get(TokenKey)
	if !ok || raw == "" {
		return models.TokenPair{}
	}
	var pair models.TokenPair
	if err := json.Unmarshal([]byte(raw), &pair); err != nil {
		return models.TokenPair{}
	}
	return pair
}

// Save replaces the stored pair.
func (t *TokenStore) Save(pair models.TokenPair) error {
	b, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}
	if err := t.s.Set(TokenKey, string(b)); err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	return nil
}

// Clear removes the stored pair.
func (t *TokenStore) Clear() error {
	if err := t.s.Remove(TokenKey); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}
