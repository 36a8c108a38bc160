// Package credentials stores the Gemini API key in the OS keychain. The
// raw secret is returned to callers only; it is never written to settings
// or logs.
package credentials

import (
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	service = "video-chapters"
	account = "gemini_api_key"
)

// Store defines secret operations for the Gemini API key.
type Store interface {
	Get() (string, error)
	Set(secret string) error
	Clear() error
}

// KeyringStore keeps the key in the platform keychain.
type KeyringStore struct{}

// NewKeyringStore creates the OS-backed credential store.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

// Get returns the stored key, or empty when none is stored.
func (s *KeyringStore) Get() (string, error) {
	secret, err := keyring.Get(service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return secret, nil
}

// Set stores the key, rejecting blank values.
func (s *KeyringStore) Set(secret string) error {
	if strings.TrimSpace(secret) == "" {
		return errors.New("api key must not be empty")
	}
	return keyring.Set(service, account, secret)
}

// Clear removes the stored key; a missing entry is not an error.
func (s *KeyringStore) Clear() error {
	if err := keyring.Delete(service, account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}
