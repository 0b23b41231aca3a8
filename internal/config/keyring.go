package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService is the keyring service tokens are stored under, one
// account per web host
const KeyringService = "ucli-registry"

// ErrNoToken indicates no token is stored for the host
var ErrNoToken = errors.New("no token stored")

// KeyringToken returns the token stored for the host of webURL, or "" when
// the keyring is unavailable or holds nothing.
func KeyringToken(webURL string) string {
	token, err := keyring.Get(KeyringService, keyringAccount(webURL))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(token)
}

// StoreToken saves token in the OS keyring for the host of webURL
func StoreToken(webURL, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: token is empty", ErrInvalidConfig)
	}
	if err := keyring.Set(KeyringService, keyringAccount(webURL), token); err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}
	return nil
}

// DeleteToken removes the stored token for the host of webURL
func DeleteToken(webURL string) error {
	err := keyring.Delete(KeyringService, keyringAccount(webURL))
	if errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w for %s", ErrNoToken, keyringAccount(webURL))
	}
	if err != nil {
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}

func keyringAccount(webURL string) string {
	if u, err := url.Parse(webURL); err == nil && u.Hostname() != "" {
		return strings.ToLower(u.Hostname())
	}
	return webURL
}
