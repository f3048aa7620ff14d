package config

import (
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService groups this application's secrets in the OS keychain.
const KeyringService = "talentpilot"

// ErrNoCredential is returned when no password is configured and the OS
// keychain holds none for the account.
var ErrNoCredential = errors.New("config: no password configured or stored in keychain")

// ResolvePassword returns the password to use for login: the configured
// value if present, otherwise the OS keychain entry for the account email.
func (c *Config) ResolvePassword() (string, error) {
	if strings.TrimSpace(c.Password) != "" {
		return c.Password, nil
	}
	pw, err := keyring.Get(KeyringService, c.Email)
	if err != nil || strings.TrimSpace(pw) == "" {
		return "", ErrNoCredential
	}
	return pw, nil
}

// StorePassword saves a password in the OS keychain for the account email.
func (c *Config) StorePassword(password string) error {
	if strings.TrimSpace(c.Email) == "" {
		return errors.New("config: email must be set before storing a password")
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("config: password is empty")
	}
	return keyring.Set(KeyringService, c.Email, password)
}
