// Package secrets stores the JSS API password outside the preferences file.
package secrets

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// ErrNotFound means no password is stored for the service and user.
var ErrNotFound = errors.New("no password stored")

// Store keeps one password per service and user. The service is the JSS URL.
type Store interface {
	Get(service, user string) (string, error)
	Set(service, user, password string) error
}

// Keychain is a Store backed by the system keychain
type Keychain struct{}

// Get reads the password from the system keychain
func (Keychain) Get(service, user string) (string, error) {
	password, err := keyring.Get(service, user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w in the keychain for %s on %s", ErrNotFound, user, service)
		}
		return "", fmt.Errorf("failed to read keychain: %w", err)
	}
	return password, nil
}

// Set writes the password to the system keychain
func (Keychain) Set(service, user, password string) error {
	if err := keyring.Set(service, user, password); err != nil {
		return fmt.Errorf("failed to store credentials in keychain: %w", err)
	}
	return nil
}
