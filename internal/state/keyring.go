package state

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name passphrases are stored under.
const KeyringService = "imd-cfg"

// PassphraseVault remembers the state-file passphrase in the OS keyring,
// keyed by the state file path, so a resumed run does not ask again.
type PassphraseVault struct {
	service string
	user    string
}

// NewPassphraseVault returns a vault entry for the store's state file.
func NewPassphraseVault(s *Store) *PassphraseVault {
	return &PassphraseVault{service: KeyringService, user: s.Path()}
}

// Get returns the remembered passphrase, or "" when none is stored.
func (v *PassphraseVault) Get() (string, error) {
	secret, err := keyring.Get(v.service, v.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase from keyring: %w", err)
	}
	return secret, nil
}

// Set stores passphrase, replacing any previous one.
func (v *PassphraseVault) Set(passphrase string) error {
	if err := keyring.Set(v.service, v.user, passphrase); err != nil {
		return fmt.Errorf("failed to store passphrase in keyring: %w", err)
	}
	return nil
}

// Forget deletes the remembered passphrase. Nothing stored is not an error.
func (v *PassphraseVault) Forget() error {
	if err := keyring.Delete(v.service, v.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete passphrase from keyring: %w", err)
	}
	return nil
}
