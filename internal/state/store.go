package state

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rackops/imdcfg/internal/encryption"
	"github.com/rackops/imdcfg/internal/plan"
)

const (
	// DefaultFilename is the state file name inside the configuration directory.
	DefaultFilename = "current_imd_config.json"

	// TimeFormat is how the state file's modification time is shown.
	TimeFormat = "2006-01-02 15:04:05"

	saltPrefix = "salt: "
)

var (
	// ErrNoState is returned by Load when there is nothing to resume.
	ErrNoState = errors.New("no saved configuration state")

	// ErrPassphraseRequired is returned by Load for an encrypted file when
	// no passphrase was supplied.
	ErrPassphraseRequired = errors.New("saved configuration state is encrypted; a passphrase is required")
)

// Store reads and writes one state file.
type Store struct {
	Dir        string
	Filename   string
	Encrypt    bool // encrypt on Save when a passphrase is given
	Iterations int  // PBKDF2 iterations, encryption.DefaultIterations when zero
}

// NewStore returns a store for dir using the default file name.
func NewStore(dir string, encrypt bool, iterations int) *Store {
	return &Store{
		Dir:        dir,
		Filename:   DefaultFilename,
		Encrypt:    encrypt,
		Iterations: iterations,
	}
}

// Path returns the full path of the state file.
func (s *Store) Path() string {
	name := s.Filename
	if name == "" {
		name = DefaultFilename
	}
	return filepath.Join(s.Dir, name)
}

func (s *Store) iterations() int {
	if s.Iterations <= 0 {
		return encryption.DefaultIterations
	}
	return s.Iterations
}

// Save overwrites the state file with items. The file is encrypted when
// the store has Encrypt set and passphrase is not empty.
func (s *Store) Save(items []plan.OrderedConfigItem, passphrase string) error {
	data, err := json.MarshalIndent(items, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode configuration state: %w", err)
	}

	if s.Encrypt && passphrase != "" {
		salt, cipherText, err := encryption.Encrypt(passphrase, string(data), nil, s.iterations())
		if err != nil {
			return fmt.Errorf("failed to encrypt configuration state: %w", err)
		}
		data = []byte(saltPrefix + salt + "\n" + cipherText + "\n")
	}

	if err := os.MkdirAll(s.Dir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	path := s.Path()
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save state file: %w", err)
	}
	return nil
}

// Load reads the saved items. An encrypted file needs passphrase; a wrong
// one yields an error wrapping encryption.ErrDecryption and leaves the
// file as it was.
func (s *Store) Load(passphrase string) ([]plan.OrderedConfigItem, error) {
	raw, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	payload := raw
	if salt, cipherText, ok := splitEncrypted(raw); ok {
		if passphrase == "" {
			return nil, ErrPassphraseRequired
		}
		plain, err := encryption.Decrypt(salt, cipherText, passphrase, s.iterations())
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt %s: %w", s.Path(), err)
		}
		payload = []byte(plain)
	}

	var items []plan.OrderedConfigItem
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("state file %s is not valid: %w", s.Path(), err)
	}
	return items, nil
}

// IsEncrypted reports whether the saved file is in the encrypted format.
func (s *Store) IsEncrypted() (bool, error) {
	raw, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return false, ErrNoState
	}
	if err != nil {
		return false, fmt.Errorf("failed to read state file: %w", err)
	}
	_, _, ok := splitEncrypted(raw)
	return ok, nil
}

// Exists reports whether a state file is present.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.Path())
	return err == nil && info.Mode().IsRegular()
}

// ModTime returns the state file's modification time in local time,
// formatted with TimeFormat.
func (s *Store) ModTime() (string, error) {
	info, err := os.Stat(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoState
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat state file: %w", err)
	}
	return info.ModTime().Local().Format(TimeFormat), nil
}

// Clear removes the state file. A missing file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}

// splitEncrypted recognises the two-line encrypted layout.
func splitEncrypted(raw []byte) (salt, cipherText string, ok bool) {
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), len(raw)+1)

	if !sc.Scan() {
		return "", "", false
	}
	first := strings.TrimSpace(sc.Text())
	if !strings.HasPrefix(first, saltPrefix) {
		return "", "", false
	}
	salt = strings.TrimSpace(strings.TrimPrefix(first, saltPrefix))
	if sc.Scan() {
		cipherText = strings.TrimSpace(sc.Text())
	}
	return salt, cipherText, salt != "" && cipherText != ""
}
