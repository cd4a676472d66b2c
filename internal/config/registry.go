package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	historyFile = "history.yaml"

	// MaxHistory bounds the number of records kept on disk.
	MaxHistory = 500
)

// Mutex for thread-safe file operations
var fileMutex sync.Mutex

// HistoryPath returns the history file inside configDir.
func HistoryPath(configDir string) string {
	return filepath.Join(configDir, historyFile)
}

// LoadHistory reads the history file at path. A missing file yields an
// empty history.
func LoadHistory(path string) (*History, error) {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewHistory(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	var h History
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse history file: %w", err)
	}
	if h.Version == 0 {
		h.Version = HistoryVersion
	}
	if h.Version != HistoryVersion {
		return nil, fmt.Errorf("unsupported history version: %d (expected %d)", h.Version, HistoryVersion)
	}
	return &h, nil
}

// Save writes the history to path.
// Performs an atomic write to prevent corruption on crash.
func (h *History) Save(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	h.Prune(MaxHistory)
	data, err := yaml.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	header := []byte(`# imd-cfg history
# One entry per IMD configuration run. Passwords and other secret
# values are never written here.

`)
	data = append(header, data...)

	// Write to temporary file first (atomic write)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary history file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save history file: %w", err)
	}
	return nil
}

// AppendHistory loads the history at path, records rec and saves it.
func AppendHistory(path string, rec DeviceRecord) error {
	h, err := LoadHistory(path)
	if err != nil {
		return err
	}
	h.Record(rec)
	return h.Save(path)
}
