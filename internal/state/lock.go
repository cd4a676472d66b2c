package state

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrLocked is returned when another run holds the state lock.
var ErrLocked = errors.New("another imd-cfg run is using this configuration directory")

// Lock is an exclusive lock file held for the duration of a run.
type Lock struct {
	path string
}

// LockPath returns the lock file path for the store.
func (s *Store) LockPath() string {
	return s.Path() + ".lock"
}

// Lock creates the lock file, failing with ErrLocked if it already exists.
// The lock file holds the owner's PID for the operator's benefit.
func (s *Store) Lock() (*Lock, error) {
	if err := os.MkdirAll(s.Dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	path := s.LockPath()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if errors.Is(err, os.ErrExist) {
		if pid := lockOwner(path); pid > 0 {
			return nil, fmt.Errorf("%w (pid %d, lock file %s)", ErrLocked, pid, path)
		}
		return nil, fmt.Errorf("%w (lock file %s)", ErrLocked, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(os.Getpid()) + "\n"); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}
	return &Lock{path: path}, nil
}

// Release removes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	l.path = ""
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func lockOwner(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
