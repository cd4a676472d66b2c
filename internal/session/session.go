package session

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rackops/imdcfg/internal/config"
	"github.com/rackops/imdcfg/internal/deviceconfig"
	"github.com/rackops/imdcfg/internal/firmware"
	"github.com/rackops/imdcfg/internal/logging"
	"github.com/rackops/imdcfg/internal/network"
	"github.com/rackops/imdcfg/internal/plan"
	"github.com/rackops/imdcfg/internal/prompt"
	"github.com/rackops/imdcfg/internal/state"
	"github.com/rackops/imdcfg/internal/ui"
)

// DefaultPollInterval is how often the firmware version is read while an
// IMD restarts after an upgrade.
const DefaultPollInterval = 5 * time.Second

// Device is the part of the IMD API a session drives. *deviceconfig.Client
// implements it.
type Device interface {
	deviceconfig.Caller
	SetAuth(username, password string)
	FirmwareVersion(ctx context.Context) (string, error)
	AddCredentials(ctx context.Context, username, password string) error
	SetPassword(ctx context.Context, username, newPassword string) error
	FactoryReset(ctx context.Context, call plan.APICall) error
	UploadFirmware(ctx context.Context, uploadPath, path string, progress func(sent int64)) error
}

// Session holds everything one run of the wizard works with. Credentials
// and the state passphrase are acquired at most once and only changed
// through setCredentials and setPassphrase.
type Session struct {
	Settings *config.Settings
	Device   Device
	Printer  *ui.Printer
	Prompter *prompt.Prompter
	Spinner  deviceconfig.Spinner
	Pinger   *network.Pinger
	Firmware *firmware.Store
	Store    *state.Store

	// Vault remembers the passphrase between runs. Nil unless
	// remember_passphrase is set.
	Vault *state.PassphraseVault

	// Interactive enables animated progress bars.
	Interactive bool

	// PollInterval is the pause between firmware version reads after an
	// upgrade.
	PollInterval time.Duration

	username   string
	password   string
	passphrase string
	greeted    bool

	mu   sync.Mutex
	lock *state.Lock
}

// New wires a session for settings, reading from in and writing to out.
func New(settings *config.Settings, in io.Reader, out io.Writer, interactive bool) *Session {
	client := deviceconfig.NewClient(settings.IP)
	client.SetTimeout(settings.Timeout)

	store := state.NewStore(filepath.Dir(settings.StateFile), settings.EncryptTempFile, settings.EncryptionIterations)
	store.Filename = filepath.Base(settings.StateFile)

	s := &Session{
		Settings:     settings,
		Device:       client,
		Printer:      ui.NewPrinter(out),
		Prompter:     prompt.New(in, out),
		Spinner:      ui.NewSpinner(out, settings.Spinner, interactive && !settings.Quiet),
		Pinger:       network.NewPinger(),
		Firmware:     firmware.NewStore(settings.FirmwareDir, settings.DownloadTimeout),
		Store:        store,
		Interactive:  interactive && !settings.Quiet,
		PollInterval: DefaultPollInterval,
	}
	if settings.RememberPassphrase {
		s.Vault = state.NewPassphraseVault(store)
	}
	return s
}

// IP is the address of the IMD being configured.
func (s *Session) IP() string {
	return s.Settings.IP
}

// setCredentials records the device account and hands it to the client.
func (s *Session) setCredentials(username, password string) {
	s.username, s.password = username, password
	s.Device.SetAuth(username, password)
}

// setPassphrase records the passphrase for the state file and encrypted
// defaults.
func (s *Session) setPassphrase(passphrase string) {
	s.passphrase = passphrase
}

// credentials returns the device account, asking the operator the first
// time.
func (s *Session) credentials() (string, string, error) {
	if s.username != "" && s.password != "" {
		return s.username, s.password, nil
	}
	username, err := s.Prompter.Username()
	if err != nil {
		return "", "", err
	}
	password, err := s.Prompter.Password()
	if err != nil {
		return "", "", err
	}
	s.setCredentials(username, password)
	return username, password, nil
}

// passphraseFor returns the passphrase, asking when none is known or when
// retry says the known one was wrong.
func (s *Session) passphraseFor(retry bool) (string, error) {
	if !retry && s.passphrase != "" {
		return s.passphrase, nil
	}
	if retry && s.Vault != nil {
		if err := s.Vault.Forget(); err != nil {
			logging.Warn("forgetting passphrase failed", zap.Error(err))
		}
	}
	if !retry && s.Vault != nil {
		remembered, err := s.Vault.Get()
		if err != nil {
			logging.Warn("reading remembered passphrase failed", zap.Error(err))
		}
		if remembered != "" {
			s.setPassphrase(remembered)
			return remembered, nil
		}
	}

	passphrase, err := s.Prompter.Passphrase("Please enter the configuration passphrase")
	if err != nil {
		return "", err
	}
	s.setPassphrase(passphrase)
	return passphrase, nil
}

// rememberPassphrase stores the current passphrase when a vault is set.
func (s *Session) rememberPassphrase() {
	if s.Vault == nil || s.passphrase == "" {
		return
	}
	if err := s.Vault.Set(s.passphrase); err != nil {
		logging.Warn("remembering passphrase failed", zap.Error(err))
	}
}

// ping waits for the IMD to answer, asking the operator whether to keep
// trying.
func (s *Session) ping(ctx context.Context) error {
	return s.Pinger.WaitForPing(ctx, s.IP(), s.Prompter, func() {
		s.Printer.Info(fmt.Sprintf("Waiting for IMD at %s to respond...", ui.Address(s.IP())))
	})
}

// withSpinner runs fn while the spinner shows message. The spinner is
// stopped before fn's result is returned.
func (s *Session) withSpinner(message string, fn func() error) error {
	if s.Spinner != nil {
		s.Spinner.Start(message)
	}
	err := fn()
	if s.Spinner != nil {
		s.Spinner.Stop()
	}
	return err
}

// offerDelete asks whether the saved state should be removed.
func (s *Session) offerDelete() error {
	if !s.Store.Exists() {
		return nil
	}
	remove, err := s.Prompter.Confirm("Delete the saved configuration?")
	if err != nil {
		return err
	}
	if !remove {
		s.Printer.Info("The saved configuration was kept at " + s.Store.Path())
		return nil
	}
	return s.clearState()
}

func (s *Session) clearState() error {
	if err := s.Store.Clear(); err != nil {
		return err
	}
	if s.Vault != nil {
		if err := s.Vault.Forget(); err != nil {
			logging.Warn("forgetting passphrase failed", zap.Error(err))
		}
	}
	return nil
}

// acquireLock takes the state lock for the rest of the session.
func (s *Session) acquireLock() error {
	lock, err := s.Store.Lock()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lock = lock
	s.mu.Unlock()
	return nil
}

// Close releases the state lock and restores the terminal. It is safe to
// call more than once, including from a signal handler.
func (s *Session) Close() {
	s.mu.Lock()
	lock := s.lock
	s.lock = nil
	s.mu.Unlock()

	if lock != nil {
		if err := lock.Release(); err != nil {
			logging.Warn("releasing lock failed", zap.Error(err))
		}
	}
	s.Prompter.Restore()
}
